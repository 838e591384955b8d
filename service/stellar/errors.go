package stellar

import (
	"errors"
	"fmt"
)

// ErrAccountNotFound indicates the account does not exist on the ledger yet.
// This is distinct from transport failure: callers treat it as "empty
// balances, empty history" rather than an error worth retrying.
var ErrAccountNotFound = errors.New("account not found on ledger")

// FetchError wraps a transport or HTTP failure from the upstream data source.
// Reads that fail with a FetchError are safe to retry.
type FetchError struct {
	Op  string // the API operation that failed, e.g. "transactions"
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError indicates a malformed value inside an otherwise valid operation
// (typically a bad decimal amount). The affected record is dropped; a
// ParseError never aborts a batch.
type ParseError struct {
	OperationID string
	Field       string
	Value       string
	Err         error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s=%q in operation %s: %v", e.Field, e.Value, e.OperationID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StreamError indicates a dropped live subscription. It is consumed by the
// live sync's reconnect loop and only surfaces to callers through error
// events on the bus.
type StreamError struct {
	Account string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("transaction stream for %s: %v", e.Account, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
