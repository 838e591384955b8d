package sync

import (
	"context"

	"github.com/brojonat/lumenwatch/service/stellar"
)

// Ledger is the upstream data source contract the sync engine depends on.
// *stellar.Client satisfies it; tests substitute mocks so the engine can be
// exercised without a Horizon server.
type Ledger interface {
	// ListTransactions returns up to limit successful transactions for the
	// account, newest first. Returns stellar.ErrAccountNotFound for accounts
	// that do not exist on the ledger.
	ListTransactions(ctx context.Context, account string, limit int, cursor string) ([]*stellar.Transaction, error)

	// OperationsForTransaction resolves a transaction's ordered operations.
	OperationsForTransaction(ctx context.Context, hash string) ([]stellar.Operation, error)

	// AccountSummary returns current account state including balances.
	AccountSummary(ctx context.Context, account string) (*stellar.AccountSummary, error)

	// StreamTransactions blocks delivering transactions from cursor until
	// ctx is canceled (ctx.Err()) or the stream drops (*stellar.StreamError).
	StreamTransactions(ctx context.Context, account, cursor string, handler func(*stellar.Transaction)) error
}
