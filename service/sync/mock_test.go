package sync

import (
	"context"
	gosync "sync"

	"github.com/brojonat/lumenwatch/service/stellar"
)

// mockLedger implements Ledger with pluggable behavior per call. Function
// fields left nil make the corresponding call panic, which keeps test setup
// honest about what each test exercises.
type mockLedger struct {
	listFn    func(ctx context.Context, account string, limit int, cursor string) ([]*stellar.Transaction, error)
	opsFn     func(ctx context.Context, hash string) ([]stellar.Operation, error)
	accountFn func(ctx context.Context, account string) (*stellar.AccountSummary, error)
	streamFn  func(ctx context.Context, account, cursor string, handler func(*stellar.Transaction)) error
}

func (m *mockLedger) ListTransactions(ctx context.Context, account string, limit int, cursor string) ([]*stellar.Transaction, error) {
	return m.listFn(ctx, account, limit, cursor)
}

func (m *mockLedger) OperationsForTransaction(ctx context.Context, hash string) ([]stellar.Operation, error) {
	return m.opsFn(ctx, hash)
}

func (m *mockLedger) AccountSummary(ctx context.Context, account string) (*stellar.AccountSummary, error) {
	return m.accountFn(ctx, account)
}

func (m *mockLedger) StreamTransactions(ctx context.Context, account, cursor string, handler func(*stellar.Transaction)) error {
	return m.streamFn(ctx, account, cursor, handler)
}

var _ Ledger = (*mockLedger)(nil)

// collector gathers bus events behind a mutex for assertion.
type collector struct {
	mu     gosync.Mutex
	events []any
}

func (c *collector) handler() Handler {
	return func(event any) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, event)
	}
}

func (c *collector) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.events))
	copy(out, c.events)
	return out
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
