package stellar

import (
	"context"
	"log/slog"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/operations"

	"github.com/brojonat/lumenwatch/service/metrics"
)

// HorizonAPI is the slice of the Horizon client this engine needs.
// Keeping it narrow lets tests mock the upstream without a Horizon server;
// *horizonclient.Client satisfies it.
type HorizonAPI interface {
	Transactions(request horizonclient.TransactionRequest) (hProtocol.TransactionsPage, error)
	Operations(request horizonclient.OperationRequest) (operations.OperationsPage, error)
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	StreamTransactions(ctx context.Context, request horizonclient.TransactionRequest, handler horizonclient.TransactionHandler) error
}

// Client provides ledger reads and streams against a Horizon server,
// translating wire types and failures into the domain model.
type Client struct {
	api      HorizonAPI
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // Horizon endpoint identifier for metrics labeling
}

// NewClient creates a ledger client. The endpoint parameter labels metrics
// (e.g. "testnet", "pubnet", or the Horizon hostname). If m is nil, no
// metrics are recorded.
func NewClient(api HorizonAPI, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		api:      api,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// ListTransactions fetches up to limit confirmed transactions for the
// account, newest first, excluding failed transactions. The optional cursor
// resumes a prior page. Operations are not resolved here; callers fetch them
// per transaction via OperationsForTransaction.
func (c *Client) ListTransactions(ctx context.Context, account string, limit int, cursor string) ([]*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := horizonclient.TransactionRequest{
		ForAccount:    account,
		Limit:         uint(limit),
		Order:         horizonclient.OrderDesc,
		Cursor:        cursor,
		IncludeFailed: false,
	}

	start := time.Now()
	page, err := c.api.Transactions(req)
	c.record("transactions", err, time.Since(start))

	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			c.logger.DebugContext(ctx, "account has no transaction history yet", "account", account)
			return nil, ErrAccountNotFound
		}
		c.logger.ErrorContext(ctx, "failed to list transactions", "account", account, "error", err)
		return nil, &FetchError{Op: "transactions", Err: err}
	}

	txns := make([]*Transaction, 0, len(page.Embedded.Records))
	for _, rec := range page.Embedded.Records {
		txns = append(txns, transactionFromHorizon(rec))
	}

	c.logger.DebugContext(ctx, "fetched transactions",
		"account", account,
		"count", len(txns),
	)
	return txns, nil
}

// OperationsForTransaction resolves the ordered operation list of one
// transaction.
func (c *Client) OperationsForTransaction(ctx context.Context, hash string) ([]Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := horizonclient.OperationRequest{
		ForTransaction: hash,
		Order:          horizonclient.OrderAsc,
	}

	start := time.Now()
	page, err := c.api.Operations(req)
	c.record("operations", err, time.Since(start))

	if err != nil {
		c.logger.WarnContext(ctx, "failed to fetch operations", "tx_hash", hash, "error", err)
		return nil, &FetchError{Op: "operations", Err: err}
	}

	ops := make([]Operation, 0, len(page.Embedded.Records))
	for _, rec := range page.Embedded.Records {
		ops = append(ops, operationFromHorizon(rec))
	}
	return ops, nil
}

// AccountSummary fetches current account state including balances.
// A 404 maps to ErrAccountNotFound so callers can distinguish "not on the
// ledger yet" from transport failure.
func (c *Client) AccountSummary(ctx context.Context, account string) (*AccountSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	acct, err := c.api.AccountDetail(horizonclient.AccountRequest{AccountID: account})
	c.record("account_detail", err, time.Since(start))

	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return nil, ErrAccountNotFound
		}
		c.logger.ErrorContext(ctx, "failed to fetch account", "account", account, "error", err)
		return nil, &FetchError{Op: "account_detail", Err: err}
	}

	return accountFromHorizon(acct), nil
}

// StreamTransactions opens a cursor-based transaction stream for the account
// and invokes handler for each arriving transaction, in order. Cursor "now"
// starts at the present ledger tip. The call blocks until ctx is canceled
// (returning ctx.Err()) or the stream drops (returning *StreamError).
// Reconnect policy belongs to the caller.
func (c *Client) StreamTransactions(ctx context.Context, account, cursor string, handler func(*Transaction)) error {
	req := horizonclient.TransactionRequest{
		ForAccount: account,
		Cursor:     cursor,
	}

	c.logger.DebugContext(ctx, "opening transaction stream", "account", account, "cursor", cursor)
	if c.metrics != nil {
		c.metrics.RecordStreamConnect(c.endpoint)
	}

	err := c.api.StreamTransactions(ctx, req, func(tx hProtocol.Transaction) {
		handler(transactionFromHorizon(tx))
	})

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return &StreamError{Account: account, Err: err}
	}
	return nil
}

func (c *Client) record(op string, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordHorizonCall(op, status, c.endpoint, d.Seconds())
}
