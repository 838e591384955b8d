package sync

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/brojonat/lumenwatch/service/metrics"
	"github.com/brojonat/lumenwatch/service/stellar"
)

// DefaultOperationFetchConcurrency bounds the per-transaction operation
// fetch fan-out during a backfill.
const DefaultOperationFetchConcurrency = 4

// HistorySyncer performs on-demand paginated backfills: it fetches an
// account's recent transactions, resolves each transaction's operations, and
// classifies them into an ordered payment list.
type HistorySyncer struct {
	ledger      Ledger
	logger      *slog.Logger
	metrics     *metrics.Metrics
	concurrency int
}

// NewHistorySyncer creates a backfill syncer. concurrency bounds the number
// of operation fetches in flight at once; values < 1 use the default.
func NewHistorySyncer(ledger Ledger, concurrency int, m *metrics.Metrics, logger *slog.Logger) *HistorySyncer {
	if concurrency < 1 {
		concurrency = DefaultOperationFetchConcurrency
	}
	return &HistorySyncer{
		ledger:      ledger,
		logger:      logger,
		metrics:     m,
		concurrency: concurrency,
	}
}

// FetchPayments returns payment records derived from up to limit recent
// transactions for the account, newest first.
//
// Only successful transactions are fetched for the backfill, so every record
// comes out completed; classification still runs unchanged, it simply never
// sees a failed transaction here. An account absent from the ledger yields
// an empty history, not an error. A failed top-level transaction list fetch
// fails the whole call; a failed per-transaction operation fetch degrades
// that one transaction to zero operations and the backfill continues.
//
// Operation fetches fan out concurrently but are joined before anything is
// returned: the result is always complete and ordered.
func (h *HistorySyncer) FetchPayments(ctx context.Context, account string, limit int) ([]*stellar.PaymentRecord, error) {
	txns, err := h.ledger.ListTransactions(ctx, account, limit, "")
	if err != nil {
		if errors.Is(err, stellar.ErrAccountNotFound) {
			h.logger.DebugContext(ctx, "account not on ledger, empty history", "account", account)
			return []*stellar.PaymentRecord{}, nil
		}
		return nil, err
	}

	// Resolve operations for each transaction with bounded fan-out. Results
	// land at fixed indexes so transaction order is preserved across the join.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	resolved := make([][]stellar.Operation, len(txns))

	for i, tx := range txns {
		g.Go(func() error {
			ops, err := h.ledger.OperationsForTransaction(gctx, tx.Hash)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Degrade to an empty operation list rather than aborting
				// the whole backfill.
				h.logger.WarnContext(gctx, "operation fetch failed, emitting transaction without operations",
					"tx_hash", tx.Hash,
					"error", err,
				)
				return nil
			}
			resolved[i] = ops
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]*stellar.PaymentRecord, 0, len(txns))
	for i, tx := range txns {
		tx.Operations = resolved[i]
		if h.metrics != nil {
			h.metrics.RecordTransactionProcessed(account, "backfill")
		}
		recs, errs := stellar.ClassifyTransaction(tx, account)
		for _, cerr := range errs {
			// A malformed operation drops only its own record.
			h.logger.WarnContext(ctx, "skipping unclassifiable operation",
				"tx_hash", tx.Hash,
				"error", cerr,
			)
			if h.metrics != nil {
				h.metrics.RecordRecordSkipped(account, "parse_error")
			}
		}
		for _, rec := range recs {
			if h.metrics != nil {
				h.metrics.RecordRecordClassified(account, string(rec.Direction))
			}
			records = append(records, rec)
		}
	}

	// Transactions arrive newest first and operation order is preserved
	// within each transaction; the stable sort keeps both when timestamps
	// collide across transactions.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.After(records[j].Date)
	})

	h.logger.InfoContext(ctx, "backfill complete",
		"account", account,
		"transactions", len(txns),
		"payments", len(records),
	)
	return records, nil
}
