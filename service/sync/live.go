package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/brojonat/lumenwatch/service/metrics"
	"github.com/brojonat/lumenwatch/service/stellar"
)

// State is the live subscription's lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateReconnecting State = "reconnecting"
)

const (
	// DefaultReconnectMaxWait caps the backoff between reconnect attempts.
	DefaultReconnectMaxWait = 30 * time.Second

	// streamHealthyAfter: a stream that survived at least this long before
	// dropping counts as a fresh disconnect episode, resetting the backoff.
	streamHealthyAfter = 30 * time.Second
)

// LiveSyncer maintains one account's long-lived transaction subscription.
// Each arriving transaction has its operations resolved and classified, and
// every resulting payment record is published on the bus. The stored cursor
// advances only after a transaction is fully processed, giving at-least-once
// delivery: consumers de-duplicate on PaymentRecord.ID.
//
// On stream errors the syncer reconnects with jittered exponential backoff,
// resuming from the last advanced cursor, retrying until stopped.
type LiveSyncer struct {
	account string
	ledger  Ledger
	bus     *Bus
	cursors CursorStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	maxWait time.Duration

	mu     gosync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLiveSyncer creates a live syncer for one account. maxWait bounds the
// reconnect backoff ceiling; values <= 0 use the default.
func NewLiveSyncer(account string, ledger Ledger, bus *Bus, cursors CursorStore, maxWait time.Duration, m *metrics.Metrics, logger *slog.Logger) *LiveSyncer {
	if maxWait <= 0 {
		maxWait = DefaultReconnectMaxWait
	}
	if cursors == nil {
		cursors = NewMemoryCursorStore()
	}
	return &LiveSyncer{
		account: account,
		ledger:  ledger,
		bus:     bus,
		cursors: cursors,
		logger:  logger,
		metrics: m,
		maxWait: maxWait,
		state:   StateDisconnected,
	}
}

// Start launches the subscription loop. It returns immediately; failures are
// observable only through sync.error events and State, never as a returned
// error. Starting an already-running syncer is a no-op.
func (l *LiveSyncer) Start(parent context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	done := make(chan struct{})
	l.done = done
	l.state = StateConnecting

	go l.run(ctx, done)
}

// Stop halts the subscription from any state. It is idempotent and
// synchronous: when it returns, the run loop has exited and no further
// events for this account will be published.
func (l *LiveSyncer) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// State returns the current lifecycle state.
func (l *LiveSyncer) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Account returns the watched account identifier.
func (l *LiveSyncer) Account() string { return l.account }

func (l *LiveSyncer) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *LiveSyncer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer l.setState(StateDisconnected)

	if l.metrics != nil {
		l.metrics.StreamStarted(l.account)
		defer l.metrics.StreamStopped(l.account)
	}

	cursor, err := l.cursors.Load(ctx, l.account)
	if err != nil {
		l.logger.WarnContext(ctx, "failed to load stream cursor, starting from now",
			"account", l.account,
			"error", err,
		)
		cursor = ""
	}
	if cursor == "" {
		cursor = "now"
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = l.maxWait
	bo.MaxElapsedTime = 0 // retry until stopped

	consecutiveFailures := 0

	for {
		l.setState(StateStreaming)
		started := time.Now()

		streamCtx, cancelStream := context.WithCancel(ctx)
		var procErr error
		streamErr := l.ledger.StreamTransactions(streamCtx, l.account, cursor, func(tx *stellar.Transaction) {
			if procErr != nil {
				// Already tearing down; ignore anything still in flight.
				return
			}
			if err := l.process(streamCtx, tx); err != nil {
				// Do not advance the cursor: the transaction will be
				// redelivered on reconnect.
				procErr = err
				cancelStream()
				return
			}
			cursor = tx.PagingToken
		})
		cancelStream()

		if ctx.Err() != nil {
			l.logger.InfoContext(ctx, "live sync stopped", "account", l.account)
			return
		}

		cause := streamErr
		if procErr != nil {
			cause = procErr
		}

		if time.Since(started) >= streamHealthyAfter {
			bo.Reset()
			consecutiveFailures = 0
		}
		consecutiveFailures++

		l.setState(StateReconnecting)
		if l.metrics != nil {
			l.metrics.RecordStreamReconnect(l.account)
		}
		wait := bo.NextBackOff()
		l.logger.WarnContext(ctx, "transaction stream dropped, reconnecting",
			"account", l.account,
			"cursor", cursor,
			"attempt", consecutiveFailures,
			"backoff", wait,
			"error", cause,
		)

		// Surface one error event per disconnect episode, and only once the
		// first reconnect has also failed; a single blip heals silently.
		if consecutiveFailures == 2 {
			l.bus.Publish(TopicError, SyncError{
				Phase:   "stream",
				Account: l.account,
				Cause:   cause,
				Message: cause.Error(),
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// process resolves and classifies one streamed transaction, publishing every
// resulting record, then persists the advanced cursor. An operation fetch
// failure is returned without advancing anything so the transaction is
// re-delivered after reconnect.
func (l *LiveSyncer) process(ctx context.Context, tx *stellar.Transaction) error {
	ops, err := l.ledger.OperationsForTransaction(ctx, tx.Hash)
	if err != nil {
		return err
	}
	tx.Operations = ops

	if l.metrics != nil {
		l.metrics.RecordTransactionProcessed(l.account, "stream")
	}

	records, errs := stellar.ClassifyTransaction(tx, l.account)
	for _, cerr := range errs {
		l.logger.WarnContext(ctx, "skipping unclassifiable streamed operation",
			"account", l.account,
			"tx_hash", tx.Hash,
			"error", cerr,
		)
		if l.metrics != nil {
			l.metrics.RecordRecordSkipped(l.account, "parse_error")
		}
	}

	for _, rec := range records {
		if l.metrics != nil {
			l.metrics.RecordRecordClassified(l.account, string(rec.Direction))
		}
		l.bus.Publish(TopicTransactionReceived, TransactionReceived{
			Account: l.account,
			Record:  rec,
		})
	}

	if err := l.cursors.Save(ctx, l.account, tx.PagingToken); err != nil {
		// The in-memory cursor still advances; a failed save only costs
		// redelivery after a restart.
		l.logger.WarnContext(ctx, "failed to persist stream cursor",
			"account", l.account,
			"cursor", tx.PagingToken,
			"error", err,
		)
	}
	return nil
}
