package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/brojonat/lumenwatch/service/metrics"
	"github.com/brojonat/lumenwatch/service/session"
	"github.com/brojonat/lumenwatch/service/stellar"
)

// Manager is the consumer-facing front door of the sync engine. It owns the
// per-account scheduling discipline: at most one live stream and at most one
// in-flight backfill per account, with different accounts fully independent.
// It also keeps the last successfully refreshed balance map per account so a
// failed refresh never clears what callers can see.
type Manager struct {
	ledger  Ledger
	bus     *Bus
	cursors CursorStore
	history *HistorySyncer
	logger  *slog.Logger
	metrics *metrics.Metrics
	maxWait time.Duration

	balanceFlight singleflight.Group

	mu        gosync.Mutex
	watchers  map[string]*LiveSyncer
	backfills map[string]*gosync.Mutex
	starts    map[string]*gosync.Mutex
	balances  map[string]stellar.BalanceMap
}

// NewManager creates a sync manager. concurrency bounds backfill operation
// fetches; maxWait bounds live reconnect backoff. Either may be <= 0 for
// defaults. If cursors is nil, cursors live in memory only.
func NewManager(ledger Ledger, bus *Bus, cursors CursorStore, concurrency int, maxWait time.Duration, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if cursors == nil {
		cursors = NewMemoryCursorStore()
	}
	return &Manager{
		ledger:    ledger,
		bus:       bus,
		cursors:   cursors,
		history:   NewHistorySyncer(ledger, concurrency, m, logger),
		logger:    logger,
		metrics:   m,
		maxWait:   maxWait,
		watchers:  make(map[string]*LiveSyncer),
		backfills: make(map[string]*gosync.Mutex),
		starts:    make(map[string]*gosync.Mutex),
		balances:  make(map[string]stellar.BalanceMap),
	}
}

// Bus exposes the event bus for subscribers.
func (m *Manager) Bus() *Bus { return m.bus }

// FetchPayments runs a history backfill for the account. Calls for the same
// account are serialized so only one backfill is in flight at a time;
// different accounts proceed in parallel.
func (m *Manager) FetchPayments(ctx context.Context, account string, limit int) ([]*stellar.PaymentRecord, error) {
	lock := m.backfillLock(account)
	lock.Lock()
	defer lock.Unlock()
	return m.history.FetchPayments(ctx, account, limit)
}

func (m *Manager) backfillLock(account string) *gosync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.backfills[account]
	if !ok {
		lock = &gosync.Mutex{}
		m.backfills[account] = lock
	}
	return lock
}

// startLock serializes StartLive/StopLive per account so a stop-prior,
// create, store sequence can never interleave with another and leak a second
// stream for the same account.
func (m *Manager) startLock(account string) *gosync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.starts[account]
	if !ok {
		lock = &gosync.Mutex{}
		m.starts[account] = lock
	}
	return lock
}

// RefreshBalances fetches the account's current balances and replaces the
// cached map wholesale on success, publishing a balances.updated event.
// On failure the previous map stays visible and no event is published.
// An account absent from the ledger yields empty balances, not an error.
// Concurrent refreshes for the same account share one upstream call.
func (m *Manager) RefreshBalances(ctx context.Context, account string) (stellar.BalanceMap, error) {
	v, err, _ := m.balanceFlight.Do(account, func() (any, error) {
		summary, err := m.ledger.AccountSummary(ctx, account)
		if err != nil {
			if errors.Is(err, stellar.ErrAccountNotFound) {
				return m.storeBalances(account, stellar.BalanceMap{}), nil
			}
			return nil, err
		}

		balances, err := stellar.AggregateBalances(summary.Balances)
		if err != nil {
			return nil, err
		}
		return m.storeBalances(account, balances), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(stellar.BalanceMap), nil
}

func (m *Manager) storeBalances(account string, balances stellar.BalanceMap) stellar.BalanceMap {
	m.mu.Lock()
	m.balances[account] = balances
	m.mu.Unlock()

	m.bus.Publish(TopicBalancesUpdated, BalancesUpdated{
		Account:  account,
		Balances: balances,
	})
	return balances
}

// Balances returns the last successfully refreshed balance map for the
// account, if any. It never reflects a partial or failed refresh.
func (m *Manager) Balances(account string) (stellar.BalanceMap, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balances, ok := m.balances[account]
	return balances, ok
}

// StartLive begins (or restarts) the live subscription for the account.
// If a subscription is already running for the account, it is stopped first
// so there is never more than one. Failures after this returns surface only
// as sync.error events and through LiveState.
func (m *Manager) StartLive(ctx context.Context, account string) {
	lock := m.startLock(account)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	prior := m.watchers[account]
	delete(m.watchers, account)
	m.mu.Unlock()

	if prior != nil {
		prior.Stop()
	}

	watcher := NewLiveSyncer(account, m.ledger, m.bus, m.cursors, m.maxWait, m.metrics, m.logger)
	watcher.Start(ctx)

	m.mu.Lock()
	m.watchers[account] = watcher
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "live sync started", "account", account)
}

// StopLive halts the account's live subscription. It is idempotent and
// synchronous: no further events for the account are published after it
// returns.
func (m *Manager) StopLive(account string) {
	lock := m.startLock(account)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	watcher := m.watchers[account]
	delete(m.watchers, account)
	m.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
		m.logger.Info("live sync stopped", "account", account)
	}
}

// LiveState reports the subscription state for the account;
// StateDisconnected when no subscription exists.
func (m *Manager) LiveState(account string) State {
	m.mu.Lock()
	watcher := m.watchers[account]
	m.mu.Unlock()

	if watcher == nil {
		return StateDisconnected
	}
	return watcher.State()
}

// StopAll halts every live subscription, synchronously. Each account goes
// through StopLive so an in-flight StartLive for the same account is waited
// out instead of leaking its watcher past the snapshot.
func (m *Manager) StopAll() {
	m.mu.Lock()
	accounts := make([]string, 0, len(m.watchers))
	for account := range m.watchers {
		accounts = append(accounts, account)
	}
	m.mu.Unlock()

	for _, account := range accounts {
		m.StopLive(account)
	}
}

// FollowSession ties live sync to a session provider: connecting a session
// starts live sync for its account, disconnecting stops it. The returned
// function detaches (without stopping an already-running sync). If a session
// is already active, sync starts immediately.
func (m *Manager) FollowSession(ctx context.Context, provider session.Provider) (detach func()) {
	if account, ok := provider.CurrentAccount(); ok {
		m.StartLive(ctx, account)
	}

	var (
		mu   gosync.Mutex
		last string
	)
	if account, ok := provider.CurrentAccount(); ok {
		last = account
	}

	return provider.OnChange(func(status session.Status) {
		mu.Lock()
		prev := last
		if status.Active {
			last = status.Account
		} else {
			last = ""
		}
		mu.Unlock()

		if prev != "" && (!status.Active || status.Account != prev) {
			m.StopLive(prev)
		}
		if status.Active && status.Account != "" && status.Account != prev {
			m.StartLive(ctx, status.Account)
		}
	})
}
