package sync

import (
	"log/slog"
	"sync"

	"github.com/brojonat/lumenwatch/service/metrics"
	"github.com/brojonat/lumenwatch/service/stellar"
)

// Topic names for the in-process event bus.
const (
	TopicBalancesUpdated     = "balances.updated"
	TopicTransactionReceived = "transaction.received"
	TopicError               = "sync.error"
)

// BalancesUpdated is published after a successful balance refresh. The map
// is a full replacement of the account's prior balances.
type BalancesUpdated struct {
	Account  string             `json:"account"`
	Balances stellar.BalanceMap `json:"balances"`
}

// TransactionReceived is published once per payment record classified from
// the live stream. Record.ID de-duplicates redeliveries across reconnects.
type TransactionReceived struct {
	Account string                 `json:"account"`
	Record  *stellar.PaymentRecord `json:"record"`
}

// SyncError is published for background failures that have no caller to
// return to (stream retry failures, background refresh errors).
type SyncError struct {
	Phase   string `json:"phase"`
	Account string `json:"account"`
	Cause   error  `json:"-"`
	Message string `json:"message"`
}

// Handler receives events for a topic. Handlers run synchronously on the
// publisher's goroutine; a handler that panics is isolated and logged and
// never affects the publisher or other subscribers.
type Handler func(event any)

// subscription guards one handler so that unsubscribe can wait out an
// in-flight delivery without a bus-wide lock.
type subscription struct {
	mu      sync.Mutex
	handler Handler
	removed bool
}

// Bus is a minimal named-topic publish/subscribe hub. It holds no history
// and persists nothing; subscribers only see events published while they
// are subscribed.
type Bus struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[string]map[int]*subscription
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewBus creates an event bus. If m is nil, no metrics are recorded.
func NewBus(m *metrics.Metrics, logger *slog.Logger) *Bus {
	return &Bus{
		subs:    make(map[string]map[int]*subscription),
		logger:  logger,
		metrics: m,
	}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Unsubscribe is idempotent and synchronous: it waits for any
// in-flight delivery to this handler to finish, and once it returns the
// handler is never invoked again.
func (b *Bus) Subscribe(topic string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	sub := &subscription{handler: h}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]*subscription)
	}
	b.subs[topic][id] = sub

	return func() {
		b.mu.Lock()
		delete(b.subs[topic], id)
		b.mu.Unlock()

		// Block until any delivery currently running on this handler
		// completes, then mark it dead for deliveries that already
		// snapshotted it.
		sub.mu.Lock()
		sub.removed = true
		sub.mu.Unlock()
	}
}

// Publish delivers the event to every current subscriber of the topic.
// Delivery is synchronous and ordered per publisher.
func (b *Bus) Publish(topic string, event any) {
	b.mu.RLock()
	snapshot := make([]*subscription, 0, len(b.subs[topic]))
	for _, sub := range b.subs[topic] {
		snapshot = append(snapshot, sub)
	}
	b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.RecordBusPublish(topic)
	}

	for _, sub := range snapshot {
		b.deliver(topic, sub, event)
	}
}

func (b *Bus) deliver(topic string, sub *subscription, event any) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.removed {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				"topic", topic,
				"panic", r,
			)
		}
	}()
	sub.handler(event)
}
