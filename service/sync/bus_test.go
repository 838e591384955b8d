package sync

import (
	"io"
	"log/slog"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(nil, testLogger())

	var got []any
	unsub := bus.Subscribe(TopicBalancesUpdated, func(event any) {
		got = append(got, event)
	})
	defer unsub()

	bus.Publish(TopicBalancesUpdated, BalancesUpdated{Account: "G1"})
	bus.Publish(TopicBalancesUpdated, BalancesUpdated{Account: "G2"})

	require.Len(t, got, 2)
	assert.Equal(t, "G1", got[0].(BalancesUpdated).Account)
	assert.Equal(t, "G2", got[1].(BalancesUpdated).Account)
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	bus := NewBus(nil, testLogger())

	var calls int
	defer bus.Subscribe(TopicError, func(any) { calls++ })()

	bus.Publish(TopicTransactionReceived, TransactionReceived{Account: "G1"})
	assert.Zero(t, calls)
}

func TestBus_PanicIsolation(t *testing.T) {
	bus := NewBus(nil, testLogger())

	var survived int
	defer bus.Subscribe(TopicError, func(any) { panic("boom") })()
	defer bus.Subscribe(TopicError, func(any) { survived++ })()

	// Publisher must not observe the panic, and the healthy subscriber must
	// still be delivered to.
	assert.NotPanics(t, func() {
		bus.Publish(TopicError, SyncError{Phase: "live"})
		bus.Publish(TopicError, SyncError{Phase: "live"})
	})
	assert.Equal(t, 2, survived)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(nil, testLogger())

	var calls int
	unsub := bus.Subscribe(TopicBalancesUpdated, func(any) { calls++ })

	bus.Publish(TopicBalancesUpdated, BalancesUpdated{})
	unsub()
	bus.Publish(TopicBalancesUpdated, BalancesUpdated{})

	assert.Equal(t, 1, calls)
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus(nil, testLogger())
	unsub := bus.Subscribe(TopicError, func(any) {})
	assert.NotPanics(t, func() {
		unsub()
		unsub()
	})
}

func TestBus_UnsubscribeWaitsForInflightDelivery(t *testing.T) {
	bus := NewBus(nil, testLogger())

	entered := make(chan struct{})
	release := make(chan struct{})
	var done bool
	var mu gosync.Mutex

	unsub := bus.Subscribe(TopicError, func(any) {
		close(entered)
		<-release
		mu.Lock()
		done = true
		mu.Unlock()
	})

	go bus.Publish(TopicError, SyncError{})
	<-entered

	unsubReturned := make(chan struct{})
	go func() {
		unsub()
		close(unsubReturned)
	}()

	select {
	case <-unsubReturned:
		t.Fatal("unsubscribe returned while a delivery was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-unsubReturned:
	case <-time.After(time.Second):
		t.Fatal("unsubscribe did not return after delivery finished")
	}

	mu.Lock()
	assert.True(t, done, "in-flight delivery must have completed before unsubscribe returned")
	mu.Unlock()
}

func TestBus_ConcurrentPublishers(t *testing.T) {
	bus := NewBus(nil, testLogger())

	var mu gosync.Mutex
	var count int
	defer bus.Subscribe(TopicTransactionReceived, func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})()

	const publishers, each = 8, 100
	var wg gosync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				bus.Publish(TopicTransactionReceived, TransactionReceived{})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, publishers*each, count)
}
