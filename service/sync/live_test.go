package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/lumenwatch/service/stellar"
)

func streamedTx(pt string) *stellar.Transaction {
	return &stellar.Transaction{
		ID:          pt,
		Hash:        "hash-" + pt,
		PagingToken: pt,
		Successful:  true,
	}
}

func incomingOps(id string) []stellar.Operation {
	return []stellar.Operation{
		stellar.PaymentOp{
			ID:     id,
			From:   counterparty,
			To:     watchedAccount,
			Amount: "1.0000000",
		},
	}
}

func TestLive_PublishesRecordsAndAdvancesCursor(t *testing.T) {
	bus := NewBus(nil, testLogger())
	cursors := NewMemoryCursorStore()

	ledger := &mockLedger{
		streamFn: func(ctx context.Context, account, cursor string, handler func(*stellar.Transaction)) error {
			assert.Equal(t, watchedAccount, account)
			assert.Equal(t, "now", cursor)
			handler(streamedTx("101"))
			handler(streamedTx("102"))
			<-ctx.Done()
			return ctx.Err()
		},
		opsFn: func(_ context.Context, hash string) ([]stellar.Operation, error) {
			return incomingOps("op-" + hash), nil
		},
	}

	received := &collector{}
	defer bus.Subscribe(TopicTransactionReceived, received.handler())()

	l := NewLiveSyncer(watchedAccount, ledger, bus, cursors, 0, nil, testLogger())
	l.Start(context.Background())
	defer l.Stop()

	require.Eventually(t, func() bool { return received.len() == 2 }, 2*time.Second, 10*time.Millisecond)

	events := received.snapshot()
	first := events[0].(TransactionReceived)
	assert.Equal(t, watchedAccount, first.Account)
	assert.Equal(t, "op-hash-101", first.Record.ID)
	assert.Equal(t, stellar.DirectionIncoming, first.Record.Direction)

	cursor, err := cursors.Load(context.Background(), watchedAccount)
	require.NoError(t, err)
	assert.Equal(t, "102", cursor)

	assert.Equal(t, StateStreaming, l.State())
}

func TestLive_ReconnectResumesFromLastCursor(t *testing.T) {
	bus := NewBus(nil, testLogger())
	cursors := NewMemoryCursorStore()

	var mu gosync.Mutex
	var attemptCursors []string

	ledger := &mockLedger{
		streamFn: func(ctx context.Context, _ string, cursor string, handler func(*stellar.Transaction)) error {
			mu.Lock()
			attemptCursors = append(attemptCursors, cursor)
			attempt := len(attemptCursors)
			mu.Unlock()

			if attempt == 1 {
				handler(streamedTx("5"))
				return errors.New("stream reset by peer")
			}
			<-ctx.Done()
			return ctx.Err()
		},
		opsFn: func(_ context.Context, hash string) ([]stellar.Operation, error) {
			return incomingOps("op-" + hash), nil
		},
	}

	l := NewLiveSyncer(watchedAccount, ledger, bus, cursors, 0, nil, testLogger())
	l.Start(context.Background())
	defer l.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attemptCursors) >= 2
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "now", attemptCursors[0])
	assert.Equal(t, "5", attemptCursors[1], "reconnect must resume from the last processed cursor")
}

func TestLive_OperationFetchFailureRedelivers(t *testing.T) {
	bus := NewBus(nil, testLogger())
	cursors := NewMemoryCursorStore()

	var mu gosync.Mutex
	var attemptCursors []string
	var opCalls int

	ledger := &mockLedger{
		streamFn: func(ctx context.Context, _ string, cursor string, handler func(*stellar.Transaction)) error {
			mu.Lock()
			attemptCursors = append(attemptCursors, cursor)
			mu.Unlock()

			handler(streamedTx("9"))
			<-ctx.Done()
			return ctx.Err()
		},
		opsFn: func(context.Context, string) ([]stellar.Operation, error) {
			mu.Lock()
			opCalls++
			call := opCalls
			mu.Unlock()
			if call == 1 {
				return nil, &stellar.FetchError{Op: "operations", Err: errors.New("503")}
			}
			return incomingOps("op-9"), nil
		},
	}

	received := &collector{}
	defer bus.Subscribe(TopicTransactionReceived, received.handler())()

	l := NewLiveSyncer(watchedAccount, ledger, bus, cursors, 0, nil, testLogger())
	l.Start(context.Background())
	defer l.Stop()

	// Nothing published from the failed processing attempt; the transaction
	// comes around again on the next connection, from the unadvanced cursor.
	require.Eventually(t, func() bool { return received.len() == 1 }, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(attemptCursors), 2)
	assert.Equal(t, "now", attemptCursors[0])
	assert.Equal(t, "now", attemptCursors[1], "cursor must not advance past an unprocessed transaction")
}

func TestLive_ErrorEventOnSecondConsecutiveFailure(t *testing.T) {
	bus := NewBus(nil, testLogger())

	var mu gosync.Mutex
	var attempts int

	ledger := &mockLedger{
		streamFn: func(ctx context.Context, _, _ string, _ func(*stellar.Transaction)) error {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n <= 2 {
				return errors.New("connect: connection refused")
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}

	errEvents := &collector{}
	defer bus.Subscribe(TopicError, errEvents.handler())()

	l := NewLiveSyncer(watchedAccount, ledger, bus, NewMemoryCursorStore(), 0, nil, testLogger())
	l.Start(context.Background())
	defer l.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 3
	}, 10*time.Second, 20*time.Millisecond)

	// One event for the episode, published when the first reconnect also
	// failed, not one per attempt.
	require.Equal(t, 1, errEvents.len())
	ev := errEvents.snapshot()[0].(SyncError)
	assert.Equal(t, "stream", ev.Phase)
	assert.Equal(t, watchedAccount, ev.Account)
	assert.NotEmpty(t, ev.Message)
}

func TestLive_StopIsIdempotentAndSynchronous(t *testing.T) {
	bus := NewBus(nil, testLogger())

	streaming := make(chan struct{})
	ledger := &mockLedger{
		streamFn: func(ctx context.Context, _, _ string, _ func(*stellar.Transaction)) error {
			close(streaming)
			<-ctx.Done()
			return ctx.Err()
		},
	}

	l := NewLiveSyncer(watchedAccount, ledger, bus, nil, 0, nil, testLogger())
	assert.Equal(t, StateDisconnected, l.State())

	l.Start(context.Background())
	<-streaming

	l.Stop()
	assert.Equal(t, StateDisconnected, l.State())

	assert.NotPanics(t, func() { l.Stop() })
}

func TestLive_StartWhileRunningIsNoOp(t *testing.T) {
	bus := NewBus(nil, testLogger())

	var mu gosync.Mutex
	var streams int
	ledger := &mockLedger{
		streamFn: func(ctx context.Context, _, _ string, _ func(*stellar.Transaction)) error {
			mu.Lock()
			streams++
			mu.Unlock()
			<-ctx.Done()
			return ctx.Err()
		},
	}

	l := NewLiveSyncer(watchedAccount, ledger, bus, nil, 0, nil, testLogger())
	l.Start(context.Background())
	defer l.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return streams == 1
	}, 2*time.Second, 10*time.Millisecond)

	l.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, streams)
}
