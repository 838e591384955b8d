package sync

import (
	"context"
	"errors"
	"sort"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/lumenwatch/service/stellar"
)

const (
	watchedAccount = "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"
	counterparty   = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
)

func historyTx(id, hash string, created time.Time) *stellar.Transaction {
	return &stellar.Transaction{
		ID:         id,
		Hash:       hash,
		CreatedAt:  created,
		Successful: true,
	}
}

func paymentTo(id, to, amt string) stellar.Operation {
	return stellar.PaymentOp{
		ID:     id,
		From:   counterparty,
		To:     to,
		Amount: amt,
	}
}

func TestHistory_FetchPayments(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	ledger := &mockLedger{
		listFn: func(_ context.Context, account string, limit int, cursor string) ([]*stellar.Transaction, error) {
			assert.Equal(t, watchedAccount, account)
			assert.Equal(t, 10, limit)
			assert.Empty(t, cursor)
			return []*stellar.Transaction{
				historyTx("3", "h3", base.Add(2*time.Hour)),
				historyTx("2", "h2", base.Add(time.Hour)),
				historyTx("1", "h1", base),
			}, nil
		},
		opsFn: func(_ context.Context, hash string) ([]stellar.Operation, error) {
			switch hash {
			case "h3":
				return []stellar.Operation{paymentTo("31", watchedAccount, "3.0000000")}, nil
			case "h2":
				return []stellar.Operation{stellar.OtherOp{ID: "21", Type: "change_trust"}}, nil
			case "h1":
				return []stellar.Operation{
					paymentTo("11", watchedAccount, "1.0000000"),
					paymentTo("12", counterparty, "0.5000000"),
				}, nil
			}
			return nil, errors.New("unexpected hash")
		},
	}

	h := NewHistorySyncer(ledger, 2, nil, testLogger())
	records, err := h.FetchPayments(context.Background(), watchedAccount, 10)
	require.NoError(t, err)

	// h2 carries no payments; h1 contributes two records in operation order.
	require.Len(t, records, 3)
	assert.Equal(t, "31", records[0].ID)
	assert.Equal(t, "11", records[1].ID)
	assert.Equal(t, "12", records[2].ID)

	assert.True(t, sort.SliceIsSorted(records, func(i, j int) bool {
		return records[i].Date.After(records[j].Date)
	}))
	assert.Equal(t, stellar.DirectionIncoming, records[0].Direction)
	assert.Equal(t, stellar.DirectionOutgoing, records[2].Direction)
}

func TestHistory_AccountNotFoundYieldsEmptyHistory(t *testing.T) {
	ledger := &mockLedger{
		listFn: func(context.Context, string, int, string) ([]*stellar.Transaction, error) {
			return nil, stellar.ErrAccountNotFound
		},
	}

	h := NewHistorySyncer(ledger, 0, nil, testLogger())
	records, err := h.FetchPayments(context.Background(), watchedAccount, 10)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestHistory_ListFailureFailsCall(t *testing.T) {
	upstream := &stellar.FetchError{Op: "transactions", Err: errors.New("boom")}
	ledger := &mockLedger{
		listFn: func(context.Context, string, int, string) ([]*stellar.Transaction, error) {
			return nil, upstream
		},
	}

	h := NewHistorySyncer(ledger, 0, nil, testLogger())
	records, err := h.FetchPayments(context.Background(), watchedAccount, 10)
	assert.Nil(t, records)

	var fetchErr *stellar.FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestHistory_OperationFetchFailureDegradesOneTransaction(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	ledger := &mockLedger{
		listFn: func(context.Context, string, int, string) ([]*stellar.Transaction, error) {
			return []*stellar.Transaction{
				historyTx("2", "h2", base.Add(time.Hour)),
				historyTx("1", "h1", base),
			}, nil
		},
		opsFn: func(_ context.Context, hash string) ([]stellar.Operation, error) {
			if hash == "h2" {
				return nil, errors.New("operations endpoint unavailable")
			}
			return []stellar.Operation{paymentTo("11", watchedAccount, "1.0000000")}, nil
		},
	}

	h := NewHistorySyncer(ledger, 0, nil, testLogger())
	records, err := h.FetchPayments(context.Background(), watchedAccount, 10)
	require.NoError(t, err)

	// The failed transaction contributes nothing; the rest of the backfill
	// survives.
	require.Len(t, records, 1)
	assert.Equal(t, "11", records[0].ID)
}

func TestHistory_ConcurrencyIsBounded(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	txns := make([]*stellar.Transaction, 20)
	for i := range txns {
		txns[i] = historyTx("id", "h", base.Add(time.Duration(i)*time.Minute))
	}

	var mu gosync.Mutex
	inFlight, peak := 0, 0

	ledger := &mockLedger{
		listFn: func(context.Context, string, int, string) ([]*stellar.Transaction, error) {
			return txns, nil
		},
		opsFn: func(context.Context, string) ([]stellar.Operation, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil, nil
		},
	}

	h := NewHistorySyncer(ledger, 3, nil, testLogger())
	_, err := h.FetchPayments(context.Background(), watchedAccount, 20)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 3)
	assert.Positive(t, peak)
}

func TestHistory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ledger := &mockLedger{
		listFn: func(context.Context, string, int, string) ([]*stellar.Transaction, error) {
			return []*stellar.Transaction{historyTx("1", "h1", time.Now())}, nil
		},
		opsFn: func(gctx context.Context, _ string) ([]stellar.Operation, error) {
			cancel()
			<-gctx.Done()
			return nil, gctx.Err()
		},
	}

	h := NewHistorySyncer(ledger, 0, nil, testLogger())
	_, err := h.FetchPayments(ctx, watchedAccount, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
