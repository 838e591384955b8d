package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/brojonat/lumenwatch/service/metrics"
	syncpkg "github.com/brojonat/lumenwatch/service/sync"
)

// sseEvent is one event flushed to a connected SSE client.
type sseEvent struct {
	name string
	data any
}

// sseBufferSize bounds per-client buffering. A client that cannot keep up
// has events dropped rather than stalling the bus.
const sseBufferSize = 32

// handleStreamPayments streams an account's bus events over Server-Sent
// Events: transaction.received and balances.updated for the account, plus
// sync.error. The subscription lives exactly as long as the connection.
// GET /api/v1/stream/payments/{account}
func handleStreamPayments(syncer Syncer, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := r.PathValue("account")
		if err := validateAccount(account); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		if m != nil {
			m.SSEConnected()
			defer m.SSEDisconnected()
		}
		logger.DebugContext(r.Context(), "SSE client connected",
			"account", account,
			"remote_addr", r.RemoteAddr,
		)

		events := make(chan sseEvent, sseBufferSize)
		enqueue := func(name string, data any) {
			select {
			case events <- sseEvent{name: name, data: data}:
			default:
				logger.WarnContext(r.Context(), "dropping SSE event for slow client",
					"account", account,
					"event", name,
				)
			}
		}

		bus := syncer.Bus()
		unsubTx := bus.Subscribe(syncpkg.TopicTransactionReceived, func(event any) {
			if e, ok := event.(syncpkg.TransactionReceived); ok && e.Account == account {
				enqueue("transaction", e)
			}
		})
		defer unsubTx()
		unsubBal := bus.Subscribe(syncpkg.TopicBalancesUpdated, func(event any) {
			if e, ok := event.(syncpkg.BalancesUpdated); ok && e.Account == account {
				enqueue("balances", e)
			}
		})
		defer unsubBal()
		unsubErr := bus.Subscribe(syncpkg.TopicError, func(event any) {
			if e, ok := event.(syncpkg.SyncError); ok && (e.Account == "" || e.Account == account) {
				enqueue("error", e)
			}
		})
		defer unsubErr()

		for {
			select {
			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected", "account", account)
				return
			case ev := <-events:
				data, err := json.Marshal(ev.data)
				if err != nil {
					logger.ErrorContext(r.Context(), "failed to marshal SSE event",
						"event", ev.name,
						"error", err,
					)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, data)
				flusher.Flush()
			}
		}
	})
}
