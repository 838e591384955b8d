package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/lumenwatch/service/metrics"
	"github.com/brojonat/lumenwatch/service/stellar"
	syncpkg "github.com/brojonat/lumenwatch/service/sync"
)

// Syncer is the slice of the sync manager the HTTP layer depends on.
// *sync.Manager satisfies it; tests substitute fakes.
type Syncer interface {
	FetchPayments(ctx context.Context, account string, limit int) ([]*stellar.PaymentRecord, error)
	RefreshBalances(ctx context.Context, account string) (stellar.BalanceMap, error)
	StartLive(ctx context.Context, account string)
	StopLive(account string)
	LiveState(account string) syncpkg.State
	Bus() *syncpkg.Bus
}

// Server is the HTTP front end for the payment feed engine.
type Server struct {
	addr         string
	syncer       Syncer
	defaultLimit int
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server

	// baseCtx parents all live subscriptions started over HTTP so shutdown
	// stops them.
	baseCtx context.Context
}

// New creates the HTTP server. defaultLimit applies when a payments request
// does not specify one. If m is nil, the /metrics endpoint is disabled.
func New(addr string, baseCtx context.Context, syncer Syncer, defaultLimit int, m *metrics.Metrics, logger *slog.Logger) *Server {
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	return &Server{
		addr:         addr,
		syncer:       syncer,
		defaultLimit: defaultLimit,
		metrics:      m,
		logger:       logger,
		baseCtx:      baseCtx,
	}
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/payments/{account}", handleFetchPayments(s.syncer, s.defaultLimit, s.logger))
	mux.Handle("GET /api/v1/balances/{account}", handleRefreshBalances(s.syncer, s.logger))
	mux.Handle("POST /api/v1/watchers/{account}", handleStartWatch(s.baseCtx, s.syncer, s.logger))
	mux.Handle("DELETE /api/v1/watchers/{account}", handleStopWatch(s.syncer, s.logger))
	mux.Handle("GET /api/v1/watchers/{account}", handleGetWatch(s.syncer, s.logger))
	mux.Handle("GET /api/v1/stream/payments/{account}", handleStreamPayments(s.syncer, s.metrics, s.logger))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	handler := corsMiddleware(s.instrument(mux))

	// WriteTimeout stays zero: long-lived SSE responses manage their own
	// lifetime.
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response status for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument records request count and duration per route pattern.
func (s *Server) instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		// Use the mux pattern, not the raw path, to keep label cardinality
		// bounded.
		_, pattern := next.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.RecordHTTPRequest(r.Method, pattern, fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
	})
}

// corsMiddleware adds CORS headers and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
