package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stellar/go/clients/horizonclient"

	"github.com/brojonat/lumenwatch/service/config"
	"github.com/brojonat/lumenwatch/service/db"
	"github.com/brojonat/lumenwatch/service/metrics"
	natspkg "github.com/brojonat/lumenwatch/service/nats"
	"github.com/brojonat/lumenwatch/service/server"
	"github.com/brojonat/lumenwatch/service/stellar"
	syncpkg "github.com/brojonat/lumenwatch/service/sync"
)

func main() {
	// Load and validate configuration from environment; fails fast if any
	// required config is missing or invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"horizon_url", cfg.HorizonURL,
		"network", cfg.NetworkPassphrase,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(nil)

	// Cursor persistence is optional: without a database, live sync resumes
	// from "now" after a restart.
	var cursors syncpkg.CursorStore = syncpkg.NewMemoryCursorStore()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		cursors = db.NewCursorStore(pool)
		logger.Info("cursor persistence enabled")
	}

	// Horizon client
	horizon := &horizonclient.Client{
		HorizonURL: cfg.HorizonURL,
		HTTP:       http.DefaultClient,
	}
	ledger := stellar.NewClient(horizon, endpointLabel(cfg.HorizonURL), m, logger)
	logger.Info("initialized horizon client", "url", cfg.HorizonURL)

	bus := syncpkg.NewBus(m, logger)
	manager := syncpkg.NewManager(ledger, bus, cursors, cfg.OperationConcurrency, cfg.StreamMaxReconnectWait, m, logger)
	defer manager.StopAll()

	// Optional outbound NATS bridge for external consumers.
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		detach := natspkg.Bridge(bus, publisher, logger)
		defer detach()
		logger.Info("NATS event bridge enabled", "url", cfg.NATSURL)
	}

	httpServer := server.New(cfg.ServerAddr, ctx, manager, cfg.HistoryFetchLimit, m, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		// Stop live subscriptions before the deferred publisher/pool closes.
		manager.StopAll()
		logger.Info("server shutdown complete")
	}
}

// endpointLabel derives a low-cardinality metrics label from the Horizon URL.
func endpointLabel(horizonURL string) string {
	u, err := url.Parse(horizonURL)
	if err != nil || u.Host == "" {
		return "horizon"
	}
	return u.Host
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
