package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/stellar/go/strkey"

	"github.com/brojonat/lumenwatch/service/stellar"
)

const maxHistoryLimit = 200

type errorResponse struct {
	Error string `json:"error"`
}

type paymentsResponse struct {
	Account  string                   `json:"account"`
	Count    int                      `json:"count"`
	Payments []*stellar.PaymentRecord `json:"payments"`
}

type balancesResponse struct {
	Account  string             `json:"account"`
	Balances stellar.BalanceMap `json:"balances"`
}

type watcherResponse struct {
	Account string `json:"account"`
	State   string `json:"state"`
}

// handleFetchPayments returns a handler that runs a history backfill.
// GET /api/v1/payments/{account}?limit={n}
func handleFetchPayments(syncer Syncer, defaultLimit int, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := r.PathValue("account")
		if err := validateAccount(account); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit := defaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > maxHistoryLimit {
				writeError(w, fmt.Sprintf("limit must be an integer between 1 and %d", maxHistoryLimit), http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		payments, err := syncer.FetchPayments(r.Context(), account, limit)
		if err != nil {
			logger.Error("backfill failed", "account", account, "error", err)
			writeUpstreamError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, paymentsResponse{
			Account:  account,
			Count:    len(payments),
			Payments: payments,
		})
	})
}

// handleRefreshBalances returns a handler that refreshes account balances.
// GET /api/v1/balances/{account}
// An account absent from the ledger yields an empty balance map, per the
// engine's not-found semantics.
func handleRefreshBalances(syncer Syncer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := r.PathValue("account")
		if err := validateAccount(account); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		balances, err := syncer.RefreshBalances(r.Context(), account)
		if err != nil {
			logger.Error("balance refresh failed", "account", account, "error", err)
			writeUpstreamError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, balancesResponse{
			Account:  account,
			Balances: balances,
		})
	})
}

// handleStartWatch returns a handler that starts live sync for an account.
// POST /api/v1/watchers/{account}
// The subscription is parented on the server's base context, not the
// request's, so it outlives this request.
func handleStartWatch(baseCtx context.Context, syncer Syncer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := r.PathValue("account")
		if err := validateAccount(account); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		syncer.StartLive(baseCtx, account)
		logger.Info("watcher started", "account", account)

		writeJSON(w, http.StatusCreated, watcherResponse{
			Account: account,
			State:   string(syncer.LiveState(account)),
		})
	})
}

// handleStopWatch returns a handler that stops live sync for an account.
// DELETE /api/v1/watchers/{account}
// Stopping an account that is not being watched is a no-op, not an error.
func handleStopWatch(syncer Syncer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := r.PathValue("account")
		if err := validateAccount(account); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		syncer.StopLive(account)
		logger.Info("watcher stopped", "account", account)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleGetWatch returns a handler reporting the live sync state.
// GET /api/v1/watchers/{account}
func handleGetWatch(syncer Syncer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := r.PathValue("account")
		if err := validateAccount(account); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeJSON(w, http.StatusOK, watcherResponse{
			Account: account,
			State:   string(syncer.LiveState(account)),
		})
	})
}

// validateAccount checks the path parameter is a Stellar ed25519 public key.
func validateAccount(account string) error {
	if account == "" {
		return fmt.Errorf("account is required")
	}
	if !strkey.IsValidEd25519PublicKey(account) {
		return fmt.Errorf("invalid account address")
	}
	return nil
}

// writeUpstreamError maps engine errors onto HTTP statuses.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var fetchErr *stellar.FetchError
	switch {
	case errors.Is(err, stellar.ErrAccountNotFound):
		writeError(w, "account not found on ledger", http.StatusNotFound)
	case errors.As(err, &fetchErr):
		writeError(w, "upstream ledger request failed", http.StatusBadGateway)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, "request canceled", 499)
	default:
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Too late to change the status; nothing else to do.
		_ = err
	}
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorResponse{Error: msg})
}
