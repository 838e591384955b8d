// Package client is a Go client for the lumenwatch HTTP API.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/lumenwatch/service/stellar"
)

// PaymentsResult is the response of a history backfill.
type PaymentsResult struct {
	Account  string                   `json:"account"`
	Count    int                      `json:"count"`
	Payments []*stellar.PaymentRecord `json:"payments"`
}

// BalancesResult is the response of a balance refresh.
type BalancesResult struct {
	Account  string             `json:"account"`
	Balances stellar.BalanceMap `json:"balances"`
}

// WatcherStatus reports an account's live sync state.
type WatcherStatus struct {
	Account string `json:"account"`
	State   string `json:"state"`
}

// StreamEvent is one decoded SSE event from the payment stream.
type StreamEvent struct {
	// Name is the SSE event name: "transaction", "balances", or "error".
	Name string
	// Data is the raw JSON payload.
	Data json.RawMessage
}

// Client is the HTTP client for the lumenwatch service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a service client. A nil httpClient gets a 30s-timeout
// default; a nil logger discards.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// FetchPayments runs a history backfill for the account. limit <= 0 uses
// the server default.
func (c *Client) FetchPayments(ctx context.Context, account string, limit int) (*PaymentsResult, error) {
	u := fmt.Sprintf("%s/api/v1/payments/%s", c.baseURL, url.PathEscape(account))
	if limit > 0 {
		u = fmt.Sprintf("%s?limit=%d", u, limit)
	}

	var result PaymentsResult
	if err := c.getJSON(ctx, u, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RefreshBalances refreshes and returns the account's balances.
func (c *Client) RefreshBalances(ctx context.Context, account string) (*BalancesResult, error) {
	u := fmt.Sprintf("%s/api/v1/balances/%s", c.baseURL, url.PathEscape(account))

	var result BalancesResult
	if err := c.getJSON(ctx, u, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartWatch starts live sync for the account on the server.
func (c *Client) StartWatch(ctx context.Context, account string) (*WatcherStatus, error) {
	u := fmt.Sprintf("%s/api/v1/watchers/%s", c.baseURL, url.PathEscape(account))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var status WatcherStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	c.logger.Debug("watcher started", "account", account, "state", status.State)
	return &status, nil
}

// StopWatch stops live sync for the account on the server.
func (c *Client) StopWatch(ctx context.Context, account string) error {
	u := fmt.Sprintf("%s/api/v1/watchers/%s", c.baseURL, url.PathEscape(account))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}
	c.logger.Debug("watcher stopped", "account", account)
	return nil
}

// WatchState reports the account's live sync state.
func (c *Client) WatchState(ctx context.Context, account string) (*WatcherStatus, error) {
	u := fmt.Sprintf("%s/api/v1/watchers/%s", c.baseURL, url.PathEscape(account))

	var status WatcherStatus
	if err := c.getJSON(ctx, u, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// StreamPayments connects to the account's SSE stream and delivers decoded
// events on the returned channel until ctx is canceled or the connection
// drops, after which the channel is closed. The caller owns reconnects.
func (c *Client) StreamPayments(ctx context.Context, account string) (<-chan StreamEvent, error) {
	u := fmt.Sprintf("%s/api/v1/stream/payments/%s", c.baseURL, url.PathEscape(account))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// SSE needs a client without a response timeout.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.parseErrorResponse(resp)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var name string
		var data []byte
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = []byte(strings.TrimPrefix(line, "data: "))
			case line == "" && name != "":
				select {
				case events <- StreamEvent{Name: name, Data: data}:
				case <-ctx.Done():
					return
				}
				name, data = "", nil
			}
		}
	}()

	c.logger.Debug("payment stream connected", "account", account)
	return events, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) parseErrorResponse(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("server error (status %d): %s", resp.StatusCode, body.Error)
}
