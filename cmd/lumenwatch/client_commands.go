package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/lumenwatch/client"
)

func newAPIClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server"), nil, nil)
}

func paymentsCommand() *cli.Command {
	return &cli.Command{
		Name:      "payments",
		Usage:     "Backfill and print an account's payment history",
		ArgsUsage: "ACCOUNT",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of transactions to backfill",
			},
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to the JSON output",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account address is required")
			}

			result, err := newAPIClient(c).FetchPayments(context.Background(), c.Args().Get(0), c.Int("limit"))
			if err != nil {
				return err
			}
			return printJSON(result, c.String("filter"))
		},
	}
}

func balancesCommand() *cli.Command {
	return &cli.Command{
		Name:      "balances",
		Usage:     "Refresh and print an account's balances",
		ArgsUsage: "ACCOUNT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to the JSON output",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account address is required")
			}

			result, err := newAPIClient(c).RefreshBalances(context.Background(), c.Args().Get(0))
			if err != nil {
				return err
			}
			return printJSON(result, c.String("filter"))
		},
	}
}

func watchStartCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start live payment sync for an account",
		ArgsUsage: "ACCOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account address is required")
			}

			status, err := newAPIClient(c).StartWatch(context.Background(), c.Args().Get(0))
			if err != nil {
				return err
			}
			return printJSON(status, "")
		},
	}
}

func watchStopCommand() *cli.Command {
	return &cli.Command{
		Name:      "stop",
		Usage:     "Stop live payment sync for an account",
		ArgsUsage: "ACCOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account address is required")
			}

			if err := newAPIClient(c).StopWatch(context.Background(), c.Args().Get(0)); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "watcher stopped")
			return nil
		},
	}
}

func watchStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show an account's live sync state",
		ArgsUsage: "ACCOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account address is required")
			}

			status, err := newAPIClient(c).WatchState(context.Background(), c.Args().Get(0))
			if err != nil {
				return err
			}
			return printJSON(status, "")
		},
	}
}

func watchStreamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Follow an account's live payment events (SSE), printing one JSON line per event",
		ArgsUsage: "ACCOUNT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to each event payload",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account address is required")
			}
			account := c.Args().Get(0)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			events, err := newAPIClient(c).StreamPayments(ctx, account)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "streaming payments for %s (ctrl-c to stop)...\n", account)
			for ev := range events {
				var payload any
				if err := json.Unmarshal(ev.Data, &payload); err != nil {
					fmt.Fprintf(os.Stderr, "bad event payload: %v\n", err)
					continue
				}
				if err := printJSON(map[string]any{"event": ev.Name, "data": payload}, c.String("filter")); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Action: func(c *cli.Context) error {
			resp, err := http.Get(c.String("server") + "/health")
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy (status %d): %s", resp.StatusCode, body)
			}
			fmt.Println(string(body))
			return nil
		},
	}
}

// printJSON pretty-prints v, optionally through a gojq filter expression.
func printJSON(v any, filter string) error {
	if filter == "" {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("invalid filter %q: %w", filter, err)
	}

	// gojq operates on generic JSON values, so round-trip through encoding.
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return err
	}

	iter := query.Run(value)
	for {
		result, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("filter error: %w", err)
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}
