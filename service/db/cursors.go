// Package db provides optional Postgres persistence for stream cursors, so
// live sync can resume after a process restart instead of starting from
// "now". The engine itself owns no other persisted state.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CursorStore persists one opaque stream cursor per account in Postgres.
// It satisfies sync.CursorStore.
type CursorStore struct {
	pool *pgxpool.Pool
}

// NewCursorStore creates a cursor store backed by the given connection pool.
func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Load returns the stored cursor for the account, or "" when none exists.
func (s *CursorStore) Load(ctx context.Context, account string) (string, error) {
	var cursor string
	err := s.pool.QueryRow(ctx,
		`SELECT cursor FROM sync_cursors WHERE account = $1`,
		account,
	).Scan(&cursor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("load cursor for %s: %w", account, err)
	}
	return cursor, nil
}

// Save overwrites the account's cursor.
func (s *CursorStore) Save(ctx context.Context, account, cursor string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_cursors (account, cursor, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (account) DO UPDATE
		 SET cursor = EXCLUDED.cursor, updated_at = now()`,
		account, cursor,
	)
	if err != nil {
		return fmt.Errorf("save cursor for %s: %w", account, err)
	}
	return nil
}
