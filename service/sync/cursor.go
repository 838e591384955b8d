package sync

import (
	"context"
	"sync"
)

// CursorStore persists the last successfully processed stream cursor per
// account. The cursor is an opaque ledger-assigned string, overwritten on
// each advance; it exists only so a broken stream can resume, and is never
// exposed outside the sync subsystem.
//
// Load returns ("", nil) when no cursor has been saved for the account;
// the live sync then starts from "now".
type CursorStore interface {
	Load(ctx context.Context, account string) (string, error)
	Save(ctx context.Context, account, cursor string) error
}

// MemoryCursorStore keeps cursors in process memory. This is the default:
// a restart simply resumes from "now".
type MemoryCursorStore struct {
	mu      sync.RWMutex
	cursors map[string]string
}

// NewMemoryCursorStore creates an empty in-memory cursor store.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]string)}
}

func (s *MemoryCursorStore) Load(_ context.Context, account string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[account], nil
}

func (s *MemoryCursorStore) Save(_ context.Context, account, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[account] = cursor
	return nil
}
