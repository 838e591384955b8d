// Package session defines the wallet-session boundary the sync engine
// depends on. The engine only ever asks two things of a session — which
// account is current, and whether a session is active — and observes
// connect/disconnect as explicit change events rather than polling.
// Wallet connection and signing live entirely on the other side of this
// boundary.
package session

import (
	"sync"
)

// Status describes a session at a point in time.
type Status struct {
	Account string
	Active  bool
}

// Provider is the session collaborator contract.
type Provider interface {
	// CurrentAccount returns the active session's account identifier,
	// or ok=false when no session is active.
	CurrentAccount() (account string, ok bool)

	// Active reports whether a session is active.
	Active() bool

	// OnChange registers a listener invoked on every connect, disconnect,
	// or account switch. The returned function unregisters it.
	OnChange(func(Status)) (unsubscribe func())
}

// MemoryProvider is an in-process Provider for embedding the engine in a
// host application (and for tests): the host calls Connect/Disconnect as
// its wallet layer changes state.
type MemoryProvider struct {
	mu        sync.Mutex
	account   string
	active    bool
	nextID    int
	listeners map[int]func(Status)
}

// NewMemoryProvider creates a provider with no active session.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{listeners: make(map[int]func(Status))}
}

func (p *MemoryProvider) CurrentAccount() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return "", false
	}
	return p.account, true
}

func (p *MemoryProvider) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *MemoryProvider) OnChange(fn func(Status)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Connect marks the session active for the given account and notifies
// listeners. Connecting while already connected to a different account is
// reported as a single change to the new account.
func (p *MemoryProvider) Connect(account string) {
	p.mu.Lock()
	p.account = account
	p.active = true
	status := Status{Account: account, Active: true}
	listeners := p.snapshot()
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
}

// Disconnect clears the session and notifies listeners.
func (p *MemoryProvider) Disconnect() {
	p.mu.Lock()
	account := p.account
	p.account = ""
	p.active = false
	status := Status{Account: account, Active: false}
	listeners := p.snapshot()
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
}

// snapshot must be called with p.mu held.
func (p *MemoryProvider) snapshot() []func(Status) {
	out := make([]func(Status), 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}
