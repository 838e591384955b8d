package nats

import (
	"sync"

	syncpkg "github.com/brojonat/lumenwatch/service/sync"
)

// MockPublisher is a Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	published    []*syncpkg.TransactionReceived
	publishError error
	closed       bool
}

// NewMockPublisher creates a mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishPayment records the event and returns any configured error.
func (m *MockPublisher) PublishPayment(event *syncpkg.TransactionReceived) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.published = append(m.published, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetPublishError makes subsequent publishes fail with err.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Published returns a copy of all published events.
func (m *MockPublisher) Published() []*syncpkg.TransactionReceived {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*syncpkg.TransactionReceived, len(m.published))
	copy(out, m.published)
	return out
}

// Closed reports whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
