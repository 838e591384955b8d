// Package nats bridges the in-process event bus to NATS so consumers
// outside the process can follow payment activity. The bridge is optional
// and fire-and-forget: the engine's own delivery guarantees live on the
// in-process bus, not here.
package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	syncpkg "github.com/brojonat/lumenwatch/service/sync"
)

// SubjectPrefix is the subject namespace for payment events:
// payments.<account>.
const SubjectPrefix = "payments"

// Publisher is the outbound publishing contract, narrow so tests can
// substitute a mock.
type Publisher interface {
	// PublishPayment publishes one classified payment event to the
	// account's subject.
	PublishPayment(event *syncpkg.TransactionReceived) error

	// Close closes the connection.
	Close() error
}

// NATSPublisher publishes payment events to core NATS subjects.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewPublisher connects to NATS.
func NewPublisher(natsURL string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("lumenwatch-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS publisher initialized", "url", natsURL)
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

// PublishPayment publishes a payment event to payments.<account>.
func (p *NATSPublisher) PublishPayment(event *syncpkg.TransactionReceived) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payment event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, event.Account)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish payment event: %w", err)
	}

	p.logger.Debug("published payment event",
		"subject", subject,
		"record_id", event.Record.ID,
	)
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

// Bridge forwards transaction.received events from the in-process bus to a
// Publisher. Detach with the returned function; publish failures are logged
// and never propagate back into the bus.
func Bridge(bus *syncpkg.Bus, publisher Publisher, logger *slog.Logger) (detach func()) {
	return bus.Subscribe(syncpkg.TopicTransactionReceived, func(event any) {
		received, ok := event.(syncpkg.TransactionReceived)
		if !ok {
			return
		}
		if err := publisher.PublishPayment(&received); err != nil {
			logger.Error("failed to bridge payment event to NATS",
				"account", received.Account,
				"record_id", received.Record.ID,
				"error", err,
			)
		}
	})
}
