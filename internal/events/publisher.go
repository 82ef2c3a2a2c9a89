package events

import (
	"context"

	"meeting-booking-api/internal/logger"
)

const ExchangeName = "meetings.events"

// Publisher delivers a payload to every consumer bound to routingKey.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct {
	logger *logger.Logger
}

func NewNoopPublisher(log *logger.Logger) *NoopPublisher {
	return &NoopPublisher{logger: log}
}

func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.logger.Debug("noop publish",
		"routing_key", routingKey,
		"size", len(payload),
	)
	return nil
}

func (p *NoopPublisher) Close() error {
	return nil
}
