package events

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"meeting-booking-api/internal/logger"
)

type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout     time.Duration
	MaxRequests uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		MaxRequests:      1,
	}
}

// BreakerPublisher stops calling a failing broker until the breaker half-opens.
// While open, Publish returns gobreaker.ErrOpenState without touching next.
type BreakerPublisher struct {
	next    Publisher
	breaker *gobreaker.CircuitBreaker[any]
}

func NewBreakerPublisher(next Publisher, cfg BreakerConfig, log *logger.Logger) *BreakerPublisher {
	settings := gobreaker.Settings{
		Name:        "event-publisher",
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &BreakerPublisher{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

func (p *BreakerPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.next.Publish(ctx, routingKey, payload)
	})
	return err
}

func (p *BreakerPublisher) State() gobreaker.State {
	return p.breaker.State()
}

func (p *BreakerPublisher) Close() error {
	return p.next.Close()
}
