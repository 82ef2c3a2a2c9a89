package events

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-booking-api/internal/logger"
)

type flakyPublisher struct {
	err   error
	calls int
}

func (p *flakyPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.calls++
	return p.err
}

func (p *flakyPublisher) Close() error { return nil }

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher(logger.Discard())
	assert.NoError(t, p.Publish(context.Background(), "meeting.booked", []byte(`{}`)))
	assert.NoError(t, p.Close())
}

func TestBreakerPublisher_TripsAfterConsecutiveFailures(t *testing.T) {
	next := &flakyPublisher{err: errors.New("broker down")}
	cfg := DefaultBreakerConfig()
	cfg.Timeout = time.Hour
	p := NewBreakerPublisher(next, cfg, logger.Discard())

	for i := 0; i < 5; i++ {
		err := p.Publish(context.Background(), "meeting.booked", nil)
		assert.EqualError(t, err, "broker down")
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	err := p.Publish(context.Background(), "meeting.booked", nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, next.calls)
}

func TestBreakerPublisher_SuccessResetsCount(t *testing.T) {
	next := &flakyPublisher{err: errors.New("broker down")}
	p := NewBreakerPublisher(next, DefaultBreakerConfig(), logger.Discard())

	for i := 0; i < 4; i++ {
		_ = p.Publish(context.Background(), "meeting.booked", nil)
	}
	next.err = nil
	require.NoError(t, p.Publish(context.Background(), "meeting.booked", nil))

	next.err = errors.New("broker down")
	for i := 0; i < 4; i++ {
		_ = p.Publish(context.Background(), "meeting.booked", nil)
	}
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestRabbitMQPublisher(t *testing.T) {
	_ = godotenv.Load("../../.env")
	url := os.Getenv("AMQP_URL")
	if url == "" {
		t.Skip("AMQP_URL not set")
	}

	p, err := NewRabbitMQPublisher(url, logger.Discard())
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, p.Publish(ctx, "meeting.booked", []byte(`{"meeting_name":"test"}`)))
}
