package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"meeting-booking-api/internal/logger"
)

// RabbitMQPublisher publishes to a durable topic exchange over one channel.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *logger.Logger
	mu       sync.Mutex
}

func NewRabbitMQPublisher(url string, log *logger.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	log.Info("RabbitMQ publisher connected", "exchange", ExchangeName)

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  ch,
		exchange: ExchangeName,
		logger:   log,
	}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.logger.Debug("message published",
		"routing_key", routingKey,
		"size", len(payload),
	)
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.logger.Warn("error closing channel", "error", err)
	}
	if err := p.conn.Close(); err != nil {
		return err
	}

	p.logger.Info("RabbitMQ publisher closed")
	return nil
}
