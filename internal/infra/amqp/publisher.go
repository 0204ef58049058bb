// Package amqp publishes domain events to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"examprep-service/internal/events"
	"examprep-service/internal/logger"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends JSON events with persistent delivery. A Publisher built from an empty
// URL is disabled and only logs.
type Publisher struct {
	conn     *amqp091.Connection
	ch       channel
	exchange string
	enabled  bool
	log      *logger.Logger
	clock    func() time.Time
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(url, exchange string, log *logger.Logger) (*Publisher, error) {
	if url == "" {
		log.Warn("amqp url is empty, event publishing is disabled")
		return &Publisher{log: log, clock: time.Now}, nil
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Publisher{conn: conn, ch: ch, exchange: exchange, enabled: true, log: log, clock: time.Now}, nil
}

// newWithChannel builds an enabled publisher over an existing channel (tests).
func newWithChannel(ch channel, exchange string, log *logger.Logger, clock func() time.Time) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, enabled: true, log: log, clock: clock}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, event any) error {
	if !p.enabled {
		p.log.Debug("event publishing disabled, skipping", "routing_key", routingKey)
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(pubCtx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    p.clock(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.log.Debug("event published", "routing_key", routingKey, "exchange", p.exchange)
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.ch.Close(); err != nil {
		p.log.Warn("close amqp channel", "error", err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("close amqp connection: %w", err)
		}
	}
	return nil
}
