package events

import (
	"auction-marketplace/internal/metrics"
	model "auction-marketplace/internal/models"
	"auction-marketplace/utils"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange auction events are published to
const DefaultExchange = "auction.events"

// AMQPPublisher publishes events to a RabbitMQ topic exchange. Messages are
// persistent and routed by "<kind>.<auction_id>".
type AMQPPublisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares the exchange
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := &AMQPPublisher{url: url, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// RoutingKey returns the routing key for an event
func RoutingKey(e model.Event) string {
	return fmt.Sprintf("%s.%s", e.Kind, e.AuctionID)
}

// connect opens the connection and channel. Caller must hold mu or own p
// exclusively.
func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}
	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: exchange declare failed: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, events ...model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			metrics.EventsPublished.WithLabelValues("amqp", "error").Add(float64(len(events)))
			utils.Warn("rabbitmq: reconnect failed, dropping events", map[string]any{"count": len(events), "error": err.Error()})
			return
		}
	}

	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			utils.Error("rabbitmq: failed to marshal event", map[string]any{"event_id": e.EventID, "error": err.Error()})
			continue
		}

		pub := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.EventID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		}

		key := RoutingKey(e)
		if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, pub); err != nil {
			metrics.EventsPublished.WithLabelValues("amqp", "error").Inc()
			utils.Warn("rabbitmq: publish failed", map[string]any{"routing_key": key, "error": err.Error()})
			continue
		}
		metrics.EventsPublished.WithLabelValues("amqp", "ok").Inc()
	}
}

// Close closes the channel and the connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
