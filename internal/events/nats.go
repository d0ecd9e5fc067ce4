package events

import (
	"auction-marketplace/internal/metrics"
	model "auction-marketplace/internal/models"
	"auction-marketplace/utils"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes events on core NATS subjects
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("auction-marketplace"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// NewNATSPublisherFromConn wraps an existing connection
func NewNATSPublisherFromConn(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Subject returns the subject an event is published on. Addressed events go
// to the bidder's own subject.
func Subject(e model.Event) string {
	if e.IsAddressed() {
		return fmt.Sprintf("user.events.%s", e.BidderID)
	}
	return fmt.Sprintf("auction.events.%s.%s", e.AuctionID, e.Kind)
}

func (p *NATSPublisher) Publish(_ context.Context, events ...model.Event) {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			utils.Error("nats: failed to marshal event", map[string]any{"event_id": e.EventID, "error": err.Error()})
			continue
		}

		subject := Subject(e)
		if err := p.conn.Publish(subject, payload); err != nil {
			metrics.EventsPublished.WithLabelValues("nats", "error").Inc()
			utils.Warn("nats: failed to publish event", map[string]any{"subject": subject, "error": err.Error()})
			continue
		}
		metrics.EventsPublished.WithLabelValues("nats", "ok").Inc()
	}
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
