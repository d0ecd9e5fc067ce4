// Package events fans committed bid-engine events out to observers. Delivery
// is best-effort: transports log failures and never fail the operation that
// produced the event.
package events

import (
	model "auction-marketplace/internal/models"
	"auction-marketplace/utils"
	"context"
	"sync"
	"time"
)

//go:generate mockgen -destination=mock_notifier.go -package=events auction-marketplace/internal/events Notifier

// Notifier delivers events to observers
type Notifier interface {
	Publish(ctx context.Context, events ...model.Event)
}

// Fanout publishes every event to each notifier in turn
type Fanout []Notifier

func (f Fanout) Publish(ctx context.Context, events ...model.Event) {
	for _, n := range f {
		n.Publish(ctx, events...)
	}
}

// Discard drops all events
type Discard struct{}

func (Discard) Publish(context.Context, ...model.Event) {}

// LogNotifier writes every event to the structured log
type LogNotifier struct{}

func (LogNotifier) Publish(_ context.Context, events ...model.Event) {
	for _, e := range events {
		utils.Info("event: "+string(e.Kind), map[string]any{
			"event_id":       e.EventID,
			"auction_id":     e.AuctionID,
			"bidder_id":      e.BidderID,
			"amount":         e.Amount,
			"is_auto_bid":    e.IsAutoBid,
			"winner_id":      e.WinnerID,
			"winning_amount": e.WinningAmount,
		})
	}
}

// Recorder keeps every published event in memory
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *Recorder) Publish(_ context.Context, events ...model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

// Events returns a copy of everything recorded so far
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

// OfKind returns recorded events of one kind
func (r *Recorder) OfKind(kind model.EventKind) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets all recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Async hands events to a background worker so publishers never wait on a
// transport. A single worker keeps per-auction order. Events are dropped
// with a warning when the buffer is full.
type Async struct {
	next    Notifier
	queue   chan []model.Event
	timeout time.Duration
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts a worker delivering to next
func NewAsync(next Notifier, buffer int, timeout time.Duration) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &Async{
		next:    next,
		queue:   make(chan []model.Event, buffer),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Publish(_ context.Context, events ...model.Event) {
	if len(events) == 0 {
		return
	}
	batch := append([]model.Event(nil), events...)

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- batch:
	default:
		utils.Warn("events: dispatch buffer full, dropping events", map[string]any{
			"auction_id": batch[0].AuctionID,
			"count":      len(batch),
		})
	}
}

func (a *Async) run() {
	defer close(a.done)
	for batch := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		a.next.Publish(ctx, batch...)
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be delivered
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}
