// Package settlement records payment outcomes for auctions that ended with a
// winner.
package settlement

import (
	"auction-marketplace/internal/biddingerrors"
	"auction-marketplace/internal/events"
	"auction-marketplace/internal/metrics"
	model "auction-marketplace/internal/models"
	"auction-marketplace/internal/repository"
	"auction-marketplace/utils"
	"context"
	"fmt"
	"time"
)

// Service bridges payment provider callbacks onto the auction lifecycle
type Service struct {
	repo        repository.AuctionDB
	notifier    events.Notifier
	now         func() time.Time
	maxAttempts int
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a settlement service. A nil notifier discards events.
func NewService(repo repository.AuctionDB, notifier events.Notifier, opts ...Option) *Service {
	if notifier == nil {
		notifier = events.Discard{}
	}
	s := &Service{
		repo:        repo,
		notifier:    notifier,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: repository.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConfirmPayment completes an auction once its winner has paid. A repeated
// confirmation returns ErrAlreadyPaid.
func (s *Service) ConfirmPayment(ctx context.Context, auctionID, bidderID string) (model.Auction, error) {
	committed, err := s.settle(ctx, "confirm_payment", auctionID, bidderID, func(a model.Auction) (model.Auction, error) {
		if a.Status == model.StatusCompleted && a.PaymentStatus == model.PaymentPaid {
			return a, fmt.Errorf("%w - auction %s", biddingerrors.ErrAlreadyPaid, a.AuctionID)
		}
		if err := awaitingPayment(a, bidderID); err != nil {
			return a, err
		}
		a.Status = model.StatusCompleted
		a.PaymentStatus = model.PaymentPaid
		return a, nil
	})
	if err != nil {
		return model.Auction{}, err
	}

	metrics.PaymentsSettled.WithLabelValues("paid").Inc()
	s.notifier.Publish(ctx, events.PaymentSettled(committed, s.now()))
	utils.Info("payment confirmed", map[string]any{"auction_id": auctionID, "bidder_id": bidderID, "amount": committed.WinningAmount})

	return committed, nil
}

// FailPayment records a failed payment attempt. The auction keeps waiting
// for payment so a later confirmation can still succeed.
func (s *Service) FailPayment(ctx context.Context, auctionID, bidderID string) (model.Auction, error) {
	committed, err := s.settle(ctx, "fail_payment", auctionID, bidderID, func(a model.Auction) (model.Auction, error) {
		if a.Status == model.StatusCompleted {
			return a, fmt.Errorf("%w - auction %s", biddingerrors.ErrAlreadyPaid, a.AuctionID)
		}
		if err := awaitingPayment(a, bidderID); err != nil {
			return a, err
		}
		a.PaymentStatus = model.PaymentFailed
		return a, nil
	})
	if err != nil {
		return model.Auction{}, err
	}

	metrics.PaymentsSettled.WithLabelValues("failed").Inc()
	utils.Warn("payment failed", map[string]any{"auction_id": auctionID, "bidder_id": bidderID})

	return committed, nil
}

func (s *Service) settle(ctx context.Context, operation, auctionID, bidderID string, apply func(model.Auction) (model.Auction, error)) (model.Auction, error) {
	if auctionID == "" || bidderID == "" {
		return model.Auction{}, fmt.Errorf("settlement: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}

	committed, _, err := repository.Mutate(ctx, s.repo, operation, auctionID, s.maxAttempts, func(agg model.Aggregate) (model.AggregateChange, error) {
		next, err := apply(agg.Auction)
		if err != nil {
			return model.AggregateChange{}, err
		}
		return model.AggregateChange{Auction: next}, nil
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("settlement: failed to %s for auction %s: %w", operation, auctionID, err)
	}
	return committed, nil
}

func awaitingPayment(a model.Auction, bidderID string) error {
	if a.Status != model.StatusEndedWinner {
		return fmt.Errorf("%w - auction %s is %s", biddingerrors.ErrNotAwaitingPayment, a.AuctionID, a.Status)
	}
	if a.WinnerID != bidderID {
		return fmt.Errorf("%w - user %s", biddingerrors.ErrNotWinner, bidderID)
	}
	return nil
}
