// Package closing ends auctions and picks their winner. Explicit closes by
// the seller, the background sweep and lazy closes on read all commit through
// the same compare-and-swap, so exactly one of them decides the winner.
package closing

import (
	"auction-marketplace/internal/biddingerrors"
	"auction-marketplace/internal/events"
	"auction-marketplace/internal/metrics"
	model "auction-marketplace/internal/models"
	"auction-marketplace/internal/repository"
	"auction-marketplace/utils"
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	triggerSeller = "seller"
	triggerSystem = "system"
	triggerSweep  = "sweep"
	triggerLazy   = "lazy"
)

// AuctionCloser drives auctions from active to ended
type AuctionCloser struct {
	repo        repository.AuctionDB
	notifier    events.Notifier
	now         func() time.Time
	maxAttempts int

	lazy singleflight.Group
}

// Option configures an AuctionCloser
type Option func(*AuctionCloser)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *AuctionCloser) { c.now = now }
}

// WithMaxAttempts bounds compare-and-swap retries per close
func WithMaxAttempts(n int) Option {
	return func(c *AuctionCloser) { c.maxAttempts = n }
}

// NewAuctionCloser creates a closer. A nil notifier discards events.
func NewAuctionCloser(repo repository.AuctionDB, notifier events.Notifier, opts ...Option) *AuctionCloser {
	if notifier == nil {
		notifier = events.Discard{}
	}
	c := &AuctionCloser{
		repo:        repo,
		notifier:    notifier,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: repository.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CloseResult is the committed outcome of a close. WinningBid is nil when the
// auction ended without bids.
type CloseResult struct {
	Auction    model.Auction `json:"auction"`
	WinningBid *model.Bid    `json:"winning_bid,omitempty"`
}

// CloseAuction ends an auction. An empty requesterID is a system close;
// otherwise the requester must be the seller, who may close early. Closing
// an auction that already ended returns ErrAlreadyEnded.
func (c *AuctionCloser) CloseAuction(ctx context.Context, auctionID, requesterID string) (CloseResult, error) {
	trigger := triggerSeller
	if requesterID == "" {
		trigger = triggerSystem
	}
	return c.close(ctx, auctionID, requesterID, trigger)
}

func (c *AuctionCloser) close(ctx context.Context, auctionID, requesterID, trigger string) (CloseResult, error) {
	if auctionID == "" {
		return CloseResult{}, fmt.Errorf("closer: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	var winner *model.Bid
	committed, _, err := repository.Mutate(ctx, c.repo, "close_auction", auctionID, c.maxAttempts, func(agg model.Aggregate) (model.AggregateChange, error) {
		auction := agg.Auction
		winner = nil

		if requesterID != "" && requesterID != auction.SellerID {
			return model.AggregateChange{}, fmt.Errorf("%w - user %s", biddingerrors.ErrNotSeller, requesterID)
		}
		if auction.Status != model.StatusActive {
			return model.AggregateChange{}, fmt.Errorf("%w - auction %s is %s", biddingerrors.ErrAlreadyEnded, auctionID, auction.Status)
		}

		best, ok := selectWinner(agg.Bids)
		if !ok {
			auction.Status = model.StatusEndedNoBids
			return model.AggregateChange{Auction: auction}, nil
		}

		best.IsWinning = true
		winner = &best

		auction.Status = model.StatusEndedWinner
		auction.WinnerID = best.BidderID
		auction.WinningBidID = best.BidID
		auction.WinningAmount = best.Amount
		auction.CurrentHighestPrice = best.Amount
		return model.AggregateChange{Auction: auction, WinningBidID: best.BidID}, nil
	})
	if err != nil {
		return CloseResult{}, fmt.Errorf("closer: failed to close auction %s: %w", auctionID, err)
	}

	outcome := string(committed.Status)
	metrics.AuctionsClosed.WithLabelValues(outcome, trigger).Inc()

	now := c.now()
	evts := []model.Event{events.AuctionEnded(committed, now)}
	if committed.HasWinner() {
		evts = append(evts, events.WinnerNotified(committed, now))
	}
	c.notifier.Publish(ctx, evts...)

	utils.Info("auction closed", map[string]any{
		"auction_id":     auctionID,
		"trigger":        trigger,
		"status":         committed.Status,
		"winner_id":      committed.WinnerID,
		"winning_amount": committed.WinningAmount,
	})

	return CloseResult{Auction: committed, WinningBid: winner}, nil
}

// selectWinner returns the highest bid, ties going to the earliest Seq
func selectWinner(bids []model.Bid) (model.Bid, bool) {
	var (
		best  model.Bid
		found bool
	)
	for _, b := range bids {
		if !found || b.Amount > best.Amount || (b.Amount == best.Amount && b.Seq < best.Seq) {
			best, found = b, true
		}
	}
	return best, found
}

// CloseExpiredAuctions closes every active auction whose end time has passed
// and returns the IDs this call closed. Auctions closed concurrently by
// someone else are skipped; other failures are logged and left for the
// next sweep.
func (c *AuctionCloser) CloseExpiredAuctions(ctx context.Context) ([]string, error) {
	ids, err := c.repo.ListExpiredAuctions(ctx, c.now())
	if err != nil {
		return nil, fmt.Errorf("closer: failed to list expired auctions: %w", err)
	}

	closed := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return closed, err
		}

		_, err := c.close(ctx, id, "", triggerSweep)
		switch {
		case err == nil:
			closed = append(closed, id)
		case errors.Is(err, biddingerrors.ErrAlreadyEnded):
		default:
			utils.Warn("sweep: failed to close auction", map[string]any{"auction_id": id, "error": err.Error()})
		}
	}
	return closed, nil
}

// RunSweeper calls CloseExpiredAuctions every interval until ctx is done
func (c *AuctionCloser) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	utils.Info("sweeper started", map[string]any{"interval": interval.String()})
	for {
		select {
		case <-ctx.Done():
			utils.Info("sweeper stopped", nil)
			return
		case <-ticker.C:
			closed, err := c.CloseExpiredAuctions(ctx)
			if err != nil {
				if ctx.Err() == nil {
					utils.Error("sweep failed", map[string]any{"error": err.Error()})
				}
				continue
			}
			if len(closed) > 0 {
				utils.Info("sweep closed auctions", map[string]any{"count": len(closed)})
			}
		}
	}
}

// GetAuction reads an auction, closing it first when its end time has
// passed. Concurrent readers of the same auction share one close attempt.
func (c *AuctionCloser) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("closer: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	auction, err := c.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("closer: failed to get auction %s: %w", auctionID, err)
	}
	if auction.Status != model.StatusActive || !auction.IsExpired(c.now()) {
		return auction, nil
	}

	v, err, _ := c.lazy.Do(auctionID, func() (any, error) {
		res, err := c.close(ctx, auctionID, "", triggerLazy)
		if err == nil {
			return res.Auction, nil
		}
		if errors.Is(err, biddingerrors.ErrAlreadyEnded) {
			return c.repo.GetAuction(ctx, auctionID)
		}
		return nil, err
	})
	if err != nil {
		return model.Auction{}, err
	}
	return v.(model.Auction), nil
}

// WinnerView is the outcome of an ended auction as seen by one user
type WinnerView struct {
	AuctionID     string              `json:"auction_id"`
	AuctionStatus model.AuctionStatus `json:"auction_status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	IsWinner      bool                `json:"is_winner"`
	WinnerID      string              `json:"winner_id,omitempty"`
	WinningBidID  string              `json:"winning_bid_id,omitempty"`
	WinningAmount int64               `json:"winning_amount,omitempty"`
}

// GetWinner returns the winner of an ended auction, closing it lazily when
// needed. Returns ErrAuctionStillActive before the end time.
func (c *AuctionCloser) GetWinner(ctx context.Context, auctionID, viewerID string) (WinnerView, error) {
	auction, err := c.GetAuction(ctx, auctionID)
	if err != nil {
		return WinnerView{}, err
	}
	if auction.Status == model.StatusActive {
		return WinnerView{}, fmt.Errorf("closer: %w - auction %s ends at %s", biddingerrors.ErrAuctionStillActive, auctionID, auction.EndAt.Format(time.RFC3339))
	}

	return WinnerView{
		AuctionID:     auction.AuctionID,
		AuctionStatus: auction.Status,
		PaymentStatus: auction.PaymentStatus,
		IsWinner:      viewerID != "" && auction.WinnerID == viewerID,
		WinnerID:      auction.WinnerID,
		WinningBidID:  auction.WinningBidID,
		WinningAmount: auction.WinningAmount,
	}, nil
}
