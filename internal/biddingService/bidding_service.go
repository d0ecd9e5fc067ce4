package bidding

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
)

// BiddingService places bids, resolves auto-bid cascades and cancels
// standing auto-bids
type BiddingService struct {
	repo        repository.AuctionDB
	notifier    events.Notifier
	now         func() time.Time
	maxAttempts int
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// WithMaxAttempts bounds compare-and-swap retries per operation
func WithMaxAttempts(n int) Option {
	return func(s *BiddingService) { s.maxAttempts = n }
}

// NewBiddingService creates a new BiddingService instance. A nil notifier
// discards events.
func NewBiddingService(repo repository.AuctionDB, notifier events.Notifier, opts ...Option) *BiddingService {
	if notifier == nil {
		notifier = events.Discard{}
	}
	s := &BiddingService{
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

// PlaceBidResult is the settled outcome of one bid request
type PlaceBidResult struct {
	AcceptedBid         model.Bid   `json:"accepted_bid"`
	CascadeBids         []model.Bid `json:"cascade_bids"`
	CurrentHighestPrice int64       `json:"current_highest_price"`
	LeaderID            string      `json:"leader_id"`
}

// PlaceBid validates a bid request, records it and runs the auto-bid
// cascade, committing everything as one change
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, req model.BidRequest) (PlaceBidResult, error) {
	if auctionID == "" || bidderID == "" {
		metrics.BidRejections.WithLabelValues("invalid_bid").Inc()
		return PlaceBidResult{}, fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}

	var result PlaceBidResult
	committed, _, err := repository.Mutate(ctx, s.repo, "place_bid", auctionID, s.maxAttempts, func(agg model.Aggregate) (model.AggregateChange, error) {
		now := s.now()
		auction := agg.Auction

		accepted, err := s.acceptBid(auction, bidderID, req, now)
		if err != nil {
			return model.AggregateChange{}, err
		}

		rows := make([]model.Bid, 0, len(agg.Bids)+1)
		rows = append(rows, agg.Bids...)
		rows = append(rows, accepted)

		outcome, err := resolveCascade(auctionID, rows, accepted.Seq, now)
		if err != nil {
			return model.AggregateChange{}, err
		}

		auction.CurrentHighestPrice = max(auction.CurrentHighestPrice, outcome.leader.Amount)
		auction.LastBidSeq = accepted.Seq + int64(len(outcome.bids))

		result = PlaceBidResult{
			AcceptedBid:         accepted,
			CascadeBids:         outcome.bids,
			CurrentHighestPrice: auction.CurrentHighestPrice,
			LeaderID:            outcome.leader.BidderID,
		}

		return model.AggregateChange{
			Auction: auction,
			NewBids: append([]model.Bid{accepted}, outcome.bids...),
		}, nil
	})
	if err != nil {
		metrics.BidRejections.WithLabelValues(rejectionReason(err)).Inc()
		return PlaceBidResult{}, fmt.Errorf("service: failed to place bid on auction %s by user %s: %w", auctionID, bidderID, err)
	}

	s.recordPlaced(result)
	s.publishPlaced(ctx, result)

	utils.Info("bid placed", map[string]any{
		"auction_id":   auctionID,
		"bidder_id":    bidderID,
		"kind":         req.Kind().String(),
		"amount":       result.AcceptedBid.Amount,
		"cascade_bids": len(result.CascadeBids),
		"leader_id":    result.LeaderID,
		"price":        committed.CurrentHighestPrice,
	})

	return result, nil
}

// acceptBid checks the request against the auction as read and builds the
// row it records
func (s *BiddingService) acceptBid(auction model.Auction, bidderID string, req model.BidRequest, now time.Time) (model.Bid, error) {
	if !auction.AcceptsBids(now) {
		return model.Bid{}, fmt.Errorf("%w - auction %s is %s", biddingerrors.ErrAuctionClosed, auction.AuctionID, auction.Status)
	}
	if !req.Valid() {
		return model.Bid{}, fmt.Errorf("%w - %s bid with amount %d and ceiling %d",
			biddingerrors.ErrInvalidBidShape, req.Kind(), req.Amount(), req.Ceiling())
	}

	current := auction.CurrentHighestPrice
	minRequired := current + 1

	switch req.Kind() {
	case model.BidKindManual, model.BidKindDual:
		if req.Amount() < minRequired {
			return model.Bid{}, &biddingerrors.BidRejection{Reason: biddingerrors.ErrBidTooLow, CurrentHighest: current, MinimumBid: minRequired}
		}
	}
	if req.HasCeiling() && req.Ceiling() <= current {
		return model.Bid{}, &biddingerrors.BidRejection{Reason: biddingerrors.ErrCeilingTooLow, CurrentHighest: current, MinimumBid: minRequired}
	}

	bid := model.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auction.AuctionID,
		BidderID:  bidderID,
		Amount:    req.Amount(),
		Seq:       auction.LastBidSeq + 1,
		CreatedAt: now,
	}
	if req.HasCeiling() {
		bid.MaxBid = req.Ceiling()
	}
	if req.Kind() == model.BidKindStanding {
		bid.Amount = minRequired
	}
	return bid, nil
}

func (s *BiddingService) recordPlaced(result PlaceBidResult) {
	origin := "manual"
	if result.AcceptedBid.IsAuto() {
		origin = "auto_opening"
	}
	metrics.BidsPlaced.WithLabelValues(origin).Inc()
	if n := len(result.CascadeBids); n > 0 {
		metrics.BidsPlaced.WithLabelValues("cascade").Add(float64(n))
	}
	metrics.CascadeSteps.Observe(float64(len(result.CascadeBids)))
}

func (s *BiddingService) publishPlaced(ctx context.Context, result PlaceBidResult) {
	evts := make([]model.Event, 0, 1+len(result.CascadeBids))
	evts = append(evts, events.BidPlaced(result.AcceptedBid))
	for _, b := range result.CascadeBids {
		evts = append(evts, events.BidPlaced(b))
	}
	s.notifier.Publish(ctx, evts...)
}

// CancelAutoBid removes every ceiling-carrying row the bidder holds on an
// active auction and recomputes the current price from what remains. The
// cascade is not re-run. Cancelling without a standing ceiling changes
// nothing.
func (s *BiddingService) CancelAutoBid(ctx context.Context, auctionID, bidderID string) (model.Auction, error) {
	if auctionID == "" || bidderID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}

	var removed int
	committed, _, err := repository.Mutate(ctx, s.repo, "cancel_auto_bid", auctionID, s.maxAttempts, func(agg model.Aggregate) (model.AggregateChange, error) {
		auction := agg.Auction
		if !auction.AcceptsBids(s.now()) {
			return model.AggregateChange{}, fmt.Errorf("%w - auction %s is %s", biddingerrors.ErrAuctionClosed, auctionID, auction.Status)
		}

		var deleted []string
		highest := auction.StartingPrice
		for _, b := range agg.Bids {
			if b.BidderID == bidderID && b.IsAuto() {
				deleted = append(deleted, b.BidID)
				continue
			}
			highest = max(highest, b.Amount)
		}

		removed = len(deleted)
		if removed == 0 {
			return model.AggregateChange{Auction: auction}, nil
		}

		auction.CurrentHighestPrice = highest
		return model.AggregateChange{Auction: auction, DeletedBidIDs: deleted}, nil
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to cancel auto-bid on auction %s by user %s: %w", auctionID, bidderID, err)
	}

	if removed > 0 {
		s.notifier.Publish(ctx, events.AutoBidCancelled(committed, bidderID, s.now()))
		utils.Info("auto-bid cancelled", map[string]any{
			"auction_id":   auctionID,
			"bidder_id":    bidderID,
			"removed_rows": removed,
			"price":        committed.CurrentHighestPrice,
		})
	}

	return committed, nil
}

// CreateAuction validates and stores a new active auction
func (s *BiddingService) CreateAuction(ctx context.Context, auction model.Auction) (model.Auction, error) {
	now := s.now()
	if auction.StartAt.IsZero() {
		auction.StartAt = now
	}

	switch {
	case auction.SellerID == "":
		return model.Auction{}, fmt.Errorf("service: %w - missing sellerID", biddingerrors.ErrInvalidAuction)
	case auction.Title == "":
		return model.Auction{}, fmt.Errorf("service: %w - missing title", biddingerrors.ErrInvalidAuction)
	case auction.StartingPrice <= 0:
		return model.Auction{}, fmt.Errorf("service: %w - non-positive starting price", biddingerrors.ErrInvalidAuction)
	case !auction.EndAt.After(auction.StartAt) || !auction.EndAt.After(now):
		return model.Auction{}, fmt.Errorf("service: %w - end time must be in the future and after the start", biddingerrors.ErrInvalidAuction)
	}

	auction.AuctionID = utils.GenerateID()
	auction.CurrentHighestPrice = auction.StartingPrice
	auction.Status = model.StatusActive
	auction.PaymentStatus = model.PaymentPending
	auction.WinnerID, auction.WinningBidID, auction.WinningAmount = "", "", 0
	auction.CreatedAt = now
	auction.Version = 1
	auction.LastBidSeq = 0

	if err := s.repo.CreateAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction for seller %s: %w", auction.SellerID, err)
	}

	utils.Info("auction created", map[string]any{"auction_id": auction.AuctionID, "seller_id": auction.SellerID, "end_at": auction.EndAt})
	return auction, nil
}

// GetBidsForAuction returns all bids for a specific auction
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	return bids, nil
}

// GetAuctionsByBidder returns all auctions a user has placed bids on
func (s *BiddingService) GetAuctionsByBidder(ctx context.Context, userID string) ([]model.Auction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	auctions, err := s.repo.GetAuctionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", userID, err)
	}

	return auctions, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, biddingerrors.ErrCeilingTooLow):
		return "ceiling_too_low"
	case errors.Is(err, biddingerrors.ErrInvalidBidShape):
		return "invalid_shape"
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return "not_found"
	case errors.Is(err, biddingerrors.ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
