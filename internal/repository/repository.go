package repository

import (
	"auction-marketplace/internal/biddingerrors"
	model "auction-marketplace/internal/models"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

//go:generate mockgen -destination=mock_repository.go -package=repository auction-marketplace/internal/repository AuctionDB

// AuctionDB defines the auction and bid ledger storage interface. Every
// mutation goes through CommitAggregate, which applies a whole change to one
// auction atomically if and only if the auction's version is unchanged.
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	LoadAggregate(ctx context.Context, auctionID string) (model.Aggregate, error)
	CommitAggregate(ctx context.Context, change model.AggregateChange) (model.Auction, error)
	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error)
	ListExpiredAuctions(ctx context.Context, now time.Time) ([]string, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu           sync.RWMutex
	auctions     map[string]model.Auction // key: auctionID -> value: auction
	bids         map[string][]model.Bid   // key: auctionID -> value: bids in Seq order
	userAuctions map[string][]string      // key: userID -> value: auctionIDs user has bid on
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:     make(map[string]model.Auction),
		bids:         make(map[string][]model.Bid),
		userAuctions: make(map[string][]string),
	}
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	if auction.AuctionID == "" {
		return fmt.Errorf("create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.auctions[auction.AuctionID]; exists {
		return fmt.Errorf("create auction %s: %w - duplicate auction ID", auction.AuctionID, biddingerrors.ErrInvalidAuction)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns the auction row
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// LoadAggregate returns a consistent snapshot of an auction and its bids
func (r *MemoryRepo) LoadAggregate(_ context.Context, auctionID string) (model.Aggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Aggregate{}, fmt.Errorf("load auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return model.Aggregate{
		Auction: auction,
		Bids:    append([]model.Bid(nil), r.bids[auctionID]...),
	}, nil
}

// CommitAggregate applies change if the stored version still matches
func (r *MemoryRepo) CommitAggregate(_ context.Context, change model.AggregateChange) (model.Auction, error) {
	auctionID := change.Auction.AuctionID

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("commit auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if current.Version != change.Auction.Version {
		return model.Auction{}, fmt.Errorf("commit auction %s at version %d (stored %d): %w",
			auctionID, change.Auction.Version, current.Version, biddingerrors.ErrVersionConflict)
	}

	bids := r.bids[auctionID]
	if len(change.DeletedBidIDs) > 0 {
		deleted := make(map[string]struct{}, len(change.DeletedBidIDs))
		for _, id := range change.DeletedBidIDs {
			deleted[id] = struct{}{}
		}
		kept := make([]model.Bid, 0, len(bids))
		for _, b := range bids {
			if _, gone := deleted[b.BidID]; !gone {
				kept = append(kept, b)
			}
		}
		bids = kept
	} else {
		bids = append([]model.Bid(nil), bids...)
	}

	bids = append(bids, change.NewBids...)

	if change.WinningBidID != "" {
		for i := range bids {
			bids[i].IsWinning = bids[i].BidID == change.WinningBidID
		}
	}

	next := change.Auction
	next.Version++
	r.auctions[auctionID] = next
	r.bids[auctionID] = bids
	r.reindexUsers(auctionID, bids)

	return next, nil
}

// reindexUsers keeps userAuctions in step with the bids of one auction.
// Caller must hold the write lock.
func (r *MemoryRepo) reindexUsers(auctionID string, bids []model.Bid) {
	bidders := make(map[string]struct{}, len(bids))
	for _, b := range bids {
		bidders[b.BidderID] = struct{}{}
	}

	for userID, ids := range r.userAuctions {
		if _, still := bidders[userID]; still {
			continue
		}
		for i, id := range ids {
			if id == auctionID {
				r.userAuctions[userID] = append(ids[:i:i], ids[i+1:]...)
				break
			}
		}
	}

	for userID := range bidders {
		found := false
		for _, id := range r.userAuctions[userID] {
			if id == auctionID {
				found = true
				break
			}
		}
		if !found {
			r.userAuctions[userID] = append(r.userAuctions[userID], auctionID)
		}
	}
}

// GetBidsByAuction returns all bids for an auction in Seq order
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	bids := r.bids[auctionID]
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return append([]model.Bid(nil), bids...), nil
}

// GetAuctionsByUser returns all auctions a user has bid on
func (r *MemoryRepo) GetAuctionsByUser(_ context.Context, userID string) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctionIDs, ok := r.userAuctions[userID]
	if !ok || len(auctionIDs) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}

	auctions := make([]model.Auction, 0, len(auctionIDs))
	for _, id := range auctionIDs {
		if auction, exists := r.auctions[id]; exists {
			auctions = append(auctions, auction)
		}
	}
	return auctions, nil
}

// ListExpiredAuctions returns active auctions whose end time is at or before now,
// earliest deadline first
func (r *MemoryRepo) ListExpiredAuctions(_ context.Context, now time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	expired := make([]model.Auction, 0)
	for _, auction := range r.auctions {
		if auction.Status == model.StatusActive && auction.IsExpired(now) {
			expired = append(expired, auction)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].EndAt.Equal(expired[j].EndAt) {
			return expired[i].AuctionID < expired[j].AuctionID
		}
		return expired[i].EndAt.Before(expired[j].EndAt)
	})

	ids := make([]string, 0, len(expired))
	for _, auction := range expired {
		ids = append(ids, auction.AuctionID)
	}
	return ids, nil
}

// AddAuction adds an auction to the repository, replacing any existing one.
// This method is intended for tests and seeding only.
func (r *MemoryRepo) AddAuction(auction model.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[auction.AuctionID] = auction
}
