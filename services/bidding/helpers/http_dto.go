package helpers

import (
	"time"

	bidding "auction-marketplace/internal/biddingService"
	model "auction-marketplace/internal/models"
)

// Request/Response DTOs

// PlaceBidRequest carries a manual amount, an auto-bid ceiling, or both.
// Zero means absent.
type PlaceBidRequest struct {
	Amount int64 `json:"amount" binding:"omitempty,gt=0"`
	MaxBid int64 `json:"max_bid" binding:"omitempty,gt=0"`
}

// BidRequest converts the payload into the engine's tagged request
func (r PlaceBidRequest) BidRequest() model.BidRequest {
	return model.NewBidRequest(r.Amount, r.MaxBid)
}

type CreateAuctionRequest struct {
	Title         string     `json:"title" binding:"required"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	ImageRef      string     `json:"image_ref"`
	StartingPrice int64      `json:"starting_price" binding:"required,gt=0"`
	StartAt       *time.Time `json:"start_at"`
	EndAt         time.Time  `json:"end_at" binding:"required"`
}

// Auction builds the auction the seller asked for
func (r CreateAuctionRequest) Auction(sellerID string) model.Auction {
	a := model.Auction{
		SellerID:      sellerID,
		Title:         r.Title,
		Description:   r.Description,
		Category:      r.Category,
		ImageRef:      r.ImageRef,
		StartingPrice: r.StartingPrice,
		EndAt:         r.EndAt.UTC(),
	}
	if r.StartAt != nil {
		a.StartAt = r.StartAt.UTC()
	}
	return a
}

type BidResponse struct {
	BidID     string `json:"bid_id"`
	AuctionID string `json:"auction_id"`
	BidderID  string `json:"bidder_id"`
	Amount    int64  `json:"amount"`
	MaxBid    int64  `json:"max_bid,omitempty"`
	IsAutoBid bool   `json:"is_auto_bid"`
	IsWinning bool   `json:"is_winning"`
	Seq       int64  `json:"seq"`
	CreatedAt string `json:"created_at"`
}

type PlaceBidResponse struct {
	AcceptedBid         BidResponse   `json:"accepted_bid"`
	CascadeBids         []BidResponse `json:"cascade_bids"`
	CurrentHighestPrice int64         `json:"current_highest_price"`
	LeaderID            string        `json:"leader_id"`
}

func NewBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:     b.BidID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		MaxBid:    b.MaxBid,
		IsAutoBid: b.IsAuto(),
		IsWinning: b.IsWinning,
		Seq:       b.Seq,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func NewBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, NewBidResponse(b))
	}
	return out
}

func NewPlaceBidResponse(res bidding.PlaceBidResult) PlaceBidResponse {
	return PlaceBidResponse{
		AcceptedBid:         NewBidResponse(res.AcceptedBid),
		CascadeBids:         NewBidResponses(res.CascadeBids),
		CurrentHighestPrice: res.CurrentHighestPrice,
		LeaderID:            res.LeaderID,
	}
}
