package models

import "time"

// AuctionStatus is the lifecycle state of an auction. The order is
// active -> ended_no_bids | ended_winner -> completed.
type AuctionStatus string

const (
	StatusActive      AuctionStatus = "active"
	StatusEndedNoBids AuctionStatus = "ended_no_bids"
	StatusEndedWinner AuctionStatus = "ended_winner"
	StatusCompleted   AuctionStatus = "completed"
)

// legacyStatusEnded was written by older deployments for an auction closed
// with a winner.
const legacyStatusEnded = "ended"

// ParseAuctionStatus maps a stored status string onto the status enum.
func ParseAuctionStatus(s string) (AuctionStatus, bool) {
	switch AuctionStatus(s) {
	case StatusActive, StatusEndedNoBids, StatusEndedWinner, StatusCompleted:
		return AuctionStatus(s), true
	}
	if s == legacyStatusEnded {
		return StatusEndedWinner, true
	}
	return "", false
}

// IsTerminal reports whether no further bids can be placed.
func (s AuctionStatus) IsTerminal() bool {
	return s != StatusActive
}

// PaymentStatus tracks settlement of an auction with a winner
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Auction represents a listed item and its bidding state
type Auction struct {
	AuctionID           string        `json:"auction_id"`
	SellerID            string        `json:"seller_id"`
	Title               string        `json:"title"`
	Description         string        `json:"description"`
	Category            string        `json:"category,omitempty"`
	ImageRef            string        `json:"image_ref,omitempty"`
	StartingPrice       int64         `json:"starting_price"`
	CurrentHighestPrice int64         `json:"current_highest_price"`
	StartAt             time.Time     `json:"start_at"`
	EndAt               time.Time     `json:"end_at"`
	Status              AuctionStatus `json:"status"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	WinnerID            string        `json:"winner_id,omitempty"`
	WinningBidID        string        `json:"winning_bid_id,omitempty"`
	WinningAmount       int64         `json:"winning_amount,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`

	// Version is bumped by every committed change and guards compare-and-swap.
	Version int64 `json:"version"`
	// LastBidSeq is the sequence number handed to the most recent bid row.
	LastBidSeq int64 `json:"-"`
}

// IsExpired reports whether the end time has been reached at now.
func (a Auction) IsExpired(now time.Time) bool {
	return !now.Before(a.EndAt)
}

// AcceptsBids reports whether bids may be placed at now.
func (a Auction) AcceptsBids(now time.Time) bool {
	return a.Status == StatusActive && !a.IsExpired(now)
}

// HasWinner reports whether winner fields are set.
func (a Auction) HasWinner() bool {
	return a.WinnerID != "" && a.WinningBidID != ""
}

// Bid represents a user's bid on an auction. MaxBid is zero for manual bids
// and carries the ceiling for auto-bid rows.
type Bid struct {
	BidID     string    `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	MaxBid    int64     `json:"max_bid,omitempty"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	IsWinning bool      `json:"is_winning"`
}

// IsAuto reports whether the row belongs to a standing auto-bid.
func (b Bid) IsAuto() bool {
	return b.MaxBid > 0
}

// Aggregate is one auction together with all of its bids in Seq order.
type Aggregate struct {
	Auction Auction
	Bids    []Bid
}

// AggregateChange is the atomic unit committed against one aggregate.
// Auction.Version must hold the version the change was computed from.
type AggregateChange struct {
	Auction       Auction
	NewBids       []Bid
	DeletedBidIDs []string
	WinningBidID  string
}

// IsEmpty reports whether committing the change would be a no-op.
func (c AggregateChange) IsEmpty() bool {
	return len(c.NewBids) == 0 && len(c.DeletedBidIDs) == 0 && c.WinningBidID == ""
}
