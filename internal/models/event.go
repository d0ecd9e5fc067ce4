package models

import "time"

// EventKind names a notification emitted by the bid engine
type EventKind string

const (
	EventBidPlaced        EventKind = "bid_placed"
	EventAuctionEnded     EventKind = "auction_ended"
	EventWinnerNotified   EventKind = "winner_notified"
	EventAutoBidCancelled EventKind = "auto_bid_cancelled"
	EventPaymentSettled   EventKind = "payment_settled"
)

// Event is the payload fanned out to observers once a change has committed.
// WinnerID and WinningAmount are empty on auction_ended without a winner.
type Event struct {
	EventID       string    `json:"event_id"`
	Kind          EventKind `json:"kind"`
	AuctionID     string    `json:"auction_id"`
	BidderID      string    `json:"bidder_id,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	IsAutoBid     bool      `json:"is_auto_bid,omitempty"`
	WinnerID      string    `json:"winner_id,omitempty"`
	WinningAmount int64     `json:"winning_amount,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// IsAddressed reports whether the event targets a single bidder rather than
// every observer of the auction.
func (e Event) IsAddressed() bool {
	return e.Kind == EventWinnerNotified
}
