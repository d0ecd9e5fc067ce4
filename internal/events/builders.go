package events

import (
	model "auction-marketplace/internal/models"
	"auction-marketplace/utils"
	"time"
)

// BidPlaced builds the event announcing a new bid row
func BidPlaced(bid model.Bid) model.Event {
	return model.Event{
		EventID:    utils.GenerateID(),
		Kind:       model.EventBidPlaced,
		AuctionID:  bid.AuctionID,
		BidderID:   bid.BidderID,
		Amount:     bid.Amount,
		IsAutoBid:  bid.IsAuto(),
		OccurredAt: bid.CreatedAt,
	}
}

// AuctionEnded builds the close announcement; winner fields stay empty when
// the auction ended without bids
func AuctionEnded(auction model.Auction, at time.Time) model.Event {
	return model.Event{
		EventID:       utils.GenerateID(),
		Kind:          model.EventAuctionEnded,
		AuctionID:     auction.AuctionID,
		WinnerID:      auction.WinnerID,
		WinningAmount: auction.WinningAmount,
		OccurredAt:    at,
	}
}

// WinnerNotified builds the event addressed to the winning bidder
func WinnerNotified(auction model.Auction, at time.Time) model.Event {
	return model.Event{
		EventID:    utils.GenerateID(),
		Kind:       model.EventWinnerNotified,
		AuctionID:  auction.AuctionID,
		BidderID:   auction.WinnerID,
		Amount:     auction.WinningAmount,
		OccurredAt: at,
	}
}

// AutoBidCancelled announces removal of a bidder's ceiling and the
// recomputed price
func AutoBidCancelled(auction model.Auction, bidderID string, at time.Time) model.Event {
	return model.Event{
		EventID:    utils.GenerateID(),
		Kind:       model.EventAutoBidCancelled,
		AuctionID:  auction.AuctionID,
		BidderID:   bidderID,
		Amount:     auction.CurrentHighestPrice,
		OccurredAt: at,
	}
}

// PaymentSettled announces that the winner paid
func PaymentSettled(auction model.Auction, at time.Time) model.Event {
	return model.Event{
		EventID:    utils.GenerateID(),
		Kind:       model.EventPaymentSettled,
		AuctionID:  auction.AuctionID,
		BidderID:   auction.WinnerID,
		Amount:     auction.WinningAmount,
		OccurredAt: at,
	}
}
