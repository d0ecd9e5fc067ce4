package biddingerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrUserNoBids      = errors.New("user has not placed any bids")

	// ErrVersionConflict is returned by a store when the aggregate changed
	// since it was read. Services retry on it and never surface it directly.
	ErrVersionConflict = errors.New("auction version conflict")
)

// business logic errors
var (
	ErrInvalidBid         = errors.New("invalid bid")
	ErrInvalidBidShape    = errors.New("invalid bid shape")
	ErrBidTooLow          = errors.New("bid amount too low")
	ErrCeilingTooLow      = errors.New("auto-bid ceiling too low")
	ErrAuctionClosed      = errors.New("auction is closed for bidding")
	ErrAlreadyEnded       = errors.New("auction has already ended")
	ErrAuctionStillActive = errors.New("auction is still active")
	ErrNotSeller          = errors.New("only the seller can end this auction")
	ErrNotWinner          = errors.New("only the winner can settle this auction")
	ErrNotAwaitingPayment = errors.New("auction is not awaiting payment")
	ErrAlreadyPaid        = errors.New("payment already completed")
	ErrInvalidAuction     = errors.New("invalid auction")
)

// infrastructure errors
var (
	ErrConflict           = errors.New("concurrent update conflict")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCascadeInvariant   = errors.New("auto-bid cascade exceeded its iteration bound")
)

// BidRejection reports a rejected bid together with the lowest amount the
// auction would currently accept.
type BidRejection struct {
	Reason         error
	CurrentHighest int64
	MinimumBid     int64
}

func (e *BidRejection) Error() string {
	return fmt.Sprintf("%v: current highest is %d, minimum bid is %d", e.Reason, e.CurrentHighest, e.MinimumBid)
}

func (e *BidRejection) Unwrap() error { return e.Reason }

// MinimumBid extracts the minimum acceptable bid from err, if it carries one.
func MinimumBid(err error) (int64, bool) {
	var rejection *BidRejection
	if errors.As(err, &rejection) {
		return rejection.MinimumBid, true
	}
	return 0, false
}
