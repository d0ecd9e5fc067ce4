package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-marketplace/internal/biddingerrors"
	"auction-marketplace/utils"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user
const UserIDKey = "user_id"

// UserID returns the authenticated user set by the identity middleware
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidBidShape):
		return http.StatusBadRequest, "provide amount, max_bid, or both with amount not above max_bid"
	case errors.Is(err, biddingerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrCeilingTooLow):
		return http.StatusConflict, "auto-bid ceiling too low"
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return http.StatusConflict, "auction is closed for bidding"
	case errors.Is(err, biddingerrors.ErrAuctionStillActive):
		return http.StatusBadRequest, "auction is still active"
	case errors.Is(err, biddingerrors.ErrAlreadyEnded):
		return http.StatusOK, "auction already ended"
	case errors.Is(err, biddingerrors.ErrAlreadyPaid):
		return http.StatusOK, "payment already completed"
	case errors.Is(err, biddingerrors.ErrNotSeller):
		return http.StatusForbidden, "only the seller can end this auction"
	case errors.Is(err, biddingerrors.ErrNotWinner):
		return http.StatusForbidden, "only the winner can settle this auction"
	case errors.Is(err, biddingerrors.ErrNotAwaitingPayment):
		return http.StatusConflict, "auction is not awaiting payment"
	case errors.Is(err, biddingerrors.ErrConflict):
		return http.StatusConflict, "auction is busy, please retry"
	case errors.Is(err, biddingerrors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusOK, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrUserNoBids):
		return http.StatusOK, "no auctions found for user"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// WriteError maps err and writes it, adding the minimum acceptable bid when
// the error carries one
func WriteError(c *gin.Context, err error) {
	status, message := MapErrorToHTTP(err)
	if minimum, ok := biddingerrors.MinimumBid(err); ok {
		var rejection *biddingerrors.BidRejection
		errors.As(err, &rejection)
		utils.JSONErrorWithDetails(c, status, fmt.Errorf("%s: %w", message, err), message, gin.H{
			"minimum_bid":     minimum,
			"current_highest": rejection.CurrentHighest,
		})
		return
	}
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
