package handler

import (
	"net/http"

	"auction-marketplace/services/bidding/helpers"
	"auction-marketplace/utils"

	"github.com/gin-gonic/gin"
)

// Subscriber upgrades a request into a live event stream for one auction
type Subscriber interface {
	Serve(w http.ResponseWriter, r *http.Request, auctionID, userID string) error
}

type StreamHandler struct {
	subscriber Subscriber
}

func NewStreamHandler(subscriber Subscriber) *StreamHandler {
	return &StreamHandler{subscriber: subscriber}
}

// StreamAuctionHandler handles GET /ws/auctions/:auction_id
func (h *StreamHandler) StreamAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	userID := helpers.UserID(c)

	// the upgrader writes its own error response
	if err := h.subscriber.Serve(c.Writer, c.Request, auctionID, userID); err != nil {
		utils.Warn("StreamAuctionHandler: websocket upgrade failed", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return
	}

	helpers.LogSuccess("StreamAuctionHandler", "observer subscribed", map[string]any{
		"auction_id": auctionID,
		"user_id":    userID,
	})
}
