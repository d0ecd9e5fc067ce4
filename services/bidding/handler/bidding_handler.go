package handler

import (
	"context"
	"errors"
	"net/http"

	"auction-marketplace/internal/biddingerrors"
	bidding "auction-marketplace/internal/biddingService"
	model "auction-marketplace/internal/models"
	"auction-marketplace/services/bidding/helpers"
	"auction-marketplace/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -destination=mock_handler.go -package=handler auction-marketplace/services/bidding/handler BiddingServiceInterface,AuctionCloserInterface,SettlementInterface

type BiddingServiceInterface interface {
	CreateAuction(ctx context.Context, auction model.Auction) (model.Auction, error)
	PlaceBid(ctx context.Context, auctionID, bidderID string, req model.BidRequest) (bidding.PlaceBidResult, error)
	CancelAutoBid(ctx context.Context, auctionID, bidderID string) (model.Auction, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetAuctionsByBidder(ctx context.Context, userID string) ([]model.Auction, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	sellerID := helpers.UserID(c)
	auction, err := h.service.CreateAuction(c.Request.Context(), req.Auction(sellerID))
	if err != nil {
		helpers.WriteError(c, err)
		utils.Warn("CreateAuctionHandler: failed to create auction", map[string]any{
			"seller_id": sellerID,
			"error":     err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.AuctionID,
		"seller_id":  sellerID,
	})
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	auctionID := c.Param("auction_id")
	bidderID := helpers.UserID(c)

	res, err := h.service.PlaceBid(c.Request.Context(), auctionID, bidderID, req.BidRequest())
	if err != nil {
		helpers.WriteError(c, err)
		utils.Error("PlaceBidHandler: failed to place bid", map[string]any{
			"handler":    "PlaceBidHandler",
			"auction_id": auctionID,
			"bidder_id":  bidderID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewPlaceBidResponse(res), "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":       res.AcceptedBid.BidID,
		"auction_id":   auctionID,
		"bidder_id":    bidderID,
		"amount":       res.AcceptedBid.Amount,
		"cascade_bids": len(res.CascadeBids),
	})
}

// CancelAutoBidHandler handles DELETE /auctions/:auction_id/auto-bid
func (h *BiddingHandler) CancelAutoBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bidderID := helpers.UserID(c)

	auction, err := h.service.CancelAutoBid(c.Request.Context(), auctionID, bidderID)
	if err != nil {
		helpers.WriteError(c, err)
		utils.Warn("CancelAutoBidHandler: failed to cancel auto-bid", map[string]any{
			"auction_id": auctionID,
			"bidder_id":  bidderID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auto-bid cancelled successfully")
	helpers.LogSuccess("CancelAutoBidHandler", "auto-bid cancelled", map[string]any{
		"auction_id": auctionID,
		"bidder_id":  bidderID,
		"price":      auction.CurrentHighestPrice,
	})
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		helpers.WriteError(c, err)
		utils.Warn("GetBidsByAuctionHandler: error retrieving bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetAuctionsByUserHandler handles GET /users/:user_id/auctions
func (h *BiddingHandler) GetAuctionsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	auctions, err := h.service.GetAuctionsByBidder(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoBids) {
		helpers.WriteError(c, err)
		utils.Warn("GetAuctionsByUserHandler: error retrieving auctions", map[string]any{"user_id": userID, "error": err.Error()})
		return
	}

	if auctions == nil {
		auctions = []model.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByUserHandler", "auctions retrieved successfully", map[string]any{
		"user_id":        userID,
		"auctions_count": len(auctions),
	})
}
