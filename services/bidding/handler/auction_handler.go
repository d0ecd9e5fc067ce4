package handler

import (
	"context"
	"errors"
	"net/http"

	"auction-marketplace/internal/biddingerrors"
	"auction-marketplace/internal/closing"
	model "auction-marketplace/internal/models"
	"auction-marketplace/services/bidding/helpers"
	"auction-marketplace/utils"

	"github.com/gin-gonic/gin"
)

type AuctionCloserInterface interface {
	CloseAuction(ctx context.Context, auctionID, requesterID string) (closing.CloseResult, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	GetWinner(ctx context.Context, auctionID, viewerID string) (closing.WinnerView, error)
}

type SettlementInterface interface {
	ConfirmPayment(ctx context.Context, auctionID, bidderID string) (model.Auction, error)
	FailPayment(ctx context.Context, auctionID, bidderID string) (model.Auction, error)
}

// AuctionHandler serves the auction lifecycle: reads, close and payment
type AuctionHandler struct {
	closer     AuctionCloserInterface
	settlement SettlementInterface
}

func NewAuctionHandler(closer AuctionCloserInterface, settlement SettlementInterface) *AuctionHandler {
	return &AuctionHandler{closer: closer, settlement: settlement}
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.closer.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.WriteError(c, err)
		utils.Warn("GetAuctionHandler: error retrieving auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction retrieved successfully")
}

// CloseAuctionHandler handles POST /auctions/:auction_id/close
func (h *AuctionHandler) CloseAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	sellerID := helpers.UserID(c)

	res, err := h.closer.CloseAuction(c.Request.Context(), auctionID, sellerID)
	if errors.Is(err, biddingerrors.ErrAlreadyEnded) {
		auction, getErr := h.closer.GetAuction(c.Request.Context(), auctionID)
		if getErr != nil {
			helpers.WriteError(c, getErr)
			return
		}
		utils.JSONResponse(c, http.StatusOK, closing.CloseResult{Auction: auction}, "auction already ended")
		utils.Info("CloseAuctionHandler: auction already ended", map[string]any{"auction_id": auctionID})
		return
	}
	if err != nil {
		helpers.WriteError(c, err)
		utils.Warn("CloseAuctionHandler: failed to close auction", map[string]any{
			"auction_id": auctionID,
			"seller_id":  sellerID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, res, "auction ended successfully")
	helpers.LogSuccess("CloseAuctionHandler", "auction ended", map[string]any{
		"auction_id": auctionID,
		"status":     res.Auction.Status,
		"winner_id":  res.Auction.WinnerID,
	})
}

// GetWinnerHandler handles GET /auctions/:auction_id/winner
func (h *AuctionHandler) GetWinnerHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	view, err := h.closer.GetWinner(c.Request.Context(), auctionID, helpers.UserID(c))
	if err != nil {
		helpers.WriteError(c, err)
		utils.Info("GetWinnerHandler: winner not available", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	message := "winner retrieved successfully"
	if view.WinnerID == "" {
		message = "auction ended with no winner"
	}
	utils.JSONResponse(c, http.StatusOK, view, message)
}

// ConfirmPaymentHandler handles POST /auctions/:auction_id/payment/confirm
func (h *AuctionHandler) ConfirmPaymentHandler(c *gin.Context) {
	h.settle(c, "ConfirmPaymentHandler", h.settlement.ConfirmPayment, "payment confirmed successfully")
}

// FailPaymentHandler handles POST /auctions/:auction_id/payment/fail
func (h *AuctionHandler) FailPaymentHandler(c *gin.Context) {
	h.settle(c, "FailPaymentHandler", h.settlement.FailPayment, "payment failure recorded")
}

func (h *AuctionHandler) settle(c *gin.Context, handlerName string, op func(context.Context, string, string) (model.Auction, error), message string) {
	auctionID := c.Param("auction_id")
	bidderID := helpers.UserID(c)

	auction, err := op(c.Request.Context(), auctionID, bidderID)
	if errors.Is(err, biddingerrors.ErrAlreadyPaid) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"auction_id": auctionID}, "payment already completed")
		return
	}
	if err != nil {
		helpers.WriteError(c, err)
		utils.Warn(handlerName+": settlement rejected", map[string]any{
			"auction_id": auctionID,
			"bidder_id":  bidderID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, message)
	helpers.LogSuccess(handlerName, message, map[string]any{
		"auction_id":     auctionID,
		"bidder_id":      bidderID,
		"payment_status": auction.PaymentStatus,
	})
}
