package server

import (
	"net/http"

	"auction-marketplace/internal/config"
	handler "auction-marketplace/services/bidding/handler"
	"auction-marketplace/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services are the domain operations the HTTP surface exposes. Stream may be
// nil when websocket observers are disabled.
type Services struct {
	Bidding    handler.BiddingServiceInterface
	Closer     handler.AuctionCloserInterface
	Settlement handler.SettlementInterface
	Stream     handler.Subscriber
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(svc Services, security config.SecurityConfig) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(svc.Bidding)
	auctionHandler := handler.NewAuctionHandler(svc.Closer, svc.Settlement)

	requireIdentity := RequireIdentity(security.JWTSecret)
	optionalIdentity := OptionalIdentity(security.JWTSecret)
	bidLimiter := NewBidRateLimiter(security.RateLimit.RequestsPerSecond, security.RateLimit.BurstSize)

	router.GET("/healthz", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"status": "ok"}, "service is healthy")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auctions := router.Group("/auctions")
	{
		auctions.POST("", requireIdentity, biddingHandler.CreateAuctionHandler)
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.POST("/:auction_id/bids", requireIdentity, bidLimiter.Middleware(), biddingHandler.PlaceBidHandler)
		auctions.DELETE("/:auction_id/auto-bid", requireIdentity, biddingHandler.CancelAutoBidHandler)
		auctions.POST("/:auction_id/close", requireIdentity, auctionHandler.CloseAuctionHandler)
		auctions.GET("/:auction_id/winner", optionalIdentity, auctionHandler.GetWinnerHandler)
		auctions.POST("/:auction_id/payment/confirm", requireIdentity, auctionHandler.ConfirmPaymentHandler)
		auctions.POST("/:auction_id/payment/fail", requireIdentity, auctionHandler.FailPaymentHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/auctions", biddingHandler.GetAuctionsByUserHandler)
	}

	if svc.Stream != nil {
		streamHandler := handler.NewStreamHandler(svc.Stream)
		router.GET("/ws/auctions/:auction_id", optionalIdentity, streamHandler.StreamAuctionHandler)
	}

	return router
}
