package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-marketplace/internal/biddingerrors"
	bidding "auction-marketplace/internal/biddingService"
	model "auction-marketplace/internal/models"
	"auction-marketplace/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestRouter returns a gin engine that trusts X-User-ID as the identity
func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(helpers.UserIDKey, c.GetHeader("X-User-ID"))
		c.Next()
	})
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path, userID string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

// Test PlaceBidHandler
func TestPlaceBidHandler(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
		validate       func(t *testing.T, resp map[string]any)
	}{
		{
			name:        "success_manual_bid",
			requestBody: helpers.PlaceBidRequest{Amount: 150},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "x", model.ManualBid(150)).
					Return(bidding.PlaceBidResult{
						AcceptedBid:         model.Bid{BidID: uuid.NewString(), AuctionID: "a1", BidderID: "x", Amount: 150, Seq: 1, CreatedAt: now},
						CurrentHighestPrice: 150,
						LeaderID:            "x",
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
			validate: func(t *testing.T, resp map[string]any) {
				data := resp["data"].(map[string]any)
				accepted := data["accepted_bid"].(map[string]any)
				_, err := uuid.Parse(accepted["bid_id"].(string))
				require.NoError(t, err, "BidID should be a valid UUID")
				require.Equal(t, 150.0, accepted["amount"])
				require.Equal(t, false, accepted["is_auto_bid"])
				require.Equal(t, "x", data["leader_id"])
				require.Empty(t, data["cascade_bids"])
			},
		},
		{
			name:        "success_standing_bid_with_cascade",
			requestBody: helpers.PlaceBidRequest{MaxBid: 200},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "x", model.StandingBid(200)).
					Return(bidding.PlaceBidResult{
						AcceptedBid:         model.Bid{BidID: "b2", AuctionID: "a1", BidderID: "x", Amount: 151, MaxBid: 200, Seq: 2},
						CascadeBids:         []model.Bid{{BidID: "b3", AuctionID: "a1", BidderID: "y", Amount: 152, MaxBid: 300, Seq: 3}},
						CurrentHighestPrice: 152,
						LeaderID:            "y",
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
			validate: func(t *testing.T, resp map[string]any) {
				data := resp["data"].(map[string]any)
				require.Equal(t, 152.0, data["current_highest_price"])
				cascade := data["cascade_bids"].([]any)
				require.Len(t, cascade, 1)
				require.Equal(t, true, cascade[0].(map[string]any)["is_auto_bid"])
			},
		},
		{
			name:        "dual_bid_forwards_both_fields",
			requestBody: helpers.PlaceBidRequest{Amount: 120, MaxBid: 180},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "x", model.DualBid(120, 180)).
					Return(bidding.PlaceBidResult{AcceptedBid: model.Bid{BidID: "b1", Amount: 120, MaxBid: 180}}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
		},
		{
			name:           "invalid_json",
			requestBody:    `{invalid json}`,
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "negative_amount",
			requestBody:    map[string]any{"amount": -10},
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "no_fields_is_invalid_shape",
			requestBody: map[string]any{},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "x", model.BidRequest{}).
					Return(bidding.PlaceBidResult{}, biddingerrors.ErrInvalidBidShape)
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "provide amount, max_bid, or both",
		},
		{
			name:        "bid_too_low_reports_minimum",
			requestBody: helpers.PlaceBidRequest{Amount: 100},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "x", model.ManualBid(100)).
					Return(bidding.PlaceBidResult{}, fmt.Errorf("service: %w", &biddingerrors.BidRejection{
						Reason:         biddingerrors.ErrBidTooLow,
						CurrentHighest: 150,
						MinimumBid:     151,
					}))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount too low",
			validate: func(t *testing.T, resp map[string]any) {
				require.Equal(t, 151.0, resp["minimum_bid"])
				require.Equal(t, 150.0, resp["current_highest"])
			},
		},
		{
			name:        "auction_closed",
			requestBody: helpers.PlaceBidRequest{Amount: 500},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "x", model.ManualBid(500)).
					Return(bidding.PlaceBidResult{}, biddingerrors.ErrAuctionClosed)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction is closed for bidding",
		},
		{
			name:        "auction_not_found",
			requestBody: helpers.PlaceBidRequest{Amount: 500},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "x", model.ManualBid(500)).
					Return(bidding.PlaceBidResult{}, biddingerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name:        "storage_unavailable",
			requestBody: helpers.PlaceBidRequest{Amount: 500},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "x", model.ManualBid(500)).
					Return(bidding.PlaceBidResult{}, biddingerrors.ErrStorageUnavailable)
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "storage unavailable",
		},
		{
			name:        "service_generic_error",
			requestBody: helpers.PlaceBidRequest{Amount: 500},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "x", model.ManualBid(500)).
					Return(bidding.PlaceBidResult{}, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)

			router := newTestRouter()
			router.POST("/auctions/:auction_id/bids", NewBiddingHandler(mockService).PlaceBidHandler)

			w, resp := doRequest(t, router, http.MethodPost, "/auctions/a1/bids", "x", tc.requestBody)

			require.Equal(t, tc.expectedStatus, w.Code)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if tc.validate != nil {
				tc.validate(t, resp)
			}
		})
	}
}

// Test CreateAuctionHandler
func TestCreateAuctionHandler(t *testing.T) {
	t.Parallel()

	endAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:        "success",
			requestBody: helpers.CreateAuctionRequest{Title: "lamp", StartingPrice: 100, EndAt: endAt},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					CreateAuction(gomock.Any(), model.Auction{SellerID: "seller", Title: "lamp", StartingPrice: 100, EndAt: endAt}).
					Return(model.Auction{AuctionID: "a1", SellerID: "seller", Status: model.StatusActive}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "auction created successfully",
		},
		{
			name:           "missing_title",
			requestBody:    helpers.CreateAuctionRequest{StartingPrice: 100, EndAt: endAt},
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_end_at",
			requestBody:    map[string]any{"title": "lamp", "starting_price": 100},
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "service_rejects_auction",
			requestBody: helpers.CreateAuctionRequest{Title: "lamp", StartingPrice: 100, EndAt: endAt},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CreateAuction(gomock.Any(), gomock.Any()).Return(model.Auction{}, biddingerrors.ErrInvalidAuction)
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid auction details",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)

			router := newTestRouter()
			router.POST("/auctions", NewBiddingHandler(mockService).CreateAuctionHandler)

			w, resp := doRequest(t, router, http.MethodPost, "/auctions", "seller", tc.requestBody)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}

func TestCancelAutoBidHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedMsg    string
	}{
		{name: "success", expectedStatus: http.StatusOK, expectedMsg: "auto-bid cancelled successfully"},
		{name: "closed", err: biddingerrors.ErrAuctionClosed, expectedStatus: http.StatusConflict, expectedMsg: "auction is closed for bidding"},
		{name: "conflict", err: biddingerrors.ErrConflict, expectedStatus: http.StatusConflict, expectedMsg: "auction is busy"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockService := NewMockBiddingServiceInterface(ctrl)
			mockService.EXPECT().
				CancelAutoBid(gomock.Any(), "a1", "x").
				Return(model.Auction{AuctionID: "a1", CurrentHighestPrice: 120}, tc.err)

			router := newTestRouter()
			router.DELETE("/auctions/:auction_id/auto-bid", NewBiddingHandler(mockService).CancelAutoBidHandler)

			w, resp := doRequest(t, router, http.MethodDelete, "/auctions/a1/auto-bid", "x", nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}

// Test GetBidsByAuctionHandler
func TestGetBidsByAuctionHandler(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tests := []struct {
		name           string
		mockReturn     []model.Bid
		mockErr        error
		expectedStatus int
		expectedMsg    string
		expectedLen    int
	}{
		{
			name: "success_multiple_bids",
			mockReturn: []model.Bid{
				{BidID: uuid.NewString(), AuctionID: "a1", BidderID: "user1", Amount: 100, Seq: 1, CreatedAt: now},
				{BidID: uuid.NewString(), AuctionID: "a1", BidderID: "user2", Amount: 150, MaxBid: 200, Seq: 2, CreatedAt: now},
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			expectedLen:    2,
		},
		{
			name:           "service_no_bids_error",
			mockErr:        biddingerrors.ErrNoBids,
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
		},
		{
			name:           "service_nil_slice",
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
		},
		{
			name:           "auction_not_found",
			mockErr:        biddingerrors.ErrAuctionNotFound,
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name:           "service_generic_error",
			mockErr:        errors.New("database failure"),
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockService := NewMockBiddingServiceInterface(ctrl)
			mockService.EXPECT().GetBidsForAuction(gomock.Any(), "a1").Return(tc.mockReturn, tc.mockErr)

			router := newTestRouter()
			router.GET("/auctions/:auction_id/bids", NewBiddingHandler(mockService).GetBidsByAuctionHandler)

			w, resp := doRequest(t, router, http.MethodGet, "/auctions/a1/bids", "", nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Contains(t, resp["message"], tc.expectedMsg)

			if w.Code == http.StatusOK {
				data := resp["data"].([]any)
				require.Len(t, data, tc.expectedLen)
				if tc.expectedLen > 1 {
					second := data[1].(map[string]any)
					require.Equal(t, true, second["is_auto_bid"])
					require.Equal(t, 200.0, second["max_bid"])
				}
			}
		})
	}
}

// Test GetAuctionsByUserHandler
func TestGetAuctionsByUserHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		mockReturn     []model.Auction
		mockErr        error
		expectedStatus int
		expectedMsg    string
		expectedLen    int
	}{
		{
			name:           "success",
			mockReturn:     []model.Auction{{AuctionID: "a1"}, {AuctionID: "a2"}},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auctions retrieved successfully",
			expectedLen:    2,
		},
		{
			name:           "user_without_bids",
			mockErr:        biddingerrors.ErrUserNoBids,
			expectedStatus: http.StatusOK,
			expectedMsg:    "auctions retrieved successfully",
		},
		{
			name:           "storage_unavailable",
			mockErr:        biddingerrors.ErrStorageUnavailable,
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "storage unavailable",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockService := NewMockBiddingServiceInterface(ctrl)
			mockService.EXPECT().GetAuctionsByBidder(gomock.Any(), "user1").Return(tc.mockReturn, tc.mockErr)

			router := newTestRouter()
			router.GET("/users/:user_id/auctions", NewBiddingHandler(mockService).GetAuctionsByUserHandler)

			w, resp := doRequest(t, router, http.MethodGet, "/users/user1/auctions", "", nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if w.Code == http.StatusOK {
				require.Len(t, resp["data"].([]any), tc.expectedLen)
			}
		})
	}
}
