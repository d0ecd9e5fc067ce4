package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	bidding "auction-marketplace/internal/biddingService"
	"auction-marketplace/internal/closing"
	"auction-marketplace/internal/config"
	"auction-marketplace/internal/events"
	model "auction-marketplace/internal/models"
	"auction-marketplace/internal/repository"
	"auction-marketplace/internal/settlement"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*gin.Engine, *repository.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	notifier := &events.Recorder{}
	router := SetupRouter(Services{
		Bidding:    bidding.NewBiddingService(repo, notifier),
		Closer:     closing.NewAuctionCloser(repo, notifier),
		Settlement: settlement.NewService(repo, notifier),
	}, config.SecurityConfig{})
	return router, repo
}

func call(t *testing.T, router *gin.Engine, method, path, userID string, body any) (int, map[string]any) {
	t.Helper()

	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)

	code, resp := call(t, router, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "service is healthy", resp["message"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "auction_http_requests_total")
}

func TestRouter_MutationsRequireIdentity(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)

	for _, path := range []string{"/auctions", "/auctions/a1/bids", "/auctions/a1/close", "/auctions/a1/payment/confirm"} {
		code, _ := call(t, router, http.MethodPost, path, "", map[string]any{"amount": 10})
		require.Equal(t, http.StatusUnauthorized, code, path)
	}
	code, _ := call(t, router, http.MethodDelete, "/auctions/a1/auto-bid", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
}

// Drives one auction through bidding, close and settlement over HTTP
func TestRouter_AuctionLifecycle(t *testing.T) {
	t.Parallel()

	router, repo := newTestServer(t)

	code, resp := call(t, router, http.MethodPost, "/auctions", "seller", map[string]any{
		"title":          "vintage lamp",
		"starting_price": 100,
		"end_at":         time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, code)
	auctionID := resp["data"].(map[string]any)["auction_id"].(string)

	code, _ = call(t, router, http.MethodPost, "/auctions/"+auctionID+"/bids", "x", map[string]any{"amount": 150})
	require.Equal(t, http.StatusCreated, code)

	code, resp = call(t, router, http.MethodPost, "/auctions/"+auctionID+"/bids", "y", map[string]any{"max_bid": 200})
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, 151.0, resp["data"].(map[string]any)["current_highest_price"])

	code, resp = call(t, router, http.MethodPost, "/auctions/"+auctionID+"/bids", "x", map[string]any{"amount": 151})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, 152.0, resp["minimum_bid"])

	code, _ = call(t, router, http.MethodGet, "/auctions/"+auctionID+"/winner", "y", nil)
	require.Equal(t, http.StatusBadRequest, code, "winner is hidden while active")

	code, _ = call(t, router, http.MethodPost, "/auctions/"+auctionID+"/close", "x", nil)
	require.Equal(t, http.StatusForbidden, code)

	code, resp = call(t, router, http.MethodPost, "/auctions/"+auctionID+"/close", "seller", nil)
	require.Equal(t, http.StatusOK, code)
	closed := resp["data"].(map[string]any)["auction"].(map[string]any)
	require.Equal(t, string(model.StatusEndedWinner), closed["status"])
	require.Equal(t, "y", closed["winner_id"])

	code, resp = call(t, router, http.MethodPost, "/auctions/"+auctionID+"/close", "seller", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "auction already ended", resp["message"])

	code, resp = call(t, router, http.MethodGet, "/auctions/"+auctionID+"/winner", "y", nil)
	require.Equal(t, http.StatusOK, code)
	view := resp["data"].(map[string]any)
	require.Equal(t, true, view["is_winner"])
	require.Equal(t, 151.0, view["winning_amount"])

	code, _ = call(t, router, http.MethodPost, "/auctions/"+auctionID+"/payment/confirm", "x", nil)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, router, http.MethodPost, "/auctions/"+auctionID+"/payment/confirm", "y", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = call(t, router, http.MethodPost, "/auctions/"+auctionID+"/payment/confirm", "y", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "payment already completed", resp["message"])

	stored, err := repo.GetAuction(context.Background(), auctionID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, stored.Status)
	require.Equal(t, model.PaymentPaid, stored.PaymentStatus)

	code, resp = call(t, router, http.MethodGet, "/users/y/auctions", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp["data"].([]any), 1)

	code, resp = call(t, router, http.MethodGet, "/auctions/"+auctionID+"/bids", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp["data"].([]any), 2)
}

func TestRouter_StreamRouteOnlyWhenEnabled(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	code, _ := call(t, router, http.MethodGet, "/ws/auctions/a1", "", nil)
	require.Equal(t, http.StatusNotFound, code)
}
