package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	bidding "auction-marketplace/internal/biddingService"
	"auction-marketplace/internal/closing"
	"auction-marketplace/internal/config"
	"auction-marketplace/internal/events"
	model "auction-marketplace/internal/models"
	"auction-marketplace/internal/repository"
	"auction-marketplace/internal/server"
	"auction-marketplace/internal/settlement"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const jwtSecret = "integration-secret"

// TestEnv bundles a router wired to real services over an in-memory store
type TestEnv struct {
	Router *gin.Engine
	Repo   *repository.MemoryRepo
	Hub    *events.Hub
}

// SetupTestEnv initializes the router with in-memory repository for integration testing
// and seeds the given auctions.
func SetupTestEnv(t *testing.T, auctions ...model.Auction) *TestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	for _, a := range auctions {
		repo.AddAuction(a)
	}

	hub := events.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := server.SetupRouter(server.Services{
		Bidding:    bidding.NewBiddingService(repo, hub),
		Closer:     closing.NewAuctionCloser(repo, hub),
		Settlement: settlement.NewService(repo, hub),
		Stream:     hub,
	}, config.SecurityConfig{JWTSecret: jwtSecret})

	return &TestEnv{Router: router, Repo: repo, Hub: hub}
}

// NewAuction returns an active auction seeded directly into the store
func NewAuction(auctionID, sellerID string, startingPrice int64, endAt time.Time) model.Auction {
	now := time.Now().UTC()
	return model.Auction{
		AuctionID:           auctionID,
		SellerID:            sellerID,
		Title:               "title_" + auctionID,
		Description:         "integration auction",
		StartingPrice:       startingPrice,
		CurrentHighestPrice: startingPrice,
		StartAt:             now.Add(-time.Hour),
		EndAt:               endAt,
		Status:              model.StatusActive,
		PaymentStatus:       model.PaymentPending,
		Version:             1,
		CreatedAt:           now,
	}
}

// Token signs a bearer token for userID
func Token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// ExecuteRequestAndParse executes an HTTP request on the given router as userID
// (anonymous when empty) and parses the response envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, userID string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+Token(t, userID))
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}

	return resp, w
}
