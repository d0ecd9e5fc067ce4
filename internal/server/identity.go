package server

import (
	"errors"
	"net/http"
	"strings"

	"auction-marketplace/services/bidding/helpers"
	"auction-marketplace/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UserHeader carries the caller's identity when no JWT secret is configured
const UserHeader = "X-User-ID"

var (
	errMissingIdentity = errors.New("missing bearer token")
	errInvalidToken    = errors.New("invalid token")
)

// RequireIdentity rejects requests without a valid identity and stores the
// user ID under helpers.UserIDKey. With an empty secret the X-User-ID header
// is trusted, which is only allowed outside production.
func RequireIdentity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := resolveIdentity(c, secret)
		if err != nil {
			utils.JSONError(c, http.StatusUnauthorized, err, "authentication required")
			c.Abort()
			return
		}
		c.Set(helpers.UserIDKey, userID)
		c.Next()
	}
}

// OptionalIdentity stores the user ID when the request carries a valid one
// and lets anonymous requests through
func OptionalIdentity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, err := resolveIdentity(c, secret); err == nil {
			c.Set(helpers.UserIDKey, userID)
		}
		c.Next()
	}
}

func resolveIdentity(c *gin.Context, secret string) (string, error) {
	if secret == "" {
		if userID := strings.TrimSpace(c.GetHeader(UserHeader)); userID != "" {
			return userID, nil
		}
		return "", errMissingIdentity
	}

	raw := bearerToken(c)
	if raw == "" {
		return "", errMissingIdentity
	}
	return ParseToken(secret, raw)
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter browsers use for websocket upgrades
func bearerToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("access_token")
}

// ParseToken validates an HS256 token and returns its subject
func ParseToken(secret, raw string) (string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", errInvalidToken
	}

	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errInvalidToken
	}
	return sub, nil
}
