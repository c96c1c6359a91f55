package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pigeon-auction/internal/auth"
	"pigeon-auction/internal/biddingerrors"
	"pigeon-auction/services/bidding/helpers"
	"pigeon-auction/utils"

	"github.com/gin-gonic/gin"
)

// RequestIDMiddleware tags every request with an id, reusing a valid incoming one
func RequestIDMiddleware(c *gin.Context) {
	id := c.GetHeader(utils.RequestIDKey)
	if !utils.IsValidID(id) {
		id = utils.GenerateID()
	}
	c.Set(utils.RequestIDKey, id)
	c.Header(utils.RequestIDKey, id)
	c.Next()
}

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":     c.Request.Method,
		"path":       c.FullPath(),
		"status":     c.Writer.Status(),
		"latency":    time.Since(start).String(),
		"request_id": c.GetString(utils.RequestIDKey),
		"client_ip":  c.ClientIP(),
	}
	if c.Writer.Status() >= http.StatusInternalServerError {
		utils.Warn("HTTP Request", fields)
		return
	}
	utils.Info("HTTP Request", fields)
}

// Limiter counts a request against key and reports whether it is allowed
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit rejects requests over limit per window for the key returned by keyFunc.
// Limiter failures let the request through.
func RateLimit(limiter Limiter, name string, keyFunc func(*gin.Context) string, limit int, window time.Duration) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))

	return func(c *gin.Context) {
		key := name + ":" + keyFunc(c)
		allowed, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			utils.Warn("RateLimit: limiter unavailable, allowing request", map[string]any{
				"limiter": name,
				"error":   err.Error(),
			})
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", retryAfter)
			utils.AbortWithError(c, http.StatusTooManyRequests, biddingerrors.ErrRateLimited, "too many requests, please slow down")
			utils.Warn("RateLimit: request rejected", map[string]any{
				"limiter":    name,
				"key":        key,
				"request_id": c.GetString(utils.RequestIDKey),
			})
			return
		}
		c.Next()
	}
}

// ClientIPKey keys rate limits by client address
func ClientIPKey(c *gin.Context) string { return c.ClientIP() }

// BidderKey keys rate limits by the authenticated bidder, falling back to client address
func BidderKey(c *gin.Context) string {
	if claims, ok := helpers.ClaimsFrom(c); ok {
		return claims.BidderID()
	}
	return c.ClientIP()
}

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// RequireBidder authenticates the caller from the Authorization header
func RequireBidder(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			utils.AbortWithError(c, http.StatusUnauthorized, biddingerrors.ErrUnauthorized, "authentication required")
			return
		}

		claims, err := verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			utils.AbortWithError(c, http.StatusUnauthorized, fmt.Errorf("authentication required: %w", err), "authentication required")
			utils.Warn("RequireBidder: token rejected", map[string]any{
				"request_id": c.GetString(utils.RequestIDKey),
				"error":      err.Error(),
			})
			return
		}

		helpers.SetClaims(c, claims)
		c.Next()
	}
}

// RequireVerifiedPhone only admits bidders whose phone number is verified. Must follow RequireBidder.
func RequireVerifiedPhone(c *gin.Context) {
	claims, ok := helpers.ClaimsFrom(c)
	if !ok {
		utils.AbortWithError(c, http.StatusUnauthorized, biddingerrors.ErrUnauthorized, "authentication required")
		return
	}
	if !claims.PhoneVerified {
		utils.AbortWithError(c, http.StatusForbidden, fmt.Errorf("%w: phone not verified", biddingerrors.ErrForbidden), "phone verification required to bid")
		return
	}
	c.Next()
}

// RequireAdmin only admits administrators. Must follow RequireBidder.
func RequireAdmin(c *gin.Context) {
	claims, ok := helpers.ClaimsFrom(c)
	if !ok {
		utils.AbortWithError(c, http.StatusUnauthorized, biddingerrors.ErrUnauthorized, "authentication required")
		return
	}
	if !claims.IsAdmin() {
		utils.AbortWithError(c, http.StatusForbidden, biddingerrors.ErrForbidden, "admin access required")
		utils.Warn("RequireAdmin: non-admin denied", map[string]any{"bidder_id": claims.BidderID()})
		return
	}
	c.Next()
}
