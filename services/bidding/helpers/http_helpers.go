package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"pigeon-auction/internal/auth"
	"pigeon-auction/internal/biddingerrors"
	"pigeon-auction/utils"

	"github.com/gin-gonic/gin"
)

const claimsKey = "auth.claims"

// retryAfterSeconds is advertised on responses the client may simply retry
const retryAfterSeconds = "1"

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid bid amount"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrUnauthorized):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrBidderNoBids):
		return http.StatusNotFound, "no auctions found for bidder"
	case errors.Is(err, biddingerrors.ErrAuctionNotActive):
		return http.StatusUnprocessableEntity, "auction is not accepting bids"
	case errors.Is(err, biddingerrors.ErrAuctionExpired):
		return http.StatusUnprocessableEntity, "auction has ended"
	case errors.Is(err, biddingerrors.ErrAmountTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAmountNotHighest):
		return http.StatusConflict, "bid is not higher than the current highest bid"
	case errors.Is(err, biddingerrors.ErrConflict):
		return http.StatusConflict, "auction changed concurrently, please retry"
	case errors.Is(err, biddingerrors.ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests, please slow down"
	case errors.Is(err, biddingerrors.ErrUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError writes the mapped error response, with Retry-After where retrying may succeed
func RespondError(c *gin.Context, err error) (int, string) {
	status, message := MapErrorToHTTP(err)
	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		c.Header("Retry-After", retryAfterSeconds)
	}
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
	return status, message
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}

// SetClaims stores the authenticated caller on the request context
func SetClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(claimsKey, claims)
}

// ClaimsFrom returns the authenticated caller, if any
func ClaimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok && claims != nil
}
