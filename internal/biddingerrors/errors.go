package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrBidderNoBids    = errors.New("bidder has not placed any bids")
	ErrConflict        = errors.New("concurrent bid conflict")
	ErrUnavailable     = errors.New("storage unavailable")
)

// business logic errors
var (
	ErrInvalidBid       = errors.New("invalid bid")
	ErrInvalidAmount    = errors.New("invalid bid amount")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrAuctionExpired   = errors.New("auction has ended")
	ErrAmountTooLow     = errors.New("bid amount must exceed the current price")
	ErrAmountNotHighest = errors.New("bid amount must exceed the highest bid")
	ErrInvalidAuction   = errors.New("invalid auction")
)

// request boundary errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("too many requests")
)

// IsTransient reports whether err is worth retrying as-is.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}
