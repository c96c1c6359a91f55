package auth

import (
	"errors"
	"fmt"
	"time"

	"pigeon-auction/internal/biddingerrors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Claims identify a caller. Subject is the bidder id.
type Claims struct {
	PhoneVerified bool   `json:"phone_verified"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

// BidderID returns the verified caller identity
func (c *Claims) BidderID() string { return c.Subject }

// IsAdmin reports whether the caller may moderate auctions
func (c *Claims) IsAdmin() bool { return c.Role == RoleAdmin }

// TokenManager issues and verifies HS256 access tokens
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a TokenManager. The secret must not be empty.
func NewTokenManager(secret, issuer string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret must be set")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for bidderID
func (m *TokenManager) Issue(bidderID string, phoneVerified bool, role string) (string, error) {
	if bidderID == "" {
		return "", errors.New("auth: bidder id is required")
	}
	if role == "" {
		role = RoleUser
	}
	now := m.now()
	claims := Claims{
		PhoneVerified: phoneVerified,
		Role:          role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   bidderID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: %w - invalid access token: %w", biddingerrors.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: %w - invalid access token", biddingerrors.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("auth: %w - token has no subject", biddingerrors.ErrUnauthorized)
	}
	return claims, nil
}
