package auth

import (
	"testing"
	"time"

	"pigeon-auction/internal/biddingerrors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, now time.Time) *TokenManager {
	t.Helper()
	m, err := NewTokenManager("test-secret", "pigeon-auction", time.Hour)
	require.NoError(t, err)
	m.now = func() time.Time { return now }
	return m
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewTokenManager("", "pigeon-auction", time.Hour)
	require.Error(t, err)
}

func TestTokenManager_IssueAndVerify(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, now)

	token, err := m.Issue("alice", true, "")
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.BidderID())
	require.True(t, claims.PhoneVerified)
	require.Equal(t, RoleUser, claims.Role)
	require.False(t, claims.IsAdmin())
	require.NotEmpty(t, claims.ID)

	adminToken, err := m.Issue("root", false, RoleAdmin)
	require.NoError(t, err)
	adminClaims, err := m.Verify(adminToken)
	require.NoError(t, err)
	require.True(t, adminClaims.IsAdmin())
	require.False(t, adminClaims.PhoneVerified)

	_, err = m.Issue("", true, RoleUser)
	require.Error(t, err)
}

func TestTokenManager_VerifyRejects(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	issuer := newTestManager(t, now)
	valid, err := issuer.Issue("alice", true, RoleUser)
	require.NoError(t, err)

	otherSecret, err := NewTokenManager("other-secret", "pigeon-auction", time.Hour)
	require.NoError(t, err)
	otherSecret.now = issuer.now
	forged, err := otherSecret.Issue("alice", true, RoleAdmin)
	require.NoError(t, err)

	otherIssuer, err := NewTokenManager("test-secret", "someone-else", time.Hour)
	require.NoError(t, err)
	otherIssuer.now = issuer.now
	wrongIssuer, err := otherIssuer.Issue("alice", true, RoleUser)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "pigeon-auction",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "pigeon-auction",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", Issuer: "pigeon-auction"},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		at    time.Time
	}{
		{name: "garbage", token: "not-a-token", at: now},
		{name: "expired", token: valid, at: now.Add(2 * time.Hour)},
		{name: "wrong_secret", token: forged, at: now},
		{name: "wrong_issuer", token: wrongIssuer, at: now},
		{name: "none_algorithm", token: noneAlg, at: now},
		{name: "missing_subject", token: noSubject, at: now},
		{name: "missing_expiry", token: noExpiry, at: now},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			verifier := newTestManager(t, tc.at)
			_, err := verifier.Verify(tc.token)
			require.ErrorIs(t, err, biddingerrors.ErrUnauthorized)
			require.NotContains(t, err.Error(), "%!")
		})
	}
}
