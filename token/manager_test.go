package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printhaus/storeauth/internal/errors"
	"github.com/printhaus/storeauth/token"
	"github.com/printhaus/storeauth/token/refresh"
	"github.com/printhaus/storeauth/users"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testIssuer = "storeauth-test"
)

func newTestManager(t *testing.T, options ...token.ManagerOption) *token.Manager {
	t.Helper()

	m, err := token.New([]byte(testSecret), testIssuer, 15*time.Minute, 7*24*time.Hour, refresh.NewInMemoryRepo(), options...)
	require.NoError(t, err)
	return m
}

func adminUser() *users.User {
	return &users.User{
		ID:    "user-1",
		Email: "admin@example.com",
		Role:  users.RoleAdmin,
	}
}

func TestNew_MissingDependencies(t *testing.T) {
	_, err := token.New(nil, testIssuer, time.Minute, time.Hour, refresh.NewInMemoryRepo())
	require.Error(t, err)
	require.Contains(t, err.Error(), "secret is required")

	_, err = token.New([]byte(testSecret), testIssuer, time.Minute, time.Hour, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "refresh repo is required")

	_, err = token.New([]byte(testSecret), testIssuer, 0, time.Hour, refresh.NewInMemoryRepo())
	require.Error(t, err)
	require.Contains(t, err.Error(), "TTLs must be positive")
}

func TestGeneratePair_ClaimsRoundTrip(t *testing.T) {
	m := newTestManager(t)

	pair, err := m.GeneratePair(adminUser(), "admin")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.False(t, pair.TokenExpiry.IsZero())

	claims, err := m.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "admin@example.com", claims.Email)
	require.Equal(t, "admin", claims.Role)
	require.Equal(t, "admin", claims.Realm)
	require.Equal(t, testIssuer, claims.Issuer)
}

func TestParseAccess_WrongSecret(t *testing.T) {
	m := newTestManager(t)
	pair, err := m.GeneratePair(adminUser(), "admin")
	require.NoError(t, err)

	other, err := token.New([]byte("another-secret-another-secret-xx"), testIssuer, time.Minute, time.Hour, refresh.NewInMemoryRepo())
	require.NoError(t, err)

	_, err = other.ParseAccess(pair.AccessToken)
	require.ErrorIs(t, err, errors.ErrInvalidToken)
}

func TestParseAccess_Expired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	m := newTestManager(t, token.WithNowTime(func() time.Time { return past }))

	pair, err := m.GeneratePair(adminUser(), "admin")
	require.NoError(t, err)

	current := newTestManager(t)
	_, err = current.ParseAccess(pair.AccessToken)
	require.Error(t, err)
}

func TestRotate_RotatesAndInvalidatesOld(t *testing.T) {
	m := newTestManager(t)
	user := adminUser()

	pair, err := m.GeneratePair(user, "admin")
	require.NoError(t, err)

	newPair, err := m.Rotate(pair.RefreshToken, user)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, newPair.RefreshToken, "refresh token should rotate")

	_, err = m.Rotate(pair.RefreshToken, user)
	require.ErrorIs(t, err, errors.ErrInvalidRefreshToken, "old refresh token must not rotate twice")
}

func TestRotate_WrongUser(t *testing.T) {
	m := newTestManager(t)
	user := adminUser()

	pair, err := m.GeneratePair(user, "admin")
	require.NoError(t, err)

	other := &users.User{ID: "user-2", Email: "other@example.com", Role: users.RoleCustomer}
	_, err = m.Rotate(pair.RefreshToken, other)
	require.ErrorIs(t, err, errors.ErrInvalidRefreshToken)
}

func TestInvalidateRefreshToken(t *testing.T) {
	m := newTestManager(t)
	user := adminUser()

	pair, err := m.GeneratePair(user, "admin")
	require.NoError(t, err)

	m.InvalidateRefreshToken(pair.RefreshToken)

	_, err = m.Rotate(pair.RefreshToken, user)
	require.ErrorIs(t, err, errors.ErrInvalidRefreshToken)
}

func TestRevokeAccessToken(t *testing.T) {
	m := newTestManager(t)

	pair, err := m.GeneratePair(adminUser(), "admin")
	require.NoError(t, err)

	_, err = m.ParseAccess(pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, m.RevokeAccessToken(pair.AccessToken))

	_, err = m.ParseAccess(pair.AccessToken)
	require.ErrorIs(t, err, errors.ErrTokenRevoked)
}
