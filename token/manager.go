package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/printhaus/storeauth/internal/errors"
	"github.com/printhaus/storeauth/token/refresh"
	"github.com/printhaus/storeauth/users"
)

const refreshTokenLength = 32

// Claims carried by an access token.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Realm string `json:"realm,omitempty"`
	jwt.RegisteredClaims
}

// Pair is the access/refresh token pair issued to a session.
type Pair struct {
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
}

// Manager creates and validates the session token pair. Access tokens are
// HMAC-signed JWTs; refresh tokens are opaque and rotate on every use.
type Manager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	refresh    refresh.Repo
	revoked    RevokedTokenCache
	nowTime    func() time.Time
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithRevocationCache overrides the default in-memory revocation cache.
func WithRevocationCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revoked = cache
	}
}

func New(secret []byte, issuer string, accessTTL, refreshTTL time.Duration, refreshRepo refresh.Repo, options ...ManagerOption) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("[token.New] signing secret is required")
	}
	if refreshRepo == nil {
		return nil, errors.New("[token.New] refresh repo is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("[token.New] token TTLs must be positive")
	}

	m := &Manager{
		secret:     secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		refresh:    refreshRepo,
		revoked:    NewInMemoryRevokedTokenCache(),
		nowTime:    time.Now,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// GeneratePair issues a fresh access/refresh pair for the user.
func (m *Manager) GeneratePair(user *users.User, realm string) (*Pair, error) {
	now := m.nowTime()
	expiry := now.Add(m.accessTTL)

	claims := Claims{
		Email: user.Email,
		Role:  string(user.Role),
		Realm: realm,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.GeneratePair] SignedString")
	}

	refreshToken, err := generateOpaqueToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.GeneratePair] generateOpaqueToken")
	}

	record := &refresh.Record{
		Token:     refreshToken,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.Role),
		Realm:     realm,
		ExpiresAt: now.Add(m.refreshTTL),
		CreatedAt: now,
	}
	if err := m.refresh.Upsert(refreshToken, record); err != nil {
		return nil, errors.Wrap(err, "[Manager.GeneratePair] refresh.Upsert")
	}

	return &Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenExpiry:  expiry,
	}, nil
}

// ParseAccess validates the access token's signature, expiry and revocation
// state, and returns its claims.
func (m *Manager) ParseAccess(raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.nowTime), jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	if m.revoked.IsRevoked(claims.ID) {
		return nil, apperrors.ErrTokenRevoked
	}
	return claims, nil
}

// Rotate exchanges a refresh token for a fresh pair. The presented token is
// invalidated whether or not the exchange succeeds.
func (m *Manager) Rotate(refreshToken string, user *users.User) (*Pair, error) {
	record, err := m.refresh.Get(refreshToken)
	if err != nil {
		return nil, apperrors.ErrInvalidRefreshToken
	}

	_ = m.refresh.Delete(refreshToken)

	if record.ExpiresAt.Before(m.nowTime()) {
		return nil, apperrors.ErrRefreshTokenExpired
	}
	if record.UserID != user.ID {
		return nil, apperrors.ErrInvalidRefreshToken
	}

	return m.GeneratePair(user, record.Realm)
}

// InvalidateRefreshToken removes a refresh token so it can no longer rotate.
func (m *Manager) InvalidateRefreshToken(refreshToken string) {
	_ = m.refresh.Delete(refreshToken)
}

// RevokeAccessToken marks an access token's jti as revoked until it expires.
func (m *Manager) RevokeAccessToken(raw string) error {
	claims := &Claims{}
	// Parse without validation: revoking an already-expired token is harmless
	_, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return apperrors.ErrInvalidToken
	}
	exp := m.nowTime().Add(m.accessTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return m.revoked.Add(claims.ID, exp)
}

// CleanupRevokedTokens removes expired entries from the revocation cache and
// expired refresh tokens from the refresh repo.
func (m *Manager) CleanupRevokedTokens() {
	m.revoked.Cleanup()
	_ = m.refresh.DeleteExpired(m.nowTime())
}

func generateOpaqueToken() (string, error) {
	bytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
