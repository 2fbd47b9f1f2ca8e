package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/logistics-auth/internal/domain"
	apperrors "github.com/utafrali/logistics-auth/pkg/errors"
)

// Token kinds, carried in the "typ" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Reasons reported by InvalidToken errors.
const (
	ReasonExpired      = "expired"
	ReasonBadSignature = "bad-signature"
	ReasonMalformed    = "malformed"
)

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Kind     string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens; they identify the account only.
type RefreshClaims struct {
	Kind string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTConfig configures a JWTManager. RefreshSecret defaults to AccessSecret.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// Option configures a JWTManager.
type Option func(*JWTManager)

// WithClock overrides time.Now for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(m *JWTManager) { m.now = now }
}

// JWTManager issues and verifies HS256 session tokens. It is safe for
// concurrent use; its keys never change after construction.
type JWTManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
	now           func() time.Time
}

// NewJWTManager creates a JWT manager.
func NewJWTManager(cfg JWTConfig, opts ...Option) *JWTManager {
	refresh := cfg.RefreshSecret
	if refresh == "" {
		refresh = cfg.AccessSecret
	}
	m := &JWTManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(refresh),
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AccessExpiry is the lifetime of access tokens.
func (m *JWTManager) AccessExpiry() time.Duration {
	return m.accessExpiry
}

func (m *JWTManager) registered(subject string, ttl time.Duration) (jwt.RegisteredClaims, time.Time) {
	// JWT timestamps have second precision.
	now := m.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}, exp
}

// IssueAccessToken signs an access token for acct and returns its expiry.
func (m *JWTManager) IssueAccessToken(acct *domain.Account) (string, time.Time, error) {
	rc, exp := m.registered(acct.ID, m.accessExpiry)
	claims := &AccessClaims{
		Username:         acct.Username,
		Email:            acct.Email,
		FullName:         acct.FullName(),
		Kind:             KindAccess,
		RegisteredClaims: rc,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a refresh token for acct and returns its expiry.
func (m *JWTManager) IssueRefreshToken(acct *domain.Account) (string, time.Time, error) {
	rc, exp := m.registered(acct.ID, m.refreshExpiry)
	claims := &RefreshClaims{Kind: KindRefresh, RegisteredClaims: rc}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccessToken checks signature, expiry, issuer and kind. Account state
// is not consulted.
func (m *JWTManager) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims, m.accessSecret); err != nil {
		return nil, err
	}
	if claims.Kind != KindAccess {
		return nil, apperrors.InvalidToken(ReasonMalformed)
	}
	return claims, nil
}

// VerifyRefreshToken is VerifyAccessToken for refresh tokens.
func (m *JWTManager) VerifyRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(token, claims, m.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Kind != KindRefresh {
		return nil, apperrors.InvalidToken(ReasonMalformed)
	}
	return claims, nil
}

func (m *JWTManager) parse(token string, claims jwt.Claims, secret []byte) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err == nil {
		if sub, _ := claims.GetSubject(); sub == "" {
			return apperrors.InvalidToken(ReasonMalformed)
		}
		return nil
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.InvalidToken(ReasonExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.InvalidToken(ReasonBadSignature)
	default:
		return apperrors.InvalidToken(ReasonMalformed)
	}
}
