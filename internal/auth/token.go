// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenType distinguishes access tokens from refresh tokens inside the claims.
type TokenType string

// Token types.
const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenConfig holds signing keys and lifetimes. Access and refresh tokens
// must use different secrets.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Validate checks the signing configuration.
func (c TokenConfig) Validate() error {
	switch {
	case c.AccessSecret == "":
		return oops.Code("TOKEN_CONFIG_INVALID").Errorf("access secret is required")
	case c.RefreshSecret == "":
		return oops.Code("TOKEN_CONFIG_INVALID").Errorf("refresh secret is required")
	case c.AccessSecret == c.RefreshSecret:
		return oops.Code("TOKEN_CONFIG_INVALID").Errorf("access and refresh secrets must differ")
	case c.AccessTTL <= 0:
		return oops.Code("TOKEN_CONFIG_INVALID").With("access_ttl", c.AccessTTL).Errorf("access TTL must be positive")
	case c.RefreshTTL <= 0:
		return oops.Code("TOKEN_CONFIG_INVALID").With("refresh_ttl", c.RefreshTTL).Errorf("refresh TTL must be positive")
	}
	return nil
}

// Claims is the payload of both token types.
type Claims struct {
	UserID string    `json:"userId"`
	Type   TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 JWTs.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

// TokenIssuerOption configures a TokenIssuer.
type TokenIssuerOption func(*TokenIssuer)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) TokenIssuerOption {
	return func(i *TokenIssuer) {
		i.now = now
	}
}

// NewTokenIssuer creates a TokenIssuer after validating cfg.
func NewTokenIssuer(cfg TokenConfig, opts ...TokenIssuerOption) (*TokenIssuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	i := &TokenIssuer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.cfg.AccessTTL
}

// IssueAccessToken signs a short-lived access token for userID.
func (i *TokenIssuer) IssueAccessToken(userID ulid.ULID) (string, error) {
	return i.issue(userID, TokenTypeAccess, i.cfg.AccessSecret, i.cfg.AccessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for userID.
func (i *TokenIssuer) IssueRefreshToken(userID ulid.ULID) (string, error) {
	return i.issue(userID, TokenTypeRefresh, i.cfg.RefreshSecret, i.cfg.RefreshTTL)
}

// VerifyAccessToken checks signature, expiry and type of an access token.
func (i *TokenIssuer) VerifyAccessToken(token string) (*Claims, error) {
	return i.verify(token, TokenTypeAccess, i.cfg.AccessSecret)
}

// VerifyRefreshToken checks signature, expiry and type of a refresh token.
// It does not consult the ledger.
func (i *TokenIssuer) VerifyRefreshToken(token string) (*Claims, error) {
	return i.verify(token, TokenTypeRefresh, i.cfg.RefreshSecret)
}

func (i *TokenIssuer) issue(userID ulid.ULID, typ TokenType, secret string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		UserID: userID.String(),
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("token_type", string(typ)).Wrap(err)
	}
	return signed, nil
}

func (i *TokenIssuer) verify(token string, typ TokenType, secret string) (*Claims, error) {
	if token == "" {
		return nil, unauthenticated()
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, oops.Code(CodeUnauthenticated).With("token_type", string(typ)).Wrap(err)
	}
	if claims.Type != typ {
		return nil, oops.Code(CodeUnauthenticated).
			With("token_type", string(typ)).
			Errorf("token type mismatch")
	}
	if _, err := ulid.Parse(claims.UserID); err != nil || claims.Subject != claims.UserID {
		return nil, oops.Code(CodeUnauthenticated).
			With("token_type", string(typ)).
			Errorf("token subject is invalid")
	}
	return claims, nil
}

// ParsedUserID returns the user ID carried by verified claims.
func (c *Claims) ParsedUserID() ulid.ULID {
	id, _ := ulid.Parse(c.UserID)
	return id
}
