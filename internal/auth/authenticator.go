// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package auth

import (
	"context"
	"strings"

	"github.com/samber/oops"
)

type userContextKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user bound by the Authenticator, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*User)
	return user, ok && user != nil
}

// BearerToken extracts the token from an Authorization header value.
// Returns "" when the header is absent or not a Bearer credential.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticator turns an access token into a resolved user.
type Authenticator struct {
	issuer *TokenIssuer
	creds  *CredentialStore
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(issuer *TokenIssuer, creds *CredentialStore) (*Authenticator, error) {
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if creds == nil {
		return nil, oops.Errorf("credential store is required")
	}
	return &Authenticator{issuer: issuer, creds: creds}, nil
}

// Authenticate verifies token and resolves its user, returning a context
// with the user bound. Missing, malformed, expired and orphaned tokens all
// fail with the same AUTH_UNAUTHENTICATED code; only storage failures are
// reported otherwise.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (context.Context, *User, error) {
	if token == "" {
		return ctx, nil, unauthenticated()
	}

	claims, err := a.issuer.VerifyAccessToken(token)
	if err != nil {
		return ctx, nil, err
	}

	user, err := a.creds.FindByID(ctx, claims.ParsedUserID())
	if err != nil {
		if KindOf(err) == KindNotFound {
			return ctx, nil, unauthenticated()
		}
		return ctx, nil, oops.Code("AUTH_RESOLVE_FAILED").
			With("user_id", claims.UserID).
			Wrap(err)
	}

	return WithUser(ctx, user), user, nil
}
