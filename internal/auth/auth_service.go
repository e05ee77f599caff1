// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// TokenPair is what a successful login hands back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Tokens TokenPair
	User   Summary
}

// Service provides signup, login, refresh and logout.
type Service struct {
	users             UserRepository
	creds             *CredentialStore
	issuer            *TokenIssuer
	ledger            *Ledger
	minPasswordLength int
	logger            *slog.Logger
}

// NewAuthService creates a Service that logs to slog.Default().
func NewAuthService(users UserRepository, hasher PasswordHasher, issuer *TokenIssuer, minPasswordLength int) (*Service, error) {
	return NewAuthServiceWithLogger(users, hasher, issuer, minPasswordLength, slog.Default())
}

// NewAuthServiceWithLogger creates a Service with an explicit logger.
func NewAuthServiceWithLogger(
	users UserRepository,
	hasher PasswordHasher,
	issuer *TokenIssuer,
	minPasswordLength int,
	logger *slog.Logger,
) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if minPasswordLength < 1 {
		return nil, oops.With("min_password_length", minPasswordLength).
			Errorf("minimum password length must be at least 1")
	}

	creds, err := NewCredentialStore(users, hasher)
	if err != nil {
		return nil, err
	}
	return &Service{
		users:             users,
		creds:             creds,
		issuer:            issuer,
		ledger:            NewLedger(users),
		minPasswordLength: minPasswordLength,
		logger:            logger,
	}, nil
}

// Credentials returns the credential store used by the service.
func (s *Service) Credentials() *CredentialStore {
	return s.creds
}

// Signup creates an account. It is not idempotent: a second call with the
// same email fails with AUTH_DUPLICATE_EMAIL.
func (s *Service) Signup(ctx context.Context, name, email, password string) (_ *User, err error) {
	ctx, span := startSpan(ctx, "Signup")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if err := ValidateSignup(name, email, password, s.minPasswordLength); err != nil {
		return nil, err
	}
	return s.creds.CreateUser(ctx, name, email, password)
}

// Login checks credentials, issues a token pair and records the refresh
// token in the user's ledger. Unknown email and wrong password fail the
// same way and take the same time.
func (s *Service) Login(ctx context.Context, email, password string) (_ *LoginResult, err error) {
	ctx, span := startSpan(ctx, "Login")
	defer func() { endSpan(span, err) }()

	if NormalizeEmail(email) == "" || password == "" {
		return nil, oops.Code(CodeMissingCredentials).Errorf("email and password are required")
	}

	user, err := s.creds.FindByEmail(ctx, email, true)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "find user by email").
				Wrap(err)
		}
		s.creds.VerifyPassword(nil, password)
		return nil, invalidCredentials()
	}
	if !s.creds.VerifyPassword(user, password) {
		return nil, invalidCredentials()
	}

	if s.creds.NeedsRehash(user) {
		s.upgradeHash(ctx, user, password)
	}

	access, err := s.issuer.IssueAccessToken(user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue access token").Wrap(err)
	}
	refresh, err := s.issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue refresh token").Wrap(err)
	}
	if err := s.ledger.Append(ctx, user, refresh); err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "append refresh token").Wrap(err)
	}

	return &LoginResult{
		Tokens: TokenPair{AccessToken: access, RefreshToken: refresh},
		User:   user.Summary(),
	}, nil
}

// upgradeHash re-hashes the password with current parameters. Login
// succeeds regardless of the outcome.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if err := s.creds.SetPassword(user, password); err != nil {
		s.logger.WarnContext(ctx, "best-effort password rehash failed",
			"operation", "rehash_password", "user_id", user.ID.String(), "error", err)
		return
	}
	if err := s.creds.Save(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "best-effort password rehash failed",
			"operation", "save_rehash", "user_id", user.ID.String(), "error", err)
	}
}

// Refresh exchanges a refresh token for a new access token. The token must
// verify and still be present in the owner's ledger.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (_ string, err error) {
	ctx, span := startSpan(ctx, "Refresh")
	defer func() { endSpan(span, err) }()

	if refreshToken == "" {
		return "", oops.Code(CodeMissingToken).Errorf("refresh token is required")
	}

	claims, err := s.issuer.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", err
	}

	user, err := s.creds.FindByID(ctx, claims.ParsedUserID())
	if err != nil {
		if KindOf(err) == KindNotFound {
			return "", unauthenticated()
		}
		return "", oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "find user by id").
			Wrap(err)
	}
	if !s.ledger.Contains(user, refreshToken) {
		return "", oops.Code(CodeUnauthenticated).
			With("user_id", user.ID.String()).
			Errorf("refresh token not recognized")
	}

	access, err := s.issuer.IssueAccessToken(user.ID)
	if err != nil {
		return "", oops.Code("AUTH_REFRESH_FAILED").With("operation", "issue access token").Wrap(err)
	}
	return access, nil
}

// Logout removes refreshToken from its owner's ledger. Unknown, expired and
// already revoked tokens succeed without doing anything.
func (s *Service) Logout(ctx context.Context, refreshToken string) (err error) {
	ctx, span := startSpan(ctx, "Logout")
	defer func() { endSpan(span, err) }()

	if refreshToken == "" {
		return oops.Code(CodeMissingToken).Errorf("refresh token is required")
	}

	user, err := s.users.GetByRefreshTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "find user by refresh token").
			Wrap(err)
	}
	if err := s.ledger.RevokeOne(ctx, user, refreshToken); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "revoke refresh token").
			Wrap(err)
	}
	return nil
}

// LogoutAll revokes every refresh token of user.
func (s *Service) LogoutAll(ctx context.Context, user *User) (err error) {
	ctx, span := startSpan(ctx, "LogoutAll")
	defer func() { endSpan(span, err) }()

	if err := s.ledger.RevokeAll(ctx, user); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "revoke all refresh tokens").
			Wrap(err)
	}
	return nil
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}
