// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// DefaultMinPasswordLength is the default password policy.
const DefaultMinPasswordLength = 6

// ResetPolicy configures the password reset flow.
type ResetPolicy struct {
	// TTL is how long a reset secret stays valid.
	TTL time.Duration
	// MinPasswordLength is the shortest password accepted.
	MinPasswordLength int
	// URLBase, if set, is prefixed to the secret to build the reset link.
	URLBase string
}

// DefaultResetPolicy returns the built-in reset policy.
func DefaultResetPolicy() ResetPolicy {
	return ResetPolicy{TTL: DefaultResetTTL, MinPasswordLength: DefaultMinPasswordLength}
}

// PasswordResetService handles forgot-password and reset-password.
type PasswordResetService struct {
	users    UserRepository
	creds    *CredentialStore
	notifier Notifier
	policy   ResetPolicy
	logger   *slog.Logger
	now      func() time.Time
}

// NewPasswordResetService creates a PasswordResetService that logs to slog.Default().
func NewPasswordResetService(
	users UserRepository,
	hasher PasswordHasher,
	notifier Notifier,
	policy ResetPolicy,
) (*PasswordResetService, error) {
	return NewPasswordResetServiceWithLogger(users, hasher, notifier, policy, slog.Default())
}

// NewPasswordResetServiceWithLogger creates a PasswordResetService with an explicit logger.
func NewPasswordResetServiceWithLogger(
	users UserRepository,
	hasher PasswordHasher,
	notifier Notifier,
	policy ResetPolicy,
	logger *slog.Logger,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if policy.TTL <= 0 {
		return nil, oops.With("ttl", policy.TTL).Errorf("reset TTL must be positive")
	}
	if policy.MinPasswordLength < 1 {
		return nil, oops.With("min_password_length", policy.MinPasswordLength).
			Errorf("minimum password length must be at least 1")
	}

	creds, err := NewCredentialStore(users, hasher)
	if err != nil {
		return nil, err
	}
	return &PasswordResetService{
		users:    users,
		creds:    creds,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// RequestReset starts a reset for email. The result is the same whether or
// not the account exists; when it does, a fresh secret replaces any pending
// one and is handed to the Notifier.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (err error) {
	ctx, span := startSpan(ctx, "RequestReset")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if email == "" {
		return oops.Code(CodeInvalidInput).With("field", "email").Errorf("email is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "GetByEmail").
			Wrap(err)
	}

	secret, hash, err := GenerateResetSecret()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "GenerateResetSecret").
			Wrap(err)
	}

	expiresAt := s.now().Add(s.policy.TTL).UTC()
	user.SetReset(hash, expiresAt)
	if err := s.users.Update(ctx, user); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "Update").
			Wrap(err)
	}

	delivery := ResetDelivery{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Secret:    secret,
		ResetURL:  ResetURL(s.policy.URLBase, secret),
		ExpiresAt: expiresAt,
	}
	if err := s.notifier.DeliverReset(ctx, delivery); err != nil {
		// Failing here would tell the caller the account exists.
		s.logger.WarnContext(ctx, "best-effort reset delivery failed",
			"operation", "deliver_reset",
			"user_id", user.ID.String(),
			"error", err,
		)
	}
	return nil
}

// PerformReset consumes secret and sets newPassword. On success the pending
// reset is cleared and every refresh token of the user is revoked in the
// same write. A second call with the same secret fails.
func (s *PasswordResetService) PerformReset(ctx context.Context, secret, newPassword string) (err error) {
	ctx, span := startSpan(ctx, "PerformReset")
	defer func() { endSpan(span, err) }()

	if err := ValidatePassword(newPassword, s.policy.MinPasswordLength); err != nil {
		return err
	}
	if secret == "" {
		return invalidOrExpiredReset()
	}

	now := s.now()
	hash := HashResetSecret(secret)
	user, err := s.users.GetByResetHash(ctx, hash, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidOrExpiredReset()
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "GetByResetHash").
			Wrap(err)
	}
	if user.ResetHash == nil || !VerifyResetSecret(secret, *user.ResetHash) || !user.HasPendingReset(now) {
		return invalidOrExpiredReset()
	}

	if err := s.creds.SetPassword(user, newPassword); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "SetPassword").
			Wrap(err)
	}
	user.ClearReset()
	user.RefreshTokens = []LedgerEntry{}

	if err := s.users.Update(ctx, user); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "Update").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "user_id", user.ID.String())
	return nil
}

func invalidOrExpiredReset() error {
	return oops.Code(CodeInvalidOrExpiredReset).Errorf("reset token is invalid or has expired")
}
