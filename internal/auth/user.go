// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxNameLength bounds the display name.
const MaxNameLength = 100

// LedgerEntry is one refresh token held in a user's ledger. Only the
// SHA-256 digest of the token is kept.
type LedgerEntry struct {
	TokenHash string    `json:"token_hash"`
	IssuedAt  time.Time `json:"issued_at"`
}

// User is an account record.
type User struct {
	ID            ulid.ULID
	Name          string
	Email         string
	PasswordHash  string
	RefreshTokens []LedgerEntry
	ResetHash     *string
	ResetExpires  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Summary is the client-facing view of a user.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Summary returns the public fields of the user.
func (u *User) Summary() Summary {
	return Summary{ID: u.ID.String(), Name: u.Name, Email: u.Email}
}

// SetReset records a pending password reset. Hash and expiry always move together.
func (u *User) SetReset(hash string, expiresAt time.Time) {
	u.ResetHash = &hash
	u.ResetExpires = &expiresAt
	u.UpdatedAt = time.Now()
}

// ClearReset drops any pending password reset.
func (u *User) ClearReset() {
	u.ResetHash = nil
	u.ResetExpires = nil
	u.UpdatedAt = time.Now()
}

// HasPendingReset reports whether an unexpired reset is recorded at now.
func (u *User) HasPendingReset(now time.Time) bool {
	return u.ResetHash != nil && u.ResetExpires != nil && now.Before(*u.ResetExpires)
}

// withoutSecret returns a copy with the password hash removed.
func (u *User) withoutSecret() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateSignup checks signup input. The email must already be normalized.
func ValidateSignup(name, email, password string, minPasswordLength int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return oops.Code(CodeInvalidInput).With("field", "name").Errorf("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return oops.Code(CodeInvalidInput).
			With("field", "name").
			With("max", MaxNameLength).
			Errorf("name must be at most %d characters", MaxNameLength)
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}
	return ValidatePassword(password, minPasswordLength)
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeInvalidInput).With("field", "email").Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code(CodeInvalidInput).With("field", "email").Errorf("email is not a valid address")
	}
	return nil
}

// ValidatePassword enforces the minimum password length policy.
func ValidatePassword(password string, minLength int) error {
	if utf8.RuneCountInString(password) < minLength {
		return oops.Code(CodeWeakPassword).
			With("min", minLength).
			Errorf("password must be at least %d characters", minLength)
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns an AUTH_DUPLICATE_EMAIL error if the
	// email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByResetHash retrieves the user holding an unexpired reset hash.
	GetByResetHash(ctx context.Context, hash string, now time.Time) (*User, error)

	// GetByRefreshTokenHash retrieves the user whose ledger holds an entry
	// with the given digest.
	GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*User, error)

	// Update writes every mutable field of the user.
	Update(ctx context.Context, user *User) error

	// UpdateRefreshTokens replaces the user's ledger.
	UpdateRefreshTokens(ctx context.Context, id ulid.ULID, entries []LedgerEntry) error
}
