// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/samber/oops"
)

// Ledger tracks the refresh tokens a user may still exchange. Every mutation
// is written through to the UserRepository before it returns.
//
// Writes are read-modify-write on the whole ledger column, so two writers
// holding stale copies of the same user race and the last write wins.
type Ledger struct {
	users UserRepository
	now   func() time.Time
}

// NewLedger creates a Ledger backed by users.
func NewLedger(users UserRepository) *Ledger {
	return &Ledger{users: users, now: time.Now}
}

// HashRefreshToken returns the digest stored in the ledger for token.
func HashRefreshToken(token string) string {
	return sha256Hex(token)
}

// Append adds token to the user's ledger and persists it.
func (l *Ledger) Append(ctx context.Context, user *User, token string) error {
	entries := make([]LedgerEntry, 0, len(user.RefreshTokens)+1)
	entries = append(entries, user.RefreshTokens...)
	entries = append(entries, LedgerEntry{TokenHash: HashRefreshToken(token), IssuedAt: l.now().UTC()})

	if err := l.users.UpdateRefreshTokens(ctx, user.ID, entries); err != nil {
		return oops.Code("LEDGER_APPEND_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.RefreshTokens = entries
	return nil
}

// Contains reports whether token is in the user's ledger.
func (l *Ledger) Contains(user *User, token string) bool {
	if token == "" {
		return false
	}
	digest := []byte(HashRefreshToken(token))
	found := 0
	for _, e := range user.RefreshTokens {
		found |= subtle.ConstantTimeCompare(digest, []byte(e.TokenHash))
	}
	return found == 1
}

// RevokeOne removes every ledger entry equal to token. Revoking a token that
// is not present is not an error and does not write.
func (l *Ledger) RevokeOne(ctx context.Context, user *User, token string) error {
	digest := HashRefreshToken(token)
	kept := make([]LedgerEntry, 0, len(user.RefreshTokens))
	for _, e := range user.RefreshTokens {
		if subtle.ConstantTimeCompare([]byte(e.TokenHash), []byte(digest)) == 1 {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(user.RefreshTokens) {
		return nil
	}

	if err := l.users.UpdateRefreshTokens(ctx, user.ID, kept); err != nil {
		return oops.Code("LEDGER_REVOKE_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.RefreshTokens = kept
	return nil
}

// RevokeAll empties the user's ledger.
func (l *Ledger) RevokeAll(ctx context.Context, user *User) error {
	if err := l.users.UpdateRefreshTokens(ctx, user.ID, []LedgerEntry{}); err != nil {
		return oops.Code("LEDGER_REVOKE_ALL_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.RefreshTokens = []LedgerEntry{}
	return nil
}
