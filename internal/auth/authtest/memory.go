// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

// Package authtest provides in-memory fixtures for exercising the auth
// package without a database.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
)

// MemoryUserRepository is a map-backed auth.UserRepository. Reads return
// copies, so callers observe the same read-modify-write behaviour as with
// a real store.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.User
}

// NewMemoryUserRepository creates an empty repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[ulid.ULID]*auth.User)}
}

// Create stores a copy of user, enforcing email uniqueness.
func (r *MemoryUserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return oops.Code(auth.CodeDuplicateEmail).With("email", user.Email).Errorf("duplicate email")
		}
	}
	r.users[user.ID] = clone(user)
	return nil
}

// GetByID returns a copy of the user with id.
func (r *MemoryUserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		return clone(u), nil
	}
	return nil, notFound("id", id.String())
}

// GetByEmail returns a copy of the user with email.
func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	return r.find("email", email, func(u *auth.User) bool { return u.Email == email })
}

// GetByResetHash returns the user holding hash with an expiry after now.
func (r *MemoryUserRepository) GetByResetHash(_ context.Context, hash string, now time.Time) (*auth.User, error) {
	return r.find("reset_hash", hash, func(u *auth.User) bool {
		return u.ResetHash != nil && *u.ResetHash == hash && u.HasPendingReset(now)
	})
}

// GetByRefreshTokenHash returns the user whose ledger holds tokenHash.
func (r *MemoryUserRepository) GetByRefreshTokenHash(_ context.Context, tokenHash string) (*auth.User, error) {
	return r.find("refresh_token", tokenHash, func(u *auth.User) bool {
		for _, e := range u.RefreshTokens {
			if e.TokenHash == tokenHash {
				return true
			}
		}
		return false
	})
}

// Update replaces the stored user.
func (r *MemoryUserRepository) Update(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return notFound("id", user.ID.String())
	}
	r.users[user.ID] = clone(user)
	return nil
}

// UpdateRefreshTokens replaces the stored ledger of user id.
func (r *MemoryUserRepository) UpdateRefreshTokens(_ context.Context, id ulid.ULID, entries []auth.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return notFound("id", id.String())
	}
	u.RefreshTokens = append([]auth.LedgerEntry{}, entries...)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Stored returns a copy of the stored user, including its password hash.
func (r *MemoryUserRepository) Stored(id ulid.ULID) (*auth.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, false
	}
	return clone(u), true
}

// Len returns the number of stored users.
func (r *MemoryUserRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func (r *MemoryUserRepository) find(field, value string, match func(*auth.User) bool) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, notFound(field, value)
}

func notFound(field, value string) error {
	return oops.Code(auth.CodeUserNotFound).With(field, value).Wrap(auth.ErrNotFound)
}

func clone(u *auth.User) *auth.User {
	c := *u
	c.RefreshTokens = append([]auth.LedgerEntry{}, u.RefreshTokens...)
	if u.ResetHash != nil {
		h := *u.ResetHash
		c.ResetHash = &h
	}
	if u.ResetExpires != nil {
		e := *u.ResetExpires
		c.ResetExpires = &e
	}
	return &c
}

var _ auth.UserRepository = (*MemoryUserRepository)(nil)
