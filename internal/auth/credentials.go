// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPasswordHash is verified against when an email is unknown so that
// login time does not reveal whether the account exists. It never matches.
//
//nolint:gosec // G101: not a credential
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CredentialStore couples user persistence with password hashing.
type CredentialStore struct {
	users  UserRepository
	hasher PasswordHasher
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(users UserRepository, hasher PasswordHasher) (*CredentialStore, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &CredentialStore{users: users, hasher: hasher}, nil
}

// CreateUser hashes rawPassword and stores a new user. The email is
// normalized first. Fails with AUTH_DUPLICATE_EMAIL if the email is taken.
//
// The existence check and the insert are not atomic; the unique index on
// users.email is what finally rejects a concurrent duplicate.
func (s *CredentialStore) CreateUser(ctx context.Context, name, email, rawPassword string) (*User, error) {
	email = NormalizeEmail(email)

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, duplicateEmail(email)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "check existing email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(rawPassword)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	now := time.Now().UTC()
	user := &User{
		ID:            ulid.Make(),
		Name:          strings.TrimSpace(name),
		Email:         email,
		PasswordHash:  hash,
		RefreshTokens: []LedgerEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if ErrorCode(err) == CodeDuplicateEmail {
			return nil, duplicateEmail(email)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return user.withoutSecret(), nil
}

// FindByEmail looks up a user by email. The password hash is only populated
// when includeSecret is true. Returns an error wrapping ErrNotFound if absent.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string, includeSecret bool) (*User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err //nolint:wrapcheck // repository errors already carry codes
	}
	if !includeSecret {
		return user.withoutSecret(), nil
	}
	return user, nil
}

// FindByID looks up a user by ID without the password hash.
func (s *CredentialStore) FindByID(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err //nolint:wrapcheck // repository errors already carry codes
	}
	return user.withoutSecret(), nil
}

// VerifyPassword reports whether rawPassword matches the user's stored hash.
// A nil user, or one loaded without its secret, is checked against a dummy
// hash so the call costs the same either way.
func (s *CredentialStore) VerifyPassword(user *User, rawPassword string) bool {
	target := dummyPasswordHash
	if user != nil && user.PasswordHash != "" {
		target = user.PasswordHash
	}
	ok, err := s.hasher.Verify(rawPassword, target)
	if err != nil || target == dummyPasswordHash {
		return false
	}
	return ok
}

// SetPassword replaces the user's password hash in memory. Call Save to persist.
func (s *CredentialStore) SetPassword(user *User, rawPassword string) error {
	hash, err := s.hasher.Hash(rawPassword)
	if err != nil {
		return oops.Code("USER_SET_PASSWORD_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// NeedsRehash reports whether the user's hash should be replaced.
func (s *CredentialStore) NeedsRehash(user *User) bool {
	return user.PasswordHash != "" && s.hasher.NeedsUpgrade(user.PasswordHash)
}

// Save persists every mutable field of user. A user loaded without its
// secret keeps its stored password hash.
func (s *CredentialStore) Save(ctx context.Context, user *User) error {
	if user.PasswordHash == "" {
		stored, err := s.users.GetByID(ctx, user.ID)
		if err != nil {
			return oops.Code("USER_SAVE_FAILED").
				With("operation", "load stored password").
				With("user_id", user.ID.String()).
				Wrap(err)
		}
		user.PasswordHash = stored.PasswordHash
		defer func() { user.PasswordHash = "" }()
	}
	if err := s.users.Update(ctx, user); err != nil {
		return oops.Code("USER_SAVE_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

func duplicateEmail(email string) error {
	return oops.Code(CodeDuplicateEmail).
		With("email", email).
		Errorf("user already exists with this email")
}
