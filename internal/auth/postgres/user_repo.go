// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

// Package postgres implements the auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool used by the repository, so that
// pgxmock can stand in for it.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, name, email, password_hash, refresh_tokens,
	       reset_hash, reset_expires_at, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	ledger, err := marshalLedger(user.RefreshTokens)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "marshal refresh tokens").
			Wrap(err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO users (
			id, name, email, password_hash, refresh_tokens,
			reset_hash, reset_expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		ledger,
		user.ResetHash,
		user.ResetExpires,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(auth.CodeDuplicateEmail).
				With("email", user.Email).
				Wrap(err)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	return r.scanOne(row, "id", id.String())
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return r.scanOne(row, "email", email)
}

// GetByResetHash retrieves the user holding hash, provided it has not
// expired at now.
func (r *UserRepository) GetByResetHash(ctx context.Context, hash string, now time.Time) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE reset_hash = $1 AND reset_expires_at > $2
	`, hash, now)
	return r.scanOne(row, "reset_hash", "[redacted]")
}

// GetByRefreshTokenHash retrieves the user whose ledger contains tokenHash.
func (r *UserRepository) GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE refresh_tokens @> jsonb_build_array(jsonb_build_object('token_hash', $1::text))
	`, tokenHash)
	return r.scanOne(row, "refresh_token", "[redacted]")
}

// Update writes every mutable field of user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	ledger, err := marshalLedger(user.RefreshTokens)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "marshal refresh tokens").
			Wrap(err)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE users SET
			name = $2,
			email = $3,
			password_hash = $4,
			refresh_tokens = $5,
			reset_hash = $6,
			reset_expires_at = $7,
			updated_at = $8
		WHERE id = $1
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.PasswordHash,
		ledger,
		user.ResetHash,
		user.ResetExpires,
		time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code(auth.CodeDuplicateEmail).
				With("email", user.Email).
				Wrap(err)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return notFound("id", user.ID.String())
	}
	return nil
}

// UpdateRefreshTokens replaces only the refresh token ledger of user id.
func (r *UserRepository) UpdateRefreshTokens(ctx context.Context, id ulid.ULID, entries []auth.LedgerEntry) error {
	ledger, err := marshalLedger(entries)
	if err != nil {
		return oops.Code("USER_UPDATE_TOKENS_FAILED").
			With("operation", "marshal refresh tokens").
			Wrap(err)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_tokens = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), ledger, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_TOKENS_FAILED").
			With("operation", "update refresh tokens").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return notFound("id", id.String())
	}
	return nil
}

// scanOne scans a single user row, translating pgx.ErrNoRows into
// auth.ErrNotFound tagged with the lookup field.
func (r *UserRepository) scanOne(row pgx.Row, field, value string) (*auth.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(field, value)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "get user by "+field).
			Wrap(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr        string
		user         auth.User
		ledgerJSON   []byte
		resetHash    *string
		resetExpires *time.Time
	)

	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&ledgerJSON,
		&resetHash,
		&resetExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with lookup context
	}

	user.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	user.RefreshTokens = []auth.LedgerEntry{}
	if len(ledgerJSON) > 0 {
		if err := json.Unmarshal(ledgerJSON, &user.RefreshTokens); err != nil {
			return nil, oops.Code("USER_INVALID_LEDGER").
				With("operation", "unmarshal refresh tokens").
				With("id", idStr).
				Wrap(err)
		}
	}
	user.ResetHash = resetHash
	user.ResetExpires = resetExpires
	return &user, nil
}

func marshalLedger(entries []auth.LedgerEntry) ([]byte, error) {
	if entries == nil {
		entries = []auth.LedgerEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, oops.Wrap(err)
	}
	return b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func notFound(field, value string) error {
	return oops.Code(auth.CodeUserNotFound).
		With(field, value).
		Wrap(auth.ErrNotFound)
}

var _ auth.UserRepository = (*UserRepository)(nil)
