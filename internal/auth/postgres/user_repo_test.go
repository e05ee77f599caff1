// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/pkg/errutil"
)

var userRowColumns = []string{
	"id", "name", "email", "password_hash", "refresh_tokens",
	"reset_hash", "reset_expires_at", "created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	user := &auth.User{
		ID:           ulid.Make(),
		Name:         "Ada",
		Email:        "a@x.com",
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tests := []struct {
		name     string
		execErr  error
		wantCode string
	}{
		{name: "inserts row"},
		{
			name:     "unique violation is a duplicate email",
			execErr:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"},
			wantCode: auth.CodeDuplicateEmail,
		},
		{
			name:     "other failures are wrapped",
			execErr:  errors.New("connection refused"),
			wantCode: "USER_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			exp := mock.ExpectExec(`INSERT INTO users`).
				WithArgs(user.ID.String(), "Ada", "a@x.com", "hash", []byte(`[]`),
					pgxmock.AnyArg(), pgxmock.AnyArg(), now, now)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err := NewUserRepository(mock).Create(ctx, user)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestUserRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	issued := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)

	t.Run("scans user with ledger", func(t *testing.T) {
		mock := newMock(t)
		rows := pgxmock.NewRows(userRowColumns).AddRow(
			id.String(), "Ada", "a@x.com", "hash",
			[]byte(`[{"token_hash":"abc","issued_at":"2026-01-03T00:00:00Z"}]`),
			(*string)(nil), (*time.Time)(nil), created, created,
		)
		mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(rows)

		user, err := NewUserRepository(mock).GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, "Ada", user.Name)
		assert.Equal(t, "hash", user.PasswordHash)
		require.Len(t, user.RefreshTokens, 1)
		assert.Equal(t, "abc", user.RefreshTokens[0].TokenHash)
		assert.True(t, issued.Equal(user.RefreshTokens[0].IssuedAt))
		assert.Nil(t, user.ResetHash)
	})

	t.Run("missing row wraps ErrNotFound", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(userRowColumns))

		_, err := NewUserRepository(mock).GetByID(ctx, id)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, auth.CodeUserNotFound)
	})

	t.Run("corrupt id is reported", func(t *testing.T) {
		mock := newMock(t)
		rows := pgxmock.NewRows(userRowColumns).AddRow(
			"not-a-ulid", "Ada", "a@x.com", "hash", []byte(`[]`),
			(*string)(nil), (*time.Time)(nil), created, created,
		)
		mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(rows)

		_, err := NewUserRepository(mock).GetByID(ctx, id)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_INVALID_ID")
	})

	t.Run("query failure is wrapped", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnError(errors.New("connection reset"))

		_, err := NewUserRepository(mock).GetByID(ctx, id)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_QUERY_FAILED")
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	now := time.Now().UTC()

	mock := newMock(t)
	rows := pgxmock.NewRows(userRowColumns).AddRow(
		id.String(), "Ada", "a@x.com", "hash", []byte(`[]`),
		(*string)(nil), (*time.Time)(nil), now, now,
	)
	mock.ExpectQuery(`WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("A@x.com").
		WillReturnRows(rows)

	user, err := NewUserRepository(mock).GetByEmail(ctx, "A@x.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.NotNil(t, user.RefreshTokens)
	assert.Empty(t, user.RefreshTokens)
}

func TestUserRepository_GetByResetHash(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	now := time.Now().UTC()
	expires := now.Add(10 * time.Minute)
	hash := "digest"

	t.Run("returns pending reset", func(t *testing.T) {
		mock := newMock(t)
		rows := pgxmock.NewRows(userRowColumns).AddRow(
			id.String(), "Ada", "a@x.com", "hash", []byte(`[]`),
			&hash, &expires, now, now,
		)
		mock.ExpectQuery(`WHERE reset_hash = \$1 AND reset_expires_at > \$2`).
			WithArgs(hash, now).
			WillReturnRows(rows)

		user, err := NewUserRepository(mock).GetByResetHash(ctx, hash, now)
		require.NoError(t, err)
		require.NotNil(t, user.ResetHash)
		assert.Equal(t, hash, *user.ResetHash)
		assert.True(t, user.HasPendingReset(now))
	})

	t.Run("expired or unknown hash is not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`WHERE reset_hash = \$1 AND reset_expires_at > \$2`).
			WithArgs(hash, now).
			WillReturnRows(pgxmock.NewRows(userRowColumns))

		_, err := NewUserRepository(mock).GetByResetHash(ctx, hash, now)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_GetByRefreshTokenHash(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	now := time.Now().UTC()

	mock := newMock(t)
	rows := pgxmock.NewRows(userRowColumns).AddRow(
		id.String(), "Ada", "a@x.com", "hash",
		[]byte(`[{"token_hash":"t1","issued_at":"2026-01-03T00:00:00Z"}]`),
		(*string)(nil), (*time.Time)(nil), now, now,
	)
	mock.ExpectQuery(`refresh_tokens @> jsonb_build_array`).
		WithArgs("t1").
		WillReturnRows(rows)

	user, err := NewUserRepository(mock).GetByRefreshTokenHash(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
}

func TestUserRepository_Update(t *testing.T) {
	ctx := context.Background()
	hash := "digest"
	expires := time.Now().Add(time.Minute).UTC()
	user := &auth.User{
		ID:           ulid.Make(),
		Name:         "Ada",
		Email:        "a@x.com",
		PasswordHash: "hash",
		RefreshTokens: []auth.LedgerEntry{
			{TokenHash: "t1", IssuedAt: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
		},
		ResetHash:    &hash,
		ResetExpires: &expires,
	}

	t.Run("writes every mutable field", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs(user.ID.String(), "Ada", "a@x.com", "hash",
				[]byte(`[{"token_hash":"t1","issued_at":"2026-01-03T00:00:00Z"}]`),
				&hash, &expires, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewUserRepository(mock).Update(ctx, user))
	})

	t.Run("missing row wraps ErrNotFound", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewUserRepository(mock).Update(ctx, user)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("exec failure is wrapped", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET`).
			WillReturnError(errors.New("deadlock detected"))

		err := NewUserRepository(mock).Update(ctx, user)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_UPDATE_FAILED")
	})
}

func TestUserRepository_UpdateRefreshTokens(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("nil ledger is stored as empty array", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET refresh_tokens = \$2`).
			WithArgs(id.String(), []byte(`[]`), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewUserRepository(mock).UpdateRefreshTokens(ctx, id, nil))
	})

	t.Run("missing row wraps ErrNotFound", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET refresh_tokens = \$2`).
			WithArgs(id.String(), []byte(`[]`), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewUserRepository(mock).UpdateRefreshTokens(ctx, id, []auth.LedgerEntry{})
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("exec failure is wrapped", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET refresh_tokens = \$2`).
			WillReturnError(errors.New("timeout"))

		err := NewUserRepository(mock).UpdateRefreshTokens(ctx, id, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_UPDATE_TOKENS_FAILED")
	})
}
