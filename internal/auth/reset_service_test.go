// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth/authtest"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth/mocks"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/pkg/errutil"
)

type resetFixture struct {
	repo     *authtest.MemoryUserRepository
	notifier *authtest.RecordingNotifier
	reset    *auth.PasswordResetService
	auth     *auth.Service
}

func newResetFixture(t *testing.T, policy auth.ResetPolicy) *resetFixture {
	t.Helper()
	repo := authtest.NewMemoryUserRepository()
	hasher := authtest.FastHasher()
	notifier := &authtest.RecordingNotifier{}

	reset, err := auth.NewPasswordResetService(repo, hasher, notifier, policy)
	require.NoError(t, err)
	issuer, err := auth.NewTokenIssuer(authtest.TokenConfig())
	require.NoError(t, err)
	svc, err := auth.NewAuthService(repo, hasher, issuer, policy.MinPasswordLength)
	require.NoError(t, err)

	return &resetFixture{repo: repo, notifier: notifier, reset: reset, auth: svc}
}

func TestNewPasswordResetService_Validation(t *testing.T) {
	repo := mocks.NewMockUserRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	notifier := mocks.NewMockNotifier(t)
	policy := auth.DefaultResetPolicy()

	tests := []struct {
		name        string
		build       func() (*auth.PasswordResetService, error)
		expectError string
	}{
		{
			name: "nil user repository",
			build: func() (*auth.PasswordResetService, error) {
				return auth.NewPasswordResetService(nil, hasher, notifier, policy)
			},
			expectError: "user repository is required",
		},
		{
			name: "nil hasher",
			build: func() (*auth.PasswordResetService, error) {
				return auth.NewPasswordResetService(repo, nil, notifier, policy)
			},
			expectError: "password hasher is required",
		},
		{
			name: "nil notifier",
			build: func() (*auth.PasswordResetService, error) {
				return auth.NewPasswordResetService(repo, hasher, nil, policy)
			},
			expectError: "notifier is required",
		},
		{
			name: "nil logger",
			build: func() (*auth.PasswordResetService, error) {
				return auth.NewPasswordResetServiceWithLogger(repo, hasher, notifier, policy, nil)
			},
			expectError: "logger is required",
		},
		{
			name: "non-positive TTL",
			build: func() (*auth.PasswordResetService, error) {
				return auth.NewPasswordResetService(repo, hasher, notifier, auth.ResetPolicy{MinPasswordLength: 6})
			},
			expectError: "reset TTL must be positive",
		},
		{
			name: "zero minimum length",
			build: func() (*auth.PasswordResetService, error) {
				return auth.NewPasswordResetService(repo, hasher, notifier, auth.ResetPolicy{TTL: time.Minute})
			},
			expectError: "minimum password length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := tt.build()
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestPasswordResetService_RequestReset(t *testing.T) {
	ctx := context.Background()

	t.Run("stores only the digest and delivers the raw secret", func(t *testing.T) {
		policy := auth.DefaultResetPolicy()
		policy.URLBase = "https://app.example.com/reset-password"
		f := newResetFixture(t, policy)
		created, err := f.auth.Signup(ctx, "Ada", "a@x.com", "secret1")
		require.NoError(t, err)

		before := time.Now()
		require.NoError(t, f.reset.RequestReset(ctx, " A@X.com "))

		delivery, ok := f.notifier.Last()
		require.True(t, ok)
		assert.Equal(t, created.ID, delivery.UserID)
		assert.Equal(t, "a@x.com", delivery.Email)
		assert.Len(t, delivery.Secret, 64)
		assert.Equal(t, "https://app.example.com/reset-password/"+delivery.Secret, delivery.ResetURL)
		assert.WithinDuration(t, before.Add(auth.DefaultResetTTL), delivery.ExpiresAt, 5*time.Second)

		stored, _ := f.repo.Stored(created.ID)
		require.NotNil(t, stored.ResetHash)
		require.NotNil(t, stored.ResetExpires)
		assert.Equal(t, auth.HashResetSecret(delivery.Secret), *stored.ResetHash)
		assert.NotEqual(t, delivery.Secret, *stored.ResetHash)
	})

	t.Run("unknown email succeeds silently", func(t *testing.T) {
		f := newResetFixture(t, auth.DefaultResetPolicy())

		require.NoError(t, f.reset.RequestReset(ctx, "nobody@x.com"))
		assert.Empty(t, f.notifier.Deliveries())
	})

	t.Run("known and unknown emails are indistinguishable", func(t *testing.T) {
		f := newResetFixture(t, auth.DefaultResetPolicy())
		_, err := f.auth.Signup(ctx, "Ada", "a@x.com", "secret1")
		require.NoError(t, err)

		known := f.reset.RequestReset(ctx, "a@x.com")
		unknown := f.reset.RequestReset(ctx, "nobody@x.com")
		assert.Equal(t, known, unknown)
	})

	t.Run("a new request supersedes the previous secret", func(t *testing.T) {
		f := newResetFixture(t, auth.DefaultResetPolicy())
		_, err := f.auth.Signup(ctx, "Ada", "a@x.com", "secret1")
		require.NoError(t, err)

		require.NoError(t, f.reset.RequestReset(ctx, "a@x.com"))
		first, _ := f.notifier.Last()
		require.NoError(t, f.reset.RequestReset(ctx, "a@x.com"))
		second, _ := f.notifier.Last()
		require.NotEqual(t, first.Secret, second.Secret)

		err = f.reset.PerformReset(ctx, first.Secret, "newpass1")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidOrExpiredReset)
		require.NoError(t, f.reset.PerformReset(ctx, second.Secret, "newpass1"))
	})

	t.Run("empty email is a validation error", func(t *testing.T) {
		f := newResetFixture(t, auth.DefaultResetPolicy())

		err := f.reset.RequestReset(ctx, "  ")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
	})

	t.Run("storage failure is internal", func(t *testing.T) {
		repo := mocks.NewMockUserRepository(t)
		svc, err := auth.NewPasswordResetService(repo, mocks.NewMockPasswordHasher(t), mocks.NewMockNotifier(t), auth.DefaultResetPolicy())
		require.NoError(t, err)

		repo.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, errors.New("db down"))

		err = svc.RequestReset(ctx, "a@x.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_REQUEST_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "GetByEmail")
	})

	t.Run("update failure is internal and nothing is delivered", func(t *testing.T) {
		repo := mocks.NewMockUserRepository(t)
		notifier := mocks.NewMockNotifier(t)
		svc, err := auth.NewPasswordResetService(repo, mocks.NewMockPasswordHasher(t), notifier, auth.DefaultResetPolicy())
		require.NoError(t, err)

		user := &auth.User{ID: ulid.Make(), Email: "a@x.com"}
		repo.On("GetByEmail", mock.Anything, "a@x.com").Return(user, nil)
		repo.On("Update", mock.Anything, user).Return(errors.New("write failed"))

		err = svc.RequestReset(ctx, "a@x.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_REQUEST_FAILED")
		notifier.AssertNotCalled(t, "DeliverReset", mock.Anything, mock.Anything)
	})
}

func TestPasswordResetService_RequestReset_DeliveryFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewMockUserRepository(t)
	notifier := mocks.NewMockNotifier(t)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	svc, err := auth.NewPasswordResetServiceWithLogger(
		repo, mocks.NewMockPasswordHasher(t), notifier, auth.DefaultResetPolicy(), logger)
	require.NoError(t, err)

	user := &auth.User{ID: ulid.Make(), Email: "a@x.com"}
	repo.On("GetByEmail", mock.Anything, "a@x.com").Return(user, nil)
	repo.On("Update", mock.Anything, user).Return(nil)
	notifier.On("DeliverReset", mock.Anything, mock.MatchedBy(func(d auth.ResetDelivery) bool {
		return d.UserID == user.ID && len(d.Secret) == 64
	})).Return(errors.New("smtp unavailable"))

	require.NoError(t, svc.RequestReset(ctx, "a@x.com"), "delivery failure must not reveal the account")

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, "best-effort reset delivery failed")
	assert.Contains(t, out, `"operation":"deliver_reset"`)
	assert.NotContains(t, out, *user.ResetHash, "digest is not logged")
}

func TestPasswordResetService_PerformReset(t *testing.T) {
	ctx := context.Background()

	t.Run("sets the password, clears the reset and revokes every session", func(t *testing.T) {
		f := newResetFixture(t, auth.DefaultResetPolicy())
		created, err := f.auth.Signup(ctx, "Ada", "a@x.com", "secret1")
		require.NoError(t, err)
		first, err := f.auth.Login(ctx, "a@x.com", "secret1")
		require.NoError(t, err)
		second, err := f.auth.Login(ctx, "a@x.com", "secret1")
		require.NoError(t, err)

		require.NoError(t, f.reset.RequestReset(ctx, "a@x.com"))
		delivery, _ := f.notifier.Last()

		require.NoError(t, f.reset.PerformReset(ctx, delivery.Secret, "newpass1"))

		stored, _ := f.repo.Stored(created.ID)
		assert.Nil(t, stored.ResetHash)
		assert.Nil(t, stored.ResetExpires)
		assert.Empty(t, stored.RefreshTokens)

		for _, token := range []string{first.Tokens.RefreshToken, second.Tokens.RefreshToken} {
			_, err := f.auth.Refresh(ctx, token)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
		}

		_, err = f.auth.Login(ctx, "a@x.com", "secret1")
		require.Error(t, err)
		_, err = f.auth.Login(ctx, "a@x.com", "newpass1")
		require.NoError(t, err)
	})

	t.Run("secret is single-use", func(t *testing.T) {
		f := newResetFixture(t, auth.DefaultResetPolicy())
		_, err := f.auth.Signup(ctx, "Ada", "a@x.com", "secret1")
		require.NoError(t, err)
		require.NoError(t, f.reset.RequestReset(ctx, "a@x.com"))
		delivery, _ := f.notifier.Last()

		require.NoError(t, f.reset.PerformReset(ctx, delivery.Secret, "newpass1"))

		err = f.reset.PerformReset(ctx, delivery.Secret, "newpass2")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidOrExpiredReset)
		assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	})

	t.Run("expired secret is rejected", func(t *testing.T) {
		policy := auth.DefaultResetPolicy()
		policy.TTL = 50 * time.Millisecond
		f := newResetFixture(t, policy)
		_, err := f.auth.Signup(ctx, "Ada", "a@x.com", "secret1")
		require.NoError(t, err)
		require.NoError(t, f.reset.RequestReset(ctx, "a@x.com"))
		delivery, _ := f.notifier.Last()

		time.Sleep(100 * time.Millisecond)

		err = f.reset.PerformReset(ctx, delivery.Secret, "newpass1")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidOrExpiredReset)
	})

	t.Run("weak password is rejected before the secret is consumed", func(t *testing.T) {
		f := newResetFixture(t, auth.DefaultResetPolicy())
		_, err := f.auth.Signup(ctx, "Ada", "a@x.com", "secret1")
		require.NoError(t, err)
		require.NoError(t, f.reset.RequestReset(ctx, "a@x.com"))
		delivery, _ := f.notifier.Last()

		err = f.reset.PerformReset(ctx, delivery.Secret, "abc")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeWeakPassword)

		require.NoError(t, f.reset.PerformReset(ctx, delivery.Secret, "long-enough"))
	})

	t.Run("unknown or empty secret is rejected", func(t *testing.T) {
		f := newResetFixture(t, auth.DefaultResetPolicy())

		for _, secret := range []string{"", strings.Repeat("ab", 32)} {
			err := f.reset.PerformReset(ctx, secret, "newpass1")
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, auth.CodeInvalidOrExpiredReset)
		}
	})

	t.Run("storage failure during lookup is internal", func(t *testing.T) {
		repo := mocks.NewMockUserRepository(t)
		svc, err := auth.NewPasswordResetService(repo, mocks.NewMockPasswordHasher(t), mocks.NewMockNotifier(t), auth.DefaultResetPolicy())
		require.NoError(t, err)

		repo.On("GetByResetHash", mock.Anything, auth.HashResetSecret("s3cret"), mock.AnythingOfType("time.Time")).
			Return(nil, errors.New("db down"))

		err = svc.PerformReset(ctx, "s3cret", "newpass1")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_PASSWORD_FAILED")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	})

	t.Run("update failure is internal", func(t *testing.T) {
		repo := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewPasswordResetService(repo, hasher, mocks.NewMockNotifier(t), auth.DefaultResetPolicy())
		require.NoError(t, err)

		user := &auth.User{ID: ulid.Make(), Email: "a@x.com", PasswordHash: storedHash}
		user.SetReset(auth.HashResetSecret("s3cret"), time.Now().Add(time.Minute))
		repo.On("GetByResetHash", mock.Anything, auth.HashResetSecret("s3cret"), mock.AnythingOfType("time.Time")).
			Return(user, nil)
		hasher.On("Hash", "newpass1").Return("$argon2id$new", nil)
		repo.On("Update", mock.Anything, user).Return(errors.New("write failed"))

		err = svc.PerformReset(ctx, "s3cret", "newpass1")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_PASSWORD_FAILED")
	})
}
