// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/api"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth/authtest"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/observability"
)

type fixture struct {
	handler  http.Handler
	users    *authtest.MemoryUserRepository
	notifier *authtest.RecordingNotifier
	metrics  *observability.Metrics
	logs     *bytes.Buffer
	clock    *authtest.Clock
}

// newFixture wires the real auth services over an in-memory repository.
// Options adjust the router dependencies before it is built.
func newFixture(t *testing.T, opts ...func(*api.Deps)) *fixture {
	t.Helper()

	users := authtest.NewMemoryUserRepository()
	hasher := authtest.FastHasher()
	notifier := &authtest.RecordingNotifier{}
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	issuer, err := auth.NewTokenIssuer(authtest.TokenConfig())
	require.NoError(t, err)
	svc, err := auth.NewAuthServiceWithLogger(users, hasher, issuer, auth.DefaultMinPasswordLength, logger)
	require.NoError(t, err)
	resets, err := auth.NewPasswordResetServiceWithLogger(users, hasher, notifier, auth.DefaultResetPolicy(), logger)
	require.NoError(t, err)
	authenticator, err := auth.NewAuthenticator(issuer, svc.Credentials())
	require.NoError(t, err)

	clock := authtest.NewClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	deps := api.Deps{
		Auth:          svc,
		Resets:        resets,
		Authenticator: authenticator,
		Metrics:       metrics,
		Logger:        logger,
		Started:       clock.Now(),
		Now:           clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	handler, err := api.NewRouter(deps)
	require.NoError(t, err)

	return &fixture{
		handler:  handler,
		users:    users,
		notifier: notifier,
		metrics:  metrics,
		logs:     logs,
		clock:    clock,
	}
}

type request struct {
	method string
	path   string
	body   any
	token   string
	remote  string
	headers map[string]string
}

func (f *fixture) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	switch b := req.body.(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	r := httptest.NewRequest(req.method, req.path, body)
	r.Header.Set("Content-Type", "application/json")
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.remote != "" {
		r.RemoteAddr = req.remote
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)
	return rec
}

func (f *fixture) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, request{method: http.MethodPost, path: path, body: body})
}

// signup creates an account and fails the test if it does not succeed.
func (f *fixture) signup(t *testing.T, name, email, password string) {
	t.Helper()
	rec := f.post(t, "/api/auth/signup", map[string]string{"name": name, "email": email, "password": password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

type loginBody struct {
	Message      string       `json:"message"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         auth.Summary `json:"user"`
}

// login returns the token pair of a successful login.
func (f *fixture) login(t *testing.T, email, password string) loginBody {
	t.Helper()
	rec := f.post(t, "/api/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[loginBody](t, rec)
}

type noopResets struct{}

func (noopResets) RequestReset(context.Context, string) error         { return nil }
func (noopResets) PerformReset(context.Context, string, string) error { return nil }

type noopAuthenticator struct{}

func (noopAuthenticator) Authenticate(ctx context.Context, _ string) (context.Context, *auth.User, error) {
	return ctx, nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
