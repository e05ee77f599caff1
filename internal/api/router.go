// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

// Package api is the HTTP binding of the auth services.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/observability"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/ratelimit"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 64 << 10

// AuthService is the account and session half of the auth core.
type AuthService interface {
	Signup(ctx context.Context, name, email, password string) (*auth.User, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, user *auth.User) error
}

// ResetService is the password reset half of the auth core.
type ResetService interface {
	RequestReset(ctx context.Context, email string) error
	PerformReset(ctx context.Context, secret, newPassword string) error
}

// Authenticator resolves an access token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (context.Context, *auth.User, error)
}

// Deps are the collaborators of the router.
type Deps struct {
	Auth          AuthService
	Resets        ResetService
	Authenticator Authenticator

	// Limiter throttles login and password reset. Nil disables throttling.
	Limiter     ratelimit.Limiter
	LoginPolicy ratelimit.Policy
	ResetPolicy ratelimit.Policy
	// FailOpen lets requests through when the limiter backend errors.
	FailOpen bool
	// TrustProxy takes the client address from forwarding headers.
	TrustProxy bool

	// Metrics may be nil.
	Metrics *observability.Metrics
	Logger  *slog.Logger
	// Started is reported as uptime by /health. Defaults to now.
	Started time.Time
	// Now defaults to time.Now.
	Now func() time.Time
}

type server struct {
	auth          AuthService
	resets        ResetService
	authenticator Authenticator
	limiter       ratelimit.Limiter
	failOpen      bool
	metrics       *observability.Metrics
	logger        *slog.Logger
	started       time.Time
	now           func() time.Time
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) (http.Handler, error) {
	if d.Auth == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if d.Resets == nil {
		return nil, oops.Errorf("reset service is required")
	}
	if d.Authenticator == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	if d.Logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if d.Limiter != nil {
		if d.LoginPolicy.Limit < 1 || d.LoginPolicy.Window <= 0 {
			return nil, oops.With("policy", d.LoginPolicy.String()).Errorf("login rate limit policy is invalid")
		}
		if d.ResetPolicy.Limit < 1 || d.ResetPolicy.Window <= 0 {
			return nil, oops.With("policy", d.ResetPolicy.String()).Errorf("reset rate limit policy is invalid")
		}
	}

	s := &server{
		auth:          d.Auth,
		resets:        d.Resets,
		authenticator: d.Authenticator,
		limiter:       d.Limiter,
		failOpen:      d.FailOpen,
		metrics:       d.Metrics,
		logger:        d.Logger,
		started:       d.Started,
		now:           d.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.started.IsZero() {
		s.started = s.now()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if d.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Message: "Route not found", Code: "NOT_FOUND"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Message: "Method not allowed", Code: "METHOD_NOT_ALLOWED"})
	})

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.With(s.throttle("login", d.LoginPolicy)).Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.With(s.throttle("forgot_password", d.ResetPolicy)).Post("/forgot-password", s.handleForgotPassword)
		r.With(s.throttle("reset_password", d.ResetPolicy)).Post("/reset-password/{token}", s.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/me", s.handleMe)
			r.Post("/logout-all", s.handleLogoutAll)
		})
	})

	return r, nil
}
