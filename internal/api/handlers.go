// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/observability"
)

// Success messages.
const (
	msgRunning        = "Server is running successfully"
	msgSignup         = "Signup successful"
	msgLogin          = "Login successful"
	msgLogout         = "Logout successful"
	msgLogoutAll      = "Logged out of all sessions"
	msgForgotPassword = "If an account exists for that email, a reset link has been sent"
	msgResetPassword  = "Password has been reset"
)

type signupResponse struct {
	Message string       `json:"message"`
	User    auth.Summary `json:"user"`
}

type loginResponse struct {
	Message      string       `json:"message"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         auth.Summary `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type meResponse struct {
	User auth.Summary `json:"user"`
}

type healthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageBody{Message: msgRunning})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "OK",
		Uptime: s.now().Sub(s.started).Seconds(),
	})
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !s.decode(w, r, SchemaSignup, &req) {
		return
	}

	user, err := s.auth.Signup(r.Context(), req.Name, req.Email, req.Password)
	s.record("signup", err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, signupResponse{Message: msgSignup, User: user.Summary()})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !s.decode(w, r, SchemaLogin, &req) {
		return
	}

	result, err := s.auth.Login(r.Context(), req.Email, req.Password)
	s.record("login", err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Message:      msgLogin,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		User:         result.User,
	})
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !s.decode(w, r, SchemaRefreshToken, &req) {
		return
	}

	access, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	s.record("refresh", err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: access})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !s.decode(w, r, SchemaRefreshToken, &req) {
		return
	}

	err := s.auth.Logout(r.Context(), req.RefreshToken)
	s.record("logout", err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msgLogout})
}

func (s *server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !s.decode(w, r, SchemaForgotPassword, &req) {
		return
	}

	err := s.resets.RequestReset(r.Context(), req.Email)
	s.record("forgot_password", err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msgForgotPassword})
}

func (s *server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !s.decode(w, r, SchemaResetPassword, &req) {
		return
	}

	err := s.resets.PerformReset(r.Context(), chi.URLParam(r, "token"), req.Password)
	s.record("reset_password", err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msgResetPassword})
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, s.logger, oops.Code(auth.CodeUnauthenticated).Errorf("no user bound to request"))
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: user.Summary()})
}

func (s *server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, s.logger, oops.Code(auth.CodeUnauthenticated).Errorf("no user bound to request"))
		return
	}

	err := s.auth.LogoutAll(r.Context(), user)
	s.record("logout_all", err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msgLogoutAll})
}

// decode reads and validates the request body into dst, writing the error
// response itself when it fails.
func (s *server) decode(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Message: "Request body too large",
				Code:    "REQUEST_TOO_LARGE",
			})
			return false
		}
		writeError(w, r, s.logger, malformed(err))
		return false
	}

	if err := ValidateRequest(schema, body, dst); err != nil {
		writeError(w, r, s.logger, err)
		return false
	}
	return true
}

// record counts an auth operation by outcome.
func (s *server) record(operation string, err error) {
	outcome := observability.OutcomeSuccess
	if err != nil {
		outcome = observability.OutcomeFailure
		if kindOf(err) == auth.KindInternal {
			outcome = observability.OutcomeError
		}
	}
	s.metrics.RecordAuth(operation, outcome)
}
