// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/pkg/errutil"
)

// Public error codes and messages.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeInternal        = "INTERNAL"
	CodeRateLimited     = "RATE_LIMITED"

	msgUnauthenticated = "Invalid credentials or token"
	msgDuplicateEmail  = "User already exists with this email"
	msgInternal        = "Internal server error"
	msgRateLimited     = "Too many requests"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

// kindOf classifies err, treating request decoding failures as validation.
func kindOf(err error) auth.Kind {
	switch auth.ErrorCode(err) {
	case CodeMalformedRequest, CodeInvalidRequest:
		return auth.KindValidation
	}
	return auth.KindOf(err)
}

// writeError maps err to a status and body through the fixed kind table.
// Internal errors are logged with their oops context and never described
// to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch kindOf(err) {
	case auth.KindValidation:
		writeJSON(w, http.StatusBadRequest, errorBody{
			Message: publicMessage(err),
			Code:    auth.ErrorCode(err),
		})
	case auth.KindAuthentication, auth.KindNotFound:
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Message: msgUnauthenticated,
			Code:    CodeUnauthenticated,
		})
	case auth.KindConflict:
		writeJSON(w, http.StatusConflict, errorBody{
			Message: msgDuplicateEmail,
			Code:    auth.ErrorCode(err),
		})
	default:
		errutil.LogErrorContext(r.Context(), logger, "request failed", err,
			"method", r.Method,
			"route", routePattern(r),
			"request_id", middleware.GetReqID(r.Context()),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Message: msgInternal,
			Code:    CodeInternal,
		})
	}
}

// publicMessage returns the message of err with its first letter capitalized.
func publicMessage(err error) string {
	msg := err.Error()
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}
