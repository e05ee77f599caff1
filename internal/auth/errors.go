// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Kind is the closed set of error classes the transport layer understands.
type Kind int

// Error kinds.
const (
	// KindInternal covers storage, signing and any unclassified failure.
	KindInternal Kind = iota
	// KindValidation is malformed or missing input the caller can correct.
	KindValidation
	// KindAuthentication is bad credentials or a bad, expired or revoked token.
	KindAuthentication
	// KindConflict is a duplicate email at signup.
	KindConflict
	// KindNotFound never reaches a client directly.
	KindNotFound
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error codes attached to errors returned by this package.
const (
	CodeInvalidInput          = "AUTH_INVALID_INPUT"
	CodeMissingCredentials    = "AUTH_MISSING_CREDENTIALS"
	CodeMissingToken          = "AUTH_TOKEN_MISSING"
	CodeWeakPassword          = "AUTH_WEAK_PASSWORD"
	CodeInvalidCredentials    = "AUTH_INVALID_CREDENTIALS"
	CodeUnauthenticated       = "AUTH_UNAUTHENTICATED"
	CodeDuplicateEmail        = "AUTH_DUPLICATE_EMAIL"
	CodeUserNotFound          = "USER_NOT_FOUND"
	CodeInvalidOrExpiredReset = "RESET_TOKEN_INVALID_OR_EXPIRED"
)

var kindByCode = map[string]Kind{
	CodeInvalidInput:          KindValidation,
	CodeMissingCredentials:    KindValidation,
	CodeMissingToken:          KindValidation,
	CodeWeakPassword:          KindValidation,
	CodeInvalidOrExpiredReset: KindValidation,
	CodeInvalidCredentials:    KindAuthentication,
	CodeUnauthenticated:       KindAuthentication,
	CodeDuplicateEmail:        KindConflict,
	CodeUserNotFound:          KindNotFound,
}

// KindOf classifies err. Errors without a known code are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	if code := ErrorCode(err); code != "" {
		if kind, ok := kindByCode[code]; ok {
			return kind
		}
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindInternal
}

// ErrorCode returns the oops code carried by err, or "" if there is none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	return codeString(oopsErr.Code())
}

func codeString(v any) string {
	s, _ := v.(string)
	return s
}

func unauthenticated() error {
	return oops.Code(CodeUnauthenticated).Errorf("invalid credentials or token")
}
