// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

// Package auth implements the credential and session lifecycle: password
// hashing, access and refresh token issuance, the per-user refresh token
// ledger, request authentication and the password reset flow.
//
// # Building blocks
//
//   - CredentialStore - user persistence plus argon2id password hashing
//   - TokenIssuer - HS256 access and refresh tokens with distinct secrets
//   - Ledger - refresh tokens a user may still exchange
//   - Authenticator - access token to resolved user
//
// # Services
//
//   - Service - signup, login, refresh, logout
//   - PasswordResetService - forgot-password and reset-password
//
// A refresh token is honoured only if it verifies AND is still in its
// owner's ledger, so logout and password reset revoke tokens that are
// still cryptographically valid.
//
// # Errors
//
// Every error carries an oops code. KindOf maps codes onto the closed Kind
// set that the HTTP layer turns into status codes. Authentication failures
// share one code regardless of cause.
package auth
