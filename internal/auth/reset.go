// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset secret configuration.
const (
	ResetSecretBytes = 32 // 64 hex chars
	DefaultResetTTL  = 15 * time.Minute
)

// GenerateResetSecret creates a random reset secret and its digest.
// The secret is delivered to the user; only the digest is stored.
func GenerateResetSecret() (secret, hash string, err error) {
	b := make([]byte, ResetSecretBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", oops.Code("RESET_SECRET_GENERATE_FAILED").Wrap(err)
	}
	secret = hex.EncodeToString(b)
	return secret, HashResetSecret(secret), nil
}

// HashResetSecret returns the stored digest of a reset secret. No salt is
// used; the secret is high-entropy and single-use.
func HashResetSecret(secret string) string {
	return sha256Hex(secret)
}

// VerifyResetSecret checks secret against a stored digest in constant time.
func VerifyResetSecret(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashResetSecret(secret)), []byte(hash)) == 1
}

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// ResetDelivery is what the out-of-band channel receives for one reset
// request. It holds the raw secret and must not be persisted.
type ResetDelivery struct {
	UserID    ulid.ULID
	Name      string
	Email     string
	Secret    string
	ResetURL  string
	ExpiresAt time.Time
}

// Notifier delivers reset secrets to users.
type Notifier interface {
	DeliverReset(ctx context.Context, d ResetDelivery) error
}

// ResetURL joins base and secret. An empty base yields "".
func ResetURL(base, secret string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(secret)
}

// LogNotifier delivers reset links as structured log records. It is the
// development stand-in for a mail sender.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// DeliverReset logs the reset link for d.
func (n *LogNotifier) DeliverReset(ctx context.Context, d ResetDelivery) error {
	link := d.ResetURL
	if link == "" {
		link = d.Secret
	}
	n.logger.InfoContext(ctx, "password reset requested",
		"user_id", d.UserID.String(),
		"email", d.Email,
		"reset_link", link,
		"expires_at", d.ExpiresAt,
	)
	return nil
}
