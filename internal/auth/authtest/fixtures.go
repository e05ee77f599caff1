// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
)

// Secrets used by TokenConfig.
const (
	AccessSecret  = "test-access-secret-0123456789abcdef"
	RefreshSecret = "test-refresh-secret-fedcba9876543210"
)

// TokenConfig returns a deterministic token configuration with the default TTLs.
func TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  AccessSecret,
		RefreshSecret: RefreshSecret,
		AccessTTL:     auth.DefaultAccessTTL,
		RefreshTTL:    auth.DefaultRefreshTTL,
		Issuer:        "collabdoc-test",
	}
}

// FastHasher returns an argon2id hasher with cheap parameters for tests.
func FastHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Time:    1,
		Memory:  1024,
		Threads: 1,
		SaltLen: 16,
		KeyLen:  32,
	})
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// RecordingNotifier captures reset deliveries.
type RecordingNotifier struct {
	mu         sync.Mutex
	deliveries []auth.ResetDelivery
}

// DeliverReset records d.
func (n *RecordingNotifier) DeliverReset(_ context.Context, d auth.ResetDelivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, d)
	return nil
}

// Deliveries returns a copy of everything delivered so far.
func (n *RecordingNotifier) Deliveries() []auth.ResetDelivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]auth.ResetDelivery{}, n.deliveries...)
}

// Last returns the most recent delivery.
func (n *RecordingNotifier) Last() (auth.ResetDelivery, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.deliveries) == 0 {
		return auth.ResetDelivery{}, false
	}
	return n.deliveries[len(n.deliveries)-1], true
}
