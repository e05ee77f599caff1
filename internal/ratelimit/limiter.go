// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

// Package ratelimit throttles abuse-prone endpoints with fixed-window
// counters kept either in process or in Redis.
package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// Remaining is how many more requests the current window admits.
	Remaining int
	// RetryAfter is how long until the window resets. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Policy is a request budget: Limit requests per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// String renders p in the form ParsePolicy accepts.
func (p Policy) String() string {
	return strconv.Itoa(p.Limit) + "/" + p.Window.String()
}

// ParsePolicy parses "N/duration", for example "10/1m" or "5/15m".
func ParsePolicy(s string) (Policy, error) {
	count, window, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Policy{}, oops.Code("RATE_LIMIT_POLICY_INVALID").
			With("policy", s).
			Errorf("rate limit policy must look like N/duration")
	}
	limit, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || limit < 1 {
		return Policy{}, oops.Code("RATE_LIMIT_POLICY_INVALID").
			With("policy", s).
			Errorf("rate limit count must be a positive integer")
	}
	d, err := time.ParseDuration(strings.TrimSpace(window))
	if err != nil || d <= 0 {
		return Policy{}, oops.Code("RATE_LIMIT_POLICY_INVALID").
			With("policy", s).
			Errorf("rate limit window must be a positive duration")
	}
	return Policy{Limit: limit, Window: d}, nil
}

// MustParsePolicy is ParsePolicy for constants. It panics on error.
func MustParsePolicy(s string) Policy {
	p, err := ParsePolicy(s)
	if err != nil {
		panic(err)
	}
	return p
}

func remaining(limit int, count int64) int {
	if r := int64(limit) - count; r > 0 {
		return int(r)
	}
	return 0
}
