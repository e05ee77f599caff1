// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCleanupInterval is how often LocalLimiter drops expired windows.
const DefaultCleanupInterval = time.Minute

type window struct {
	count   int64
	resetAt time.Time
}

// LocalLimiter keeps counters in memory. It is safe for concurrent use.
// Counters are per process, so replicas each enforce their own budget.
//
// A background goroutine evicts expired windows. Call Close to stop it.
type LocalLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	keysGauge prometheus.Gauge
}

// LocalOption configures a LocalLimiter.
type LocalOption func(*LocalLimiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LocalOption {
	return func(l *LocalLimiter) { l.now = now }
}

// WithRegistry registers a gauge of tracked keys with reg.
func WithRegistry(reg prometheus.Registerer) LocalOption {
	return func(l *LocalLimiter) {
		l.keysGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collabdoc_ratelimit_tracked_keys",
			Help: "Number of keys with a live rate limit window",
		})
		reg.MustRegister(l.keysGauge)
	}
}

// NewLocalLimiter starts a LocalLimiter that sweeps expired windows every
// cleanupInterval (DefaultCleanupInterval if zero).
func NewLocalLimiter(cleanupInterval time.Duration, opts ...LocalOption) *LocalLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	l := &LocalLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.cleanupLoop(cleanupInterval)
	return l
}

// Allow counts one request for key.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(win)}
		l.windows[key] = w
		l.updateGauge()
	}

	if w.count >= int64(limit) {
		return Decision{RetryAfter: w.resetAt.Sub(now)}, nil
	}
	w.count++
	return Decision{Allowed: true, Remaining: remaining(limit, w.count)}, nil
}

// Len returns the number of tracked keys.
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (l *LocalLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

func (l *LocalLimiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep drops every window that has ended.
func (l *LocalLimiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
	l.updateGauge()
}

// updateGauge must be called with mu held.
func (l *LocalLimiter) updateGauge() {
	if l.keysGauge != nil {
		l.keysGauge.Set(float64(len(l.windows)))
	}
}

var _ Limiter = (*LocalLimiter)(nil)
