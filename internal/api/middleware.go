// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/ratelimit"
)

// accessLog writes one record per request and feeds the HTTP metrics.
func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			elapsed := s.now().Sub(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)

			if s.metrics != nil {
				s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
				s.metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
			}

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			s.logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
					slog.String("route", route),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", elapsed),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("remote_addr", r.RemoteAddr),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// routePattern returns the matched chi pattern. Logs and metric labels use
// it instead of the raw path so reset secrets in the URL are never recorded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// requireAuth rejects requests without a valid Bearer access token and
// binds the resolved user to the request context.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		ctx, _, err := s.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, s.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// throttle applies policy per client address under scope. It is a
// pass-through when no limiter is configured.
func (s *server) throttle(scope string, policy ratelimit.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if s.limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := s.limiter.Allow(r.Context(), scope+":"+clientIP(r), policy.Limit, policy.Window)
			if err != nil {
				if s.metrics != nil {
					s.metrics.RateLimitErrors.WithLabelValues(scope).Inc()
				}
				if s.failOpen {
					s.logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
						"operation", "rate_limit",
						"scope", scope,
						"error", err,
					)
					next.ServeHTTP(w, r)
					return
				}
				s.logger.ErrorContext(r.Context(), "rate limiter unavailable, rejecting request",
					"operation", "rate_limit",
					"scope", scope,
					"error", err,
				)
				tooManyRequests(w, policy.Window)
				return
			}

			if !decision.Allowed {
				if s.metrics != nil {
					s.metrics.RateLimited.WithLabelValues(scope).Inc()
				}
				tooManyRequests(w, decision.RetryAfter)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func tooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, errorBody{Message: msgRateLimited, Code: CodeRateLimited})
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
