// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/api"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth/authtest"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth/postgres"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/observability"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/ratelimit"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/store"
)

// testEnv holds the resources shared by the end-to-end specs.
type testEnv struct {
	container *pgcontainer.PostgresContainer
	pool      *pgxpool.Pool
	redis     *miniredis.Miniredis
	client    *redis.Client
	notifier  *authtest.RecordingNotifier
	server    *httptest.Server
}

var env *testEnv

var _ = BeforeSuite(func() {
	ctx := context.Background()
	env = &testEnv{notifier: &authtest.RecordingNotifier{}}

	var err error
	env.container, err = pgcontainer.Run(ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("collabdoc_e2e"),
		pgcontainer.WithUsername("collabdoc"),
		pgcontainer.WithPassword("collabdoc"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := env.container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	env.pool, err = store.Connect(ctx, store.DefaultPoolConfig(connStr))
	Expect(err).NotTo(HaveOccurred())

	env.redis, err = miniredis.Run()
	Expect(err).NotTo(HaveOccurred())
	env.client = redis.NewClient(&redis.Options{Addr: env.redis.Addr()})

	logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))
	users := postgres.NewUserRepository(env.pool)
	hasher := authtest.FastHasher()

	issuer, err := auth.NewTokenIssuer(authtest.TokenConfig())
	Expect(err).NotTo(HaveOccurred())
	svc, err := auth.NewAuthServiceWithLogger(users, hasher, issuer, auth.DefaultMinPasswordLength, logger)
	Expect(err).NotTo(HaveOccurred())
	resets, err := auth.NewPasswordResetServiceWithLogger(users, hasher, env.notifier, auth.DefaultResetPolicy(), logger)
	Expect(err).NotTo(HaveOccurred())
	authenticator, err := auth.NewAuthenticator(issuer, svc.Credentials())
	Expect(err).NotTo(HaveOccurred())

	handler, err := api.NewRouter(api.Deps{
		Auth:          svc,
		Resets:        resets,
		Authenticator: authenticator,
		Limiter:       ratelimit.NewRedisLimiter(env.client, ratelimit.DefaultRedisPrefix),
		LoginPolicy:   ratelimit.MustParsePolicy("5/1m"),
		ResetPolicy:   ratelimit.MustParsePolicy("5/15m"),
		Metrics:       observability.NewMetrics(prometheus.NewRegistry()),
		Logger:        logger,
	})
	Expect(err).NotTo(HaveOccurred())
	env.server = httptest.NewServer(handler)
})

var _ = AfterSuite(func() {
	if env == nil {
		return
	}
	if env.server != nil {
		env.server.Close()
	}
	if env.client != nil {
		_ = env.client.Close()
	}
	if env.redis != nil {
		env.redis.Close()
	}
	if env.pool != nil {
		env.pool.Close()
	}
	if env.container != nil {
		_ = env.container.Terminate(context.Background())
	}
})

type response struct {
	status int
	body   map[string]any
}

func call(method, path string, body any, token string) response {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	out := response{status: resp.StatusCode, body: map[string]any{}}
	Expect(json.NewDecoder(resp.Body).Decode(&out.body)).To(Succeed())
	return out
}

func post(path string, body any) response {
	return call(http.MethodPost, path, body, "")
}

var _ = Describe("Account lifecycle", Ordered, func() {
	const (
		email    = "grace@example.com"
		password = "secret123"
	)
	var accessToken, refreshToken string

	BeforeAll(func() {
		env.redis.FlushAll()
	})

	It("signs up a new account", func() {
		resp := post("/api/auth/signup", map[string]string{"name": "Grace", "email": "  Grace@Example.com ", "password": password})
		Expect(resp.status).To(Equal(http.StatusCreated))
		Expect(resp.body["user"]).To(HaveKeyWithValue("email", email))
		Expect(resp.body["user"]).NotTo(HaveKey("password"))
	})

	It("rejects a second signup for the same address", func() {
		resp := post("/api/auth/signup", map[string]string{"name": "Other", "email": "GRACE@example.com", "password": password})
		Expect(resp.status).To(Equal(http.StatusConflict))
	})

	It("logs in and reads the profile", func() {
		resp := post("/api/auth/login", map[string]string{"email": email, "password": password})
		Expect(resp.status).To(Equal(http.StatusOK))
		accessToken, _ = resp.body["accessToken"].(string)
		refreshToken, _ = resp.body["refreshToken"].(string)
		Expect(accessToken).NotTo(BeEmpty())
		Expect(refreshToken).NotTo(BeEmpty())

		me := call(http.MethodGet, "/api/auth/me", nil, accessToken)
		Expect(me.status).To(Equal(http.StatusOK))
		Expect(me.body["user"]).To(HaveKeyWithValue("name", "Grace"))
	})

	It("refreshes while the session is live", func() {
		resp := post("/api/auth/refresh", map[string]string{"refreshToken": refreshToken})
		Expect(resp.status).To(Equal(http.StatusOK))
		Expect(resp.body["accessToken"]).NotTo(BeEmpty())
	})

	It("revokes the refresh token on logout", func() {
		Expect(post("/api/auth/logout", map[string]string{"refreshToken": refreshToken}).status).To(Equal(http.StatusOK))
		Expect(post("/api/auth/refresh", map[string]string{"refreshToken": refreshToken}).status).To(Equal(http.StatusUnauthorized))
		Expect(post("/api/auth/logout", map[string]string{"refreshToken": refreshToken}).status).
			To(Equal(http.StatusOK), "logout is idempotent")
	})

	It("resets the password and ends every session", func() {
		other := post("/api/auth/login", map[string]string{"email": email, "password": password})
		Expect(other.status).To(Equal(http.StatusOK))
		otherRefresh, _ := other.body["refreshToken"].(string)

		Expect(post("/api/auth/forgot-password", map[string]string{"email": email}).status).To(Equal(http.StatusOK))
		delivery, ok := env.notifier.Last()
		Expect(ok).To(BeTrue())
		Expect(delivery.Email).To(Equal(email))

		reset := post("/api/auth/reset-password/"+delivery.Secret, map[string]string{"password": "brand-new-pass"})
		Expect(reset.status).To(Equal(http.StatusOK))

		Expect(post("/api/auth/refresh", map[string]string{"refreshToken": otherRefresh}).status).To(Equal(http.StatusUnauthorized))
		Expect(post("/api/auth/reset-password/"+delivery.Secret, map[string]string{"password": "another-pass"}).status).
			To(Equal(http.StatusBadRequest), "reset secrets are single use")
		Expect(post("/api/auth/login", map[string]string{"email": email, "password": password}).status).To(Equal(http.StatusUnauthorized))
		Expect(post("/api/auth/login", map[string]string{"email": email, "password": "brand-new-pass"}).status).To(Equal(http.StatusOK))
	})
})

var _ = Describe("Login throttling", Ordered, func() {
	BeforeAll(func() {
		env.redis.FlushAll()
	})

	It("answers 429 once the per-client budget is spent", func() {
		for range 5 {
			resp := post("/api/auth/login", map[string]string{"email": "nobody@example.com", "password": "wrong-pass"})
			Expect(resp.status).To(Equal(http.StatusUnauthorized))
		}
		resp := post("/api/auth/login", map[string]string{"email": "nobody@example.com", "password": "wrong-pass"})
		Expect(resp.status).To(Equal(http.StatusTooManyRequests))
		Expect(resp.body).To(HaveKeyWithValue("code", api.CodeRateLimited))
	})

	It("restores the budget after the window", func() {
		env.redis.FastForward(time.Minute)
		resp := post("/api/auth/login", map[string]string{"email": "nobody@example.com", "password": "wrong-pass"})
		Expect(resp.status).To(Equal(http.StatusUnauthorized))
	})
})
