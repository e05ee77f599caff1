// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/api"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth/postgres"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/config"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/logging"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/observability"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/ratelimit"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/store"
)

const (
	serviceName = "collabdoc"
	// limiterSweepInterval is how often the in-process limiter drops expired windows.
	limiterSweepInterval = time.Minute
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP API that handles signup, login, token refresh, logout
and password reset, together with the metrics and health server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	defaults := config.Defaults()
	cmd.Flags().String("listen", defaults.Server.Listen, "API listen address")
	cmd.Flags().String("metrics-addr", defaults.Server.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (default: DATABASE_URL)")
	cmd.Flags().Bool("auto-migrate", false, "apply pending migrations before serving")
	cmd.Flags().String("log-format", defaults.Log.Format, "log format (json or text)")
	cmd.Flags().String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	cmd.Flags().String("redis-url", "", "Redis URL for shared rate limiting (default: in-process)")

	return cmd
}

// runServeWithDeps starts the API server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}
	applyServeDefaults(deps)

	cfg, err := deps.ConfigLoader(cmd.Flags())
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  deps.LogWriter,
	})
	logger.Info("starting auth server", "config", cfg.Redacted())

	if cfg.Database.AutoMigrate {
		if err := runAutoMigration(cfg.Database.URL, deps.MigratorFactory); err != nil {
			return err
		}
	}

	users, closeUsers, err := deps.RepositoryFactory(ctx, cfg)
	if err != nil {
		return oops.With("operation", "open user store").Wrap(err)
	}
	defer closeUsers()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	var registry prometheus.Registerer
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, ready.Load)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		registry = obsServer.Registry()
	}
	defer func() {
		if obsServer == nil {
			return
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}()

	limiter, closeLimiter, err := deps.LimiterFactory(cfg, registry)
	if err != nil {
		return oops.With("operation", "create rate limiter").Wrap(err)
	}
	defer closeLimiter()

	handler, err := buildHandler(cfg, users, limiter, metrics, deps.Notifier, logger)
	if err != nil {
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Listen)
	if err != nil {
		return oops.With("operation", "listen").With("addr", cfg.Server.Listen).Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()
	ready.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Auth server listening on", listener.Addr().String())
	logger.Info("auth server ready", "addr", listener.Addr().String())

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case serveErr = <-errChan:
		logger.Error("API server error", "error", serveErr)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping API server", "error", err)
	}

	logger.Info("shutdown complete")
	if serveErr != nil {
		return oops.With("operation", "serve").Wrap(serveErr)
	}
	return nil
}

func applyServeDefaults(deps *ServeDeps) {
	if deps.ConfigLoader == nil {
		deps.ConfigLoader = loadConfig
	}
	if deps.RepositoryFactory == nil {
		deps.RepositoryFactory = openPostgresUsers
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if deps.LimiterFactory == nil {
		deps.LimiterFactory = newLimiter
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
}

// buildHandler wires the auth services behind the HTTP router.
func buildHandler(
	cfg *config.Config,
	users auth.UserRepository,
	limiter ratelimit.Limiter,
	metrics *observability.Metrics,
	notifier auth.Notifier,
	logger *slog.Logger,
) (http.Handler, error) {
	if notifier == nil {
		notifier = auth.NewLogNotifier(logger)
	}
	hasher := auth.NewArgon2idHasher()

	issuer, err := auth.NewTokenIssuer(cfg.TokenConfig())
	if err != nil {
		return nil, oops.With("operation", "create token issuer").Wrap(err)
	}
	svc, err := auth.NewAuthServiceWithLogger(users, hasher, issuer, cfg.Auth.MinPasswordLength, logger)
	if err != nil {
		return nil, oops.With("operation", "create auth service").Wrap(err)
	}
	resets, err := auth.NewPasswordResetServiceWithLogger(users, hasher, notifier, cfg.ResetPolicy(), logger)
	if err != nil {
		return nil, oops.With("operation", "create password reset service").Wrap(err)
	}
	authenticator, err := auth.NewAuthenticator(issuer, svc.Credentials())
	if err != nil {
		return nil, oops.With("operation", "create authenticator").Wrap(err)
	}

	// Validate has already parsed both policies.
	loginPolicy, _ := cfg.LoginPolicy()      //nolint:errcheck // validated
	resetPolicy, _ := cfg.ResetLimitPolicy() //nolint:errcheck // validated

	//nolint:wrapcheck // router errors carry their own context
	return api.NewRouter(api.Deps{
		Auth:          svc,
		Resets:        resets,
		Authenticator: authenticator,
		Limiter:       limiter,
		LoginPolicy:   loginPolicy,
		ResetPolicy:   resetPolicy,
		FailOpen:      cfg.RateLimit.FailOpen,
		TrustProxy:    cfg.Server.TrustProxy,
		Metrics:       metrics,
		Logger:        logger,
		Started:       time.Now(),
	})
}

// openPostgresUsers connects the pool and wraps it in the user repository.
func openPostgresUsers(ctx context.Context, cfg *config.Config) (auth.UserRepository, func(), error) {
	poolCfg := store.DefaultPoolConfig(cfg.Database.URL)
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := store.Connect(ctx, poolCfg)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // store errors carry codes
	}
	slog.Info("connected to database")
	return postgres.NewUserRepository(pool), pool.Close, nil
}

// newLimiter selects Redis when a URL is configured so that budgets are
// shared across instances, and the in-process limiter otherwise.
func newLimiter(cfg *config.Config, reg prometheus.Registerer) (ratelimit.Limiter, func(), error) {
	if cfg.RateLimit.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(cfg.RateLimit.RedisURL)
		if err != nil {
			return nil, nil, err //nolint:wrapcheck // ratelimit errors carry codes
		}
		closeClient := func() {
			if err := client.Close(); err != nil {
				slog.Debug("error closing redis client", "error", err)
			}
		}
		slog.Info("rate limiting via redis", "url", cfg.Redacted().RateLimit.RedisURL)
		return ratelimit.NewRedisLimiter(client, ratelimit.DefaultRedisPrefix), closeClient, nil
	}

	var opts []ratelimit.LocalOption
	if reg != nil {
		opts = append(opts, ratelimit.WithRegistry(reg))
	}
	local := ratelimit.NewLocalLimiter(limiterSweepInterval, opts...)
	return local, local.Close, nil
}

// runAutoMigration applies pending migrations before serving.
func runAutoMigration(databaseURL string, factory func(string) (AutoMigrator, error)) error {
	slog.Info("running database migrations")
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.With("operation", "run migrations").Wrap(err)
	}
	slog.Info("database migrations complete")
	return nil
}

// monitorServerErrors cancels ctx when a background server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("server error, triggering shutdown", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
