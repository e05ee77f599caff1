// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package main

import (
	"context"
	"io"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/config"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/observability"
	"github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/ratelimit"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader reads the layered configuration.
	// Default: loadConfig
	ConfigLoader func(flags *pflag.FlagSet) (*config.Config, error)

	// RepositoryFactory opens the user store. The returned func releases it.
	// Default: a pgx pool wrapped by postgres.NewUserRepository
	RepositoryFactory func(ctx context.Context, cfg *config.Config) (auth.UserRepository, func(), error)

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// LimiterFactory builds the rate limiter. A nil limiter disables throttling.
	// Default: Redis when a URL is configured, otherwise in-process
	LimiterFactory func(cfg *config.Config, reg prometheus.Registerer) (ratelimit.Limiter, func(), error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// Notifier delivers password reset links.
	// Default: auth.NewLogNotifier
	Notifier auth.Notifier

	// LogWriter receives log output.
	// Default: os.Stderr
	LogWriter io.Writer
}

// AutoMigrator is the part of store.Migrator used at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// Migrator is the part of store.Migrator the migrate command drives.
type Migrator interface {
	AutoMigrator
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	CheckSchema() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registry() prometheus.Registerer
}
