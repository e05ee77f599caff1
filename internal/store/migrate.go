// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package store

import (
	"cmp"
	"embed"
	"errors"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateIface is the part of *migrate.Migrate the Migrator drives.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator applies the embedded users schema.
type Migrator struct {
	m migrateIface
}

// NewMigrator opens a migrator against databaseURL. postgres:// and
// postgresql:// URLs are rewritten to the pgx5:// scheme golang-migrate expects.
func NewMigrator(databaseURL string) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "open embedded migrations").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").With("operation", "initialize migrator").Wrap(err)
	}
	return &Migrator{m: m}, nil
}

func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// Up applies every pending migration. Already being current is not an error.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Down rolls back every migration, dropping the users table and its data.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	return nil
}

// Steps migrates n versions up (n > 0) or down (n < 0).
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_STEPS_FAILED").With("steps", n).Wrap(err)
	}
	return nil
}

// Version reports the applied version and whether the last migration left
// the schema dirty. An empty database is version 0.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force records version as applied without running anything. It exists to
// clear a dirty flag after a manual repair.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	switch {
	case srcErr != nil && dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").
			With("component", "both").
			Errorf("source: %v; database: %v", srcErr, dbErr)
	case srcErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "source").Wrap(srcErr)
	case dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "database").Wrap(dbErr)
	}
	return nil
}

// Migration is one embedded schema change.
type Migration struct {
	Version uint
	// Name is the file stem, for example 000001_create_users.
	Name string
}

var embeddedMigrations = sync.OnceValues(func() ([]Migration, error) {
	return parseMigrations(migrationsFS, "migrations")
})

// Migrations lists the embedded schema changes in version order.
func Migrations() ([]Migration, error) {
	list, err := embeddedMigrations()
	if err != nil {
		return nil, err
	}
	return slices.Clone(list), nil
}

// parseMigrations reads the NNNNNN_name.up.sql files under dir. A misnamed or
// duplicated up file is an error so it cannot be skipped at deploy time.
func parseMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").With("operation", "read migrations dir").Wrap(err)
	}

	var out []Migration
	seen := make(map[uint]string)
	for _, entry := range entries {
		stem, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if !ok {
			continue
		}
		prefix, _, found := strings.Cut(stem, "_")
		version, err := strconv.ParseUint(prefix, 10, 32)
		if !found || len(prefix) != 6 || err != nil || version == 0 {
			return nil, oops.Code("MIGRATION_NAME_INVALID").
				With("filename", entry.Name()).
				Errorf("migration file names must look like NNNNNN_name.up.sql")
		}
		if other, dup := seen[uint(version)]; dup {
			return nil, oops.Code("MIGRATION_NAME_INVALID").
				With("filename", entry.Name()).
				Errorf("version %d is also used by %s", version, other)
		}
		seen[uint(version)] = stem
		out = append(out, Migration{Version: uint(version), Name: stem})
	}

	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// MigrationName returns the NNNNNN_name stem for version, or "" when no
// embedded migration has that version.
func MigrationName(version uint) (string, error) {
	list, err := embeddedMigrations()
	if err != nil {
		return "", err
	}
	for _, mig := range list {
		if mig.Version == version {
			return mig.Name, nil
		}
	}
	return "", nil
}

// SchemaStatus relates the database schema to the embedded migrations.
type SchemaStatus struct {
	Version uint
	Dirty   bool
	Latest  uint
	Pending []uint
}

// Current reports whether the users store can run against the schema.
func (s SchemaStatus) Current() bool {
	return !s.Dirty && s.Version == s.Latest
}

// Status reads the applied version and compares it with the embedded migrations.
func (m *Migrator) Status() (SchemaStatus, error) {
	return m.status("read schema status")
}

// PendingMigrations lists the versions Up would apply, ascending.
func (m *Migrator) PendingMigrations() ([]uint, error) {
	st, err := m.status("get pending migrations")
	if err != nil {
		return nil, err
	}
	return st.Pending, nil
}

// CheckSchema fails unless the schema is clean and at the latest embedded
// version. The user repository queries columns and indexes that older
// versions lack, and a dirty schema may be half applied.
func (m *Migrator) CheckSchema() error {
	st, err := m.status("check schema")
	if err != nil {
		return err
	}
	switch {
	case st.Dirty:
		return oops.Code("SCHEMA_DIRTY").
			With("version", st.Version).
			Hint("repair the database, then run: collabdoc migrate force <version>").
			Errorf("schema version %d is dirty", st.Version)
	case st.Version > st.Latest:
		return oops.Code("SCHEMA_TOO_NEW").
			With("version", st.Version).
			With("latest", st.Latest).
			Errorf("schema version %d is newer than this build supports (%d)", st.Version, st.Latest)
	case len(st.Pending) > 0:
		return oops.Code("SCHEMA_OUTDATED").
			With("version", st.Version).
			With("pending", st.Pending).
			Hint("run: collabdoc migrate up").
			Errorf("schema version %d has %d pending migration(s)", st.Version, len(st.Pending))
	}
	return nil
}

func (m *Migrator) status(operation string) (SchemaStatus, error) {
	version, dirty, err := m.Version()
	if err != nil {
		return SchemaStatus{}, oops.With("operation", operation).Wrap(err)
	}
	list, err := embeddedMigrations()
	if err != nil {
		return SchemaStatus{}, oops.With("operation", operation).Wrap(err)
	}

	st := SchemaStatus{Version: version, Dirty: dirty}
	for _, mig := range list {
		st.Latest = max(st.Latest, mig.Version)
		if mig.Version > version {
			st.Pending = append(st.Pending, mig.Version)
		}
	}
	return st, nil
}
