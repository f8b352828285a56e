package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// MigrationsFS holds the embedded migration files. The migrations
// package sets it from an init func so the SQL ships inside the binary:
//
//	//go:embed *.sql
//	var migrationsFS embed.FS
//
//	func init() { database.MigrationsFS = migrationsFS }
var MigrationsFS embed.FS

// MigrationsDir is the directory within MigrationsFS that holds the
// migration files. "." when the files sit at the embedded root.
var MigrationsDir = "migrations"

// Migration is one schema migration loaded from the embedded filesystem.
// Files are named VERSION_description.up.sql / VERSION_description.down.sql
// where VERSION is YYYYMMDD_HHMMSS.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// Migrate applies every pending migration, oldest first.
//
// Each migration commits in its own transaction. When migration N fails,
// 1..N-1 stay applied, N rolls back and nothing after it runs; rerunning
// Migrate after fixing the file continues from N. This matches SQLite's
// single-writer model and keeps a failed batch debuggable.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.ensureVersionTable(ctx); err != nil {
		return err
	}

	all, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	done, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range all {
		if done[m.Version] {
			continue
		}
		if err := db.runMigration(ctx, m.Up,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			m.Version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown rolls back the most recently applied migration. Intended
// for development and tests.
func (db *DB) MigrateDown(ctx context.Context) error {
	done, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}
	if len(done) == 0 {
		return nil
	}

	latest := ""
	for v := range done {
		if v > latest {
			latest = v
		}
	}

	all, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	for _, m := range all {
		if m.Version != latest {
			continue
		}
		if m.Down == "" {
			return fmt.Errorf("migration %s has no down SQL", m.Version)
		}
		if err := db.runMigration(ctx, m.Down,
			"DELETE FROM schema_migrations WHERE version = ?", m.Version,
		); err != nil {
			return fmt.Errorf("rollback %s: %w", m.Version, err)
		}
		return nil
	}
	return fmt.Errorf("migration %s not found in filesystem", latest)
}

// MigrationStatus reports applied and pending migration versions.
func (db *DB) MigrationStatus(ctx context.Context) (applied, pending []string, err error) {
	if err := db.ensureVersionTable(ctx); err != nil {
		return nil, nil, err
	}
	done, err := db.appliedVersions(ctx)
	if err != nil {
		return nil, nil, err
	}
	all, err := loadMigrations()
	if err != nil {
		return nil, nil, err
	}

	for _, m := range all {
		if done[m.Version] {
			applied = append(applied, m.Version)
		} else {
			pending = append(pending, m.Version)
		}
	}
	sort.Strings(applied)
	return applied, pending, nil
}

// runMigration executes one migration's SQL and its bookkeeping statement
// in a single transaction.
func (db *DB) runMigration(ctx context.Context, migrationSQL, recordSQL string, recordArgs ...any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, recordSQL, recordArgs...); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

func (db *DB) ensureVersionTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions: %w", err)
	}
	return done, nil
}

// loadMigrations reads every *.up.sql / *.down.sql pair from the
// embedded filesystem, sorted oldest first. An unset MigrationsFS or a
// missing directory yields no migrations rather than an error, so the
// package stays usable in tests that create their own schema.
func loadMigrations() ([]Migration, error) {
	var unset embed.FS
	if MigrationsFS == unset {
		return nil, nil
	}
	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, nil
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}

		sql, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.Up = string(sql)
		} else {
			m.Down = string(sql)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigrationFilename splits "20260105_000000_initial_schema.up.sql"
// into version "20260105_000000", name "initial_schema" and direction.
func parseMigrationFilename(filename string) (version, name string, up, ok bool) {
	base := strings.TrimSuffix(filename, ".sql")
	if base == filename {
		return "", "", false, false
	}

	switch {
	case strings.HasSuffix(base, ".up"):
		up = true
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
	default:
		return "", "", false, false
	}

	// version is the first two underscore-separated fields
	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 2 {
		return "", "", false, false
	}
	version = parts[0] + "_" + parts[1]
	if len(parts) == 3 {
		name = parts[2]
	} else {
		name = base
	}
	return version, name, up, true
}
