// Package db implements the repository interfaces on SQL storage. One
// schema runs on both SQLite (modernc.org/sqlite) and PostgreSQL
// (lib/pq): timestamps are stored as RFC3339 text so the drivers
// round-trip identically, JSON values live in JSONB columns on postgres
// and TEXT on sqlite, and queries are written with $N placeholders that
// are rebound to ? for sqlite.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure Go sqlite driver
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps a database/sql pool together with the driver it was opened
// with.
type DB struct {
	Pool   *sql.DB
	driver string
}

// Open connects to the configured database. driver is "sqlite" or
// "postgres"; dsn is the file path for sqlite and the connection URL
// for postgres.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		return openSQLite(ctx, dsn)
	case DriverPostgres:
		return openPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

func openSQLite(ctx context.Context, path string) (*DB, error) {
	pool, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection: sqlite serializes writes anyway, and one
	// connection avoids SQLITE_BUSY under concurrent appends.
	pool.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := pool.ExecContext(ctx, pragma); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &DB{Pool: pool, driver: DriverSQLite}, nil
}

func openPostgres(ctx context.Context, url string) (*DB, error) {
	pool, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Pool: pool, driver: DriverPostgres}, nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.Pool.Close()
}

// Migrate creates the schema.
func (d *DB) Migrate(ctx context.Context) error {
	migration := migrationPostgres
	if d.driver == DriverSQLite {
		migration = migrationSQLite
	}
	if _, err := d.Pool.ExecContext(ctx, migration); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// q rewrites $N placeholders to ? when running on sqlite. Queries are
// written with each $N appearing exactly once, in order, so positional
// rebinding is safe.
func (d *DB) q(query string) string {
	if d.driver != DriverSQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// pageBounds normalizes pagination: non-positive limit means no limit.
func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 1<<31 - 1
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

const migrationPostgres = `
CREATE TABLE IF NOT EXISTS workflows (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revisions (
    id           TEXT PRIMARY KEY,
    workflow_id  TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    version      INTEGER NOT NULL,
    content_hash TEXT NOT NULL,
    document     JSONB NOT NULL,
    created_at   TEXT NOT NULL,
    UNIQUE (workflow_id, version)
);

CREATE TABLE IF NOT EXISTS runs (
    id               TEXT PRIMARY KEY,
    workflow_id      TEXT NOT NULL DEFAULT '',
    revision_id      TEXT NOT NULL,
    status           TEXT NOT NULL,
    inputs           JSONB,
    tags             JSONB,
    group_id         TEXT NOT NULL DEFAULT '',
    final_output     TEXT NOT NULL DEFAULT '',
    error            TEXT NOT NULL DEFAULT '',
    cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TEXT NOT NULL,
    started_at       TEXT,
    finished_at      TEXT
);

CREATE TABLE IF NOT EXISTS events (
    id         TEXT PRIMARY KEY,
    run_id     TEXT NOT NULL,
    seq        BIGINT NOT NULL,
    type       TEXT NOT NULL,
    payload    JSONB,
    created_at TEXT NOT NULL,
    UNIQUE (run_id, seq)
);

CREATE TABLE IF NOT EXISTS schedules (
    id          TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL,
    cron        TEXT NOT NULL,
    inputs      JSONB,
    enabled     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_revisions_workflow ON revisions(workflow_id, version);
CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow_id);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, seq);
`

const migrationSQLite = `
CREATE TABLE IF NOT EXISTS workflows (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revisions (
    id           TEXT PRIMARY KEY,
    workflow_id  TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    version      INTEGER NOT NULL,
    content_hash TEXT NOT NULL,
    document     TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    UNIQUE (workflow_id, version)
);

CREATE TABLE IF NOT EXISTS runs (
    id               TEXT PRIMARY KEY,
    workflow_id      TEXT NOT NULL DEFAULT '',
    revision_id      TEXT NOT NULL,
    status           TEXT NOT NULL,
    inputs           TEXT,
    tags             TEXT,
    group_id         TEXT NOT NULL DEFAULT '',
    final_output     TEXT NOT NULL DEFAULT '',
    error            TEXT NOT NULL DEFAULT '',
    cancel_requested INTEGER NOT NULL DEFAULT 0,
    created_at       TEXT NOT NULL,
    started_at       TEXT,
    finished_at      TEXT
);

CREATE TABLE IF NOT EXISTS events (
    id         TEXT PRIMARY KEY,
    run_id     TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    type       TEXT NOT NULL,
    payload    TEXT,
    created_at TEXT NOT NULL,
    UNIQUE (run_id, seq)
);

CREATE TABLE IF NOT EXISTS schedules (
    id          TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL,
    cron        TEXT NOT NULL,
    inputs      TEXT,
    enabled     INTEGER NOT NULL DEFAULT 1,
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_revisions_workflow ON revisions(workflow_id, version);
CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow_id);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, seq);
`
