// Package store provides the durable local cache for the field-sales app:
// one keyed collection per synchronized entity type plus the ordered
// mutation queue of pending offline writes.
//
// The database is embedded SQLite (ncruces/go-sqlite3) opened with WAL so
// reads stay concurrent with writes. The store is pure storage with no
// network awareness. Gateways write through it while offline, and the sync
// engine refreshes it wholesale from the server.
//
// Failure semantics: storage-layer errors (corruption, disk full) are fatal
// and propagate to the caller. Nothing at this layer is swallowed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned by point lookups when no record exists under the
// requested identifier.
var ErrNotFound = errors.New("record not found")

// schemaVersion is the current PRAGMA user_version. Migrations are additive
// only: a new collection never destroys an existing one, so local-only
// records survive app upgrades.
const schemaVersion = 3

// DB wraps the embedded SQLite connection holding the record collections
// and the mutation queue.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the local database at path and migrates it to the
// current schema version.
//
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
		now:  time.Now,
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := db.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// migrate brings the schema up to schemaVersion. Each step only adds
// collections; existing rows are never touched.
func (db *DB) migrate(ctx context.Context) error {
	var version int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	steps := []struct {
		version int
		ddl     string
	}{
		{1, ddlV1},
		{2, ddlV2},
		{3, ddlV3},
	}

	for _, step := range steps {
		if version >= step.version {
			continue
		}
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration to v%d: %w", step.version, err)
		}
		if _, err := tx.ExecContext(ctx, step.ddl); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to migrate to v%d: %w", step.version, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", step.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to bump schema version to v%d: %w", step.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration to v%d: %w", step.version, err)
		}
		version = step.version
	}

	return nil
}

// Version returns the current schema version.
func (db *DB) Version(ctx context.Context) (int, error) {
	var version int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// v1: the original app shipped with tasks plus the sync queue.
const ddlV1 = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	completed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_updated ON tasks(updated_at);

CREATE TABLE IF NOT EXISTS sync_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	op TEXT NOT NULL,
	resource TEXT NOT NULL,
	target_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT '{}',
	enqueued_at TEXT NOT NULL,
	retries INTEGER NOT NULL DEFAULT 0
);
`

// v2: call capture (schedules and recordings).
const ddlV2 = `
CREATE TABLE IF NOT EXISTS call_schedules (
	id TEXT PRIMARY KEY,
	store_id TEXT NOT NULL,
	call_date TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	created_at TEXT,
	updated_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_schedules_natural_key
    ON call_schedules(store_id, call_date, user_id);

CREATE TABLE IF NOT EXISTS call_recordings (
	id TEXT PRIMARY KEY,
	call_schedule_id TEXT NOT NULL,
	product_lines TEXT NOT NULL DEFAULT '[]',
	signature TEXT NOT NULL DEFAULT '',
	post_activity TEXT,
	created_at TEXT,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recordings_schedule
    ON call_recordings(call_schedule_id);
`

// v3: reference data (stores and the product catalog).
const ddlV3 = `
CREATE TABLE IF NOT EXISTS stores (
	id TEXT PRIMARY KEY,
	store_name TEXT NOT NULL,
	has_recording INTEGER NOT NULL DEFAULT 0,
	has_post_activity INTEGER NOT NULL DEFAULT 0,
	call_schedule_id TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stores_name ON stores(store_name);

CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	product_name TEXT NOT NULL,
	product_description TEXT NOT NULL DEFAULT '',
	product_quantity INTEGER NOT NULL DEFAULT 0,
	product_price TEXT NOT NULL DEFAULT '0',
	product_discount TEXT NOT NULL DEFAULT '0',
	product_image TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
`

var zeroTime time.Time

// touch returns updated unless it is zero, in which case it stamps "now".
// Every local write carries an updated_at so the UI can show staleness; the
// server's value wins once a record is confirmed.
func (db *DB) touch(updated time.Time) string {
	if updated.IsZero() {
		updated = db.now()
	}
	return updated.UTC().Format(time.RFC3339)
}

func timeToNullString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullStringToTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
