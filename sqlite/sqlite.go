// Package sqlite provides SQLite-based storage implementations for sigmatch services.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB represents a SQLite database connection.
type DB struct {
	db   *sql.DB
	path string
}

// NewDB creates a new DB instance with the given path.
// Use ":memory:" for an in-memory database.
func NewDB(path string) *DB {
	return &DB{path: path}
}

// Open opens the database connection and creates the schema if needed.
func (db *DB) Open() error {
	conn, err := sql.Open("sqlite3", db.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit to one connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Concurrent invocations (e.g. per-organization match runs) share the
	// file, so wait on lock contention instead of failing immediately.
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// WAL is not supported for in-memory databases.
	if db.path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
			conn.Close()
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.db = conn

	if err := db.createSchema(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// QueryRowContext executes a query that returns a single row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// ExecContext executes a statement that doesn't return rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.db.BeginTx(ctx, nil)
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Stats returns database statistics.
func (db *DB) Stats() sql.DBStats {
	return db.db.Stats()
}

// createSchema creates the database tables if they don't exist.
// URL and match uniqueness are enforced here rather than in application code.
func (db *DB) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL DEFAULT '',
			query TEXT NOT NULL DEFAULT '',
			tier INTEGER NOT NULL,
			industry_tags TEXT NOT NULL DEFAULT '[]',
			discovery_method TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			last_success_at TEXT,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS articles (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			url_hash TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			published_at TEXT,
			full_text TEXT NOT NULL DEFAULT '',
			topics TEXT NOT NULL DEFAULT '[]',
			content_hash TEXT NOT NULL DEFAULT '',
			scrape_status TEXT NOT NULL DEFAULT 'pending',
			scrape_priority INTEGER NOT NULL DEFAULT 0,
			scrape_attempts INTEGER NOT NULL DEFAULT 0,
			embedding BLOB,
			embedded_at TEXT,
			created_at TEXT NOT NULL,
			UNIQUE (source_id, url)
		);

		CREATE INDEX IF NOT EXISTS idx_articles_url_hash ON articles(source_id, url_hash);
		CREATE INDEX IF NOT EXISTS idx_articles_scrape ON articles(scrape_status, scrape_priority);
		CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at);
		CREATE INDEX IF NOT EXISTS idx_articles_embedded_at ON articles(embedded_at);

		CREATE TABLE IF NOT EXISTS targets (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			target_type TEXT NOT NULL,
			priority TEXT NOT NULL,
			embedding BLOB,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_targets_organization_id ON targets(organization_id);

		CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			target_id TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
			article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
			similarity_score REAL NOT NULL,
			signal_strength TEXT NOT NULL,
			signal_category TEXT NOT NULL,
			match_reason TEXT NOT NULL DEFAULT '',
			matched_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			UNIQUE (target_id, article_id)
		);

		CREATE INDEX IF NOT EXISTS idx_matches_organization ON matches(organization_id, similarity_score);

		CREATE TABLE IF NOT EXISTS content_items (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			content_type TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			salience_score REAL NOT NULL DEFAULT 1.0,
			decay_rate REAL NOT NULL DEFAULT 0,
			last_accessed_at TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_content_items_decay ON content_items(status, salience_score);

		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			job_type TEXT NOT NULL,
			status TEXT NOT NULL,
			items_total INTEGER NOT NULL DEFAULT 0,
			items_processed INTEGER NOT NULL DEFAULT 0,
			items_failed INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			error TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}'
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_started_at ON jobs(started_at);

		CREATE TABLE IF NOT EXISTS search_quota (
			day TEXT PRIMARY KEY,
			calls INTEGER NOT NULL DEFAULT 0
		);
	`

	_, err := db.db.Exec(schema)
	return err
}
