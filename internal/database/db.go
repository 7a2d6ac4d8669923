package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps the database connection and provides initialization
type DB struct {
	*sqlx.DB
}

// NewDB creates and initializes a new database connection
func NewDB(dbPath string) (*DB, error) {
	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Concurrent targets write through the same file
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)

	db := &DB{DB: sqlDB}

	// Initialize schema
	if err := db.initSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates the database tables and indexes
func (db *DB) initSchema() error {
	schema := `
-- Extracted posts, first write wins
CREATE TABLE IF NOT EXISTS posts (
    post_id TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    timestamp INTEGER,
    comments_count INTEGER NOT NULL DEFAULT 0,
    reactions_count INTEGER NOT NULL DEFAULT 0,
    author_id TEXT NOT NULL DEFAULT '',
    author_name TEXT NOT NULL,
    author_url TEXT NOT NULL DEFAULT '',
    image TEXT NOT NULL DEFAULT '{}',
    video TEXT NOT NULL DEFAULT '{}',
    attached_post_url TEXT NOT NULL DEFAULT '',
    stored_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_timestamp ON posts(timestamp);

-- Where each target stopped, one row per target per run
CREATE TABLE IF NOT EXISTS target_checkpoints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    target TEXT NOT NULL,
    reason TEXT NOT NULL,
    cursor TEXT NOT NULL DEFAULT '',
    resumable BOOLEAN NOT NULL DEFAULT 0,
    pages INTEGER NOT NULL DEFAULT 0,
    emitted INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    finished_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_target ON target_checkpoints(target, id);

-- Proxy health cache
CREATE TABLE IF NOT EXISTS proxies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    host TEXT NOT NULL,
    port INTEGER NOT NULL,
    proxy_type TEXT NOT NULL,
    country TEXT NOT NULL DEFAULT '',

    -- Health tracking
    status TEXT NOT NULL DEFAULT 'unknown', -- healthy, unhealthy, timeout, error, unknown
    response_time_ms INTEGER NOT NULL DEFAULT 0,
    fail_count INTEGER NOT NULL DEFAULT 0,

    -- Unix seconds
    first_seen_at INTEGER NOT NULL,
    last_checked_at INTEGER,
    last_healthy_at INTEGER,

    UNIQUE(host, port)
);

CREATE INDEX IF NOT EXISTS idx_proxies_last_checked ON proxies(last_checked_at);
CREATE INDEX IF NOT EXISTS idx_proxies_status ON proxies(status);`

	_, err := db.Exec(schema)
	return err
}
