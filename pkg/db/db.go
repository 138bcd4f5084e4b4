package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Enforce single connection to avoid SQLITE_BUSY errors during concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			status TEXT NOT NULL,
			progress TEXT,
			request TEXT,
			result TEXT,
			error TEXT,
			costs TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS tours (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			name TEXT,
			pins TEXT,
			center_lat REAL,
			center_lng REAL,
			generation_job_id TEXT,
			estimated_duration INTEGER,
			total_distance REAL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS collections (
			id TEXT PRIMARY KEY,
			name TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS pins (
			id TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL,
			lat REAL NOT NULL,
			lng REAL NOT NULL,
			title TEXT,
			description TEXT,
			transcript TEXT,
			audio_file TEXT,
			category TEXT,
			is_ai_generated BOOLEAN DEFAULT 0,
			ai_generation_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS preferences (
			device_id TEXT PRIMARY KEY,
			favorite_pin_ids TEXT,
			category_weights TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pins_collection ON pins(collection_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tours_device ON tours(device_id);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_device ON jobs(device_id);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	// Seed the default collection so radius queries and appends always have
	// a target.
	if _, err := d.Exec(
		"INSERT OR IGNORE INTO collections (id, name) VALUES (?, ?)",
		"default", "Default Collection",
	); err != nil {
		return fmt.Errorf("failed to seed default collection: %w", err)
	}

	return nil
}
