// Package storage provides the SQLite query index for dnslogd.
package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// IndexFileName is the index database name inside the storage directory.
const IndexFileName = "dns-index.db"

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB
	mu sync.RWMutex
}

// Initialize opens the index inside dataDir.
func Initialize(dataDir string) (*DB, error) {
	return Open(filepath.Join(dataDir, IndexFileName))
}

// Open creates and initializes the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{DB: db}

	if err := instance.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return instance, nil
}

func (db *DB) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS queries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			collected_at INTEGER NOT NULL,
			timestamp TEXT,
			level TEXT,
			client_ip TEXT NOT NULL,
			query_type TEXT NOT NULL,
			domain TEXT NOT NULL,
			device_name TEXT,
			device_category TEXT,
			confirmed INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queries_collected_at ON queries(collected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_queries_domain ON queries(domain)`,
		`CREATE INDEX IF NOT EXISTS idx_queries_client_ip ON queries(client_ip)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", table, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// WithLock executes a function with write lock.
func (db *DB) WithLock(fn func() error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn()
}

// WithRLock executes a function with read lock.
func (db *DB) WithRLock(fn func() error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn()
}
