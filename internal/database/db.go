// Package database provides the embedded-SQLite connection and transaction
// primitives that back the state store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// DatabaseProfile selects a PRAGMA/pool tuning preset.
type DatabaseProfile string

const (
	// ProfileLedger favors durability for append-only audit data.
	ProfileLedger DatabaseProfile = "ledger"
	// ProfileCache favors throughput for ephemeral, rebuildable data.
	ProfileCache DatabaseProfile = "cache"
	// ProfileStandard balances the two; the state store's default.
	ProfileStandard DatabaseProfile = "standard"
)

// DB wraps a pooled SQLite connection with production-grade configuration.
// mu guards conn itself (not query execution) so Reopen can swap the pool
// out from under concurrent holders of this *DB after a restore replaces
// the on-disk file.
type DB struct {
	mu      sync.RWMutex
	conn    *sql.DB
	path    string
	profile DatabaseProfile
	name    string
}

// Config holds database construction parameters.
type Config struct {
	Path    string
	Profile DatabaseProfile
	Name    string
}

// New opens (and pings) a SQLite connection configured per cfg.Profile.
func New(cfg Config) (*DB, error) {
	if cfg.Path != ":memory:" {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	connStr := buildConnectionString(cfg.Path, cfg.Profile)

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configureConnectionPool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, profile: cfg.Profile, name: cfg.Name}, nil
}

func buildConnectionString(path string, profile DatabaseProfile) string {
	connStr := path + "?_pragma=journal_mode(WAL)"

	switch profile {
	case ProfileLedger:
		connStr += "&_pragma=synchronous(FULL)"
		connStr += "&_pragma=auto_vacuum(NONE)"
	case ProfileCache:
		connStr += "&_pragma=synchronous(OFF)"
		connStr += "&_pragma=auto_vacuum(FULL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	case ProfileStandard:
		connStr += "&_pragma=synchronous(NORMAL)"
		connStr += "&_pragma=auto_vacuum(INCREMENTAL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	}

	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)"

	return connStr
}

func configureConnectionPool(conn *sql.DB, profile DatabaseProfile) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(1 * time.Hour)
	conn.SetConnMaxIdleTime(10 * time.Minute)

	if profile == ProfileCache {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(2)
	}
}

// Close closes the pooled connection.
func (db *DB) Close() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.Close()
}

// Conn returns the underlying *sql.DB for repositories to query directly.
func (db *DB) Conn() *sql.DB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn
}

// Reopen closes the current pooled connection and opens a fresh one against
// the same path, profile, and name, replacing it in place. Every holder of
// this *DB observes the new connection on its next Conn() call without
// needing to be handed a new *DB.
//
// This exists because a pooled connection keeps its open file descriptors
// pointed at the pre-rename file: after Restore atomically replaces the
// on-disk file, already-open connections (which live up to ConnMaxLifetime)
// keep reading and writing the old data until they happen to recycle.
// Reopen forces that immediately.
func (db *DB) Reopen() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection before reopen: %w", err)
	}

	connStr := buildConnectionString(db.path, db.profile)
	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return fmt.Errorf("failed to reopen database %s: %w", db.name, err)
	}
	configureConnectionPool(conn, db.profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to ping reopened database %s: %w", db.name, err)
	}

	db.conn = conn
	return nil
}

// Name returns the friendly database name used in logs.
func (db *DB) Name() string { return db.name }

// Profile returns the tuning profile this connection was opened with.
func (db *DB) Profile() DatabaseProfile { return db.profile }

// Path returns the resolved database file path.
func (db *DB) Path() string { return db.path }

// Migrate applies schema to a freshly opened database. It tolerates
// "duplicate column"/"already exists" errors from a schema already applied
// by a previous process start.
func (db *DB) Migrate(schema string) error {
	tx, err := db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}

	if _, err := tx.Exec(schema); err != nil {
		_ = tx.Rollback()
		errStr := err.Error()
		if containsAny(errStr, "duplicate column", "already exists") {
			return nil
		}
		return fmt.Errorf("failed to apply schema to %s: %w", db.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema for %s: %w", db.name, err)
	}

	return nil
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

// WithTransaction runs fn inside a transaction, committing on nil return and
// rolling back on error or panic. A recovered panic is rolled back and
// returned as a "transaction panic" error; it is not re-panicked.
func WithTransaction(conn *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	if conn == nil {
		return fmt.Errorf("cannot start transaction: nil database connection")
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("transaction panic: %v", p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("transaction failed: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}

	return nil
}

// HealthCheck runs a full integrity check; expensive, for periodic use.
func (db *DB) HealthCheck(ctx context.Context) error {
	conn := db.Conn()
	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}

	var integrityResult string
	if err := conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		return fmt.Errorf("integrity check query failed for %s: %w", db.name, err)
	}
	if integrityResult != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.name, integrityResult)
	}

	return nil
}

// QuickCheck pings without running the (expensive) integrity check.
func (db *DB) QuickCheck(ctx context.Context) error {
	return db.Conn().PingContext(ctx)
}

// WALCheckpoint forces a WAL checkpoint; mode defaults to TRUNCATE.
func (db *DB) WALCheckpoint(mode string) error {
	if mode == "" {
		mode = "TRUNCATE"
	}
	if _, err := db.Conn().Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)); err != nil {
		return fmt.Errorf("WAL checkpoint failed for %s: %w", db.name, err)
	}
	return nil
}

// Stats reports on-disk size and page-level statistics.
type Stats struct {
	SizeBytes     int64
	WALSizeBytes  int64
	PageCount     int64
	PageSize      int64
	FreelistCount int64
}

// GetStats retrieves current database statistics.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	if fileInfo, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = fileInfo.Size()
	}
	if fileInfo, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = fileInfo.Size()
	}

	conn := db.Conn()
	if err := conn.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := conn.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, fmt.Errorf("failed to get page size: %w", err)
	}
	if err := conn.QueryRow("PRAGMA freelist_count").Scan(&stats.FreelistCount); err != nil {
		return nil, fmt.Errorf("failed to get freelist count: %w", err)
	}

	return stats, nil
}
