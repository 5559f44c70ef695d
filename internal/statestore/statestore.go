// Package statestore provides transactional, concurrency-safe persistence
// for portfolio state, intents, recommendations, research artifacts, tasks,
// execution history, fetch-tracking, and settings. It is the single source
// of truth the rest of the substrate reads and writes through; no component
// may keep its own copy of a row in memory.
package statestore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/trading-core/internal/database"
)

//go:embed schema.sql
var schema string

// Store is the single embedded-relational-store backed implementation of
// the StateStore contract. Write operations are serialized by mu so that
// "every writable operation is a single transaction" holds even though
// SQLite itself would otherwise happily interleave writers and return
// SQLITE_BUSY.
type Store struct {
	db     *database.DB
	mu     sync.Mutex
	logger zerolog.Logger
}

// New opens (or attaches to) the embedded database at db and applies the
// schema, creating any missing tables/indexes.
func New(db *database.DB, logger zerolog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("statestore: nil database")
	}
	if err := db.Migrate(schema); err != nil {
		return nil, fmt.Errorf("statestore: schema migration failed: %w", err)
	}
	return &Store{db: db, logger: logger.With().Str("component", "statestore").Logger()}, nil
}

// Ping reports whether the backing database is reachable, for the health
// surface's liveness probe. It only pings; no integrity check runs.
func (s *Store) Ping() error {
	return s.db.QuickCheck(context.Background())
}

// withWriteTx serializes fn against every other writer and runs it inside a
// single transaction via database.WithTransaction.
func (s *Store) withWriteTx(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return database.WithTransaction(s.db.Conn(), fn)
}
