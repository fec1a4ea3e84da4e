// Package sqlite provides an embedded achievement ledger and definition store
// on modernc.org/sqlite. It backs single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/alem-hub/achievement-engine/pkg/logger"
)

const pragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

// Store owns the sqlite handle. Ledger and Definitions share it.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (and migrates) the store at path.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := sql.Open("sqlite", filepath.Clean(path)+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; the conflict-skip insert still decides uniqueness.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log = logger.OrNop(log).With(logger.Component("sqlite"))
	log.Info("sqlite store opened", zap.String("path", path))

	return &Store{db: db, logger: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ledger returns the achievement ledger over this store.
func (s *Store) Ledger() *Ledger {
	return &Ledger{db: s.db}
}

// Definitions returns the definition repository over this store.
func (s *Store) Definitions() *DefinitionRepository {
	return &DefinitionRepository{db: s.db}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// chunk splits ids so IN lists stay below the sqlite variable limit.
func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
