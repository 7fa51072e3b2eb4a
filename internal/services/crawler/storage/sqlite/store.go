// Package sqlite implements crawler storage on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/layoutcrawl/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed layouts, usages, localizations, the search
// index, crawl attempts and the content event outbox.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens a crawler SQLite store and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

var (
	_ storage.UsageResolver     = (*Store)(nil)
	_ storage.LayoutStore       = (*Store)(nil)
	_ storage.LocalizationStore = (*Store)(nil)
	_ storage.AttemptStore      = (*Store)(nil)
)
