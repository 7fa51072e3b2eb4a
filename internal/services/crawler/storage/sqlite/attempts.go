package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
)

// RecordAttempt persists one per-layout propagation outcome.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	attempt.Outcome = strings.TrimSpace(attempt.Outcome)
	attempt.ErrorCode = strings.TrimSpace(attempt.ErrorCode)
	attempt.LastError = strings.TrimSpace(attempt.LastError)
	if attempt.PLID <= 0 {
		return fmt.Errorf("plid is required")
	}
	if attempt.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.now()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO crawl_attempts (
	plid,
	class_name_id,
	resource_prim_key,
	outcome,
	error_code,
	last_error,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		attempt.PLID,
		attempt.ClassNameID,
		attempt.ResourcePrimKey,
		attempt.Outcome,
		attempt.ErrorCode,
		attempt.LastError,
		attempt.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts lists newest-first attempt records.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	plid,
	class_name_id,
	resource_prim_key,
	outcome,
	error_code,
	last_error,
	created_at
FROM crawl_attempts
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	records := make([]storage.AttemptRecord, 0, limit)
	for rows.Next() {
		var (
			record    storage.AttemptRecord
			createdAt int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.PLID,
			&record.ClassNameID,
			&record.ResourcePrimKey,
			&record.Outcome,
			&record.ErrorCode,
			&record.LastError,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return records, nil
}
