package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
)

// AppendContentEvent writes one content-updated signal to the outbox and
// returns its id.
func (s *Store) AppendContentEvent(ctx context.Context, event storage.ContentEvent) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if event.ClassNameID <= 0 || event.ResourcePrimKey <= 0 {
		return 0, fmt.Errorf("class name id and resource prim key are required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO content_events (
	class_name_id,
	resource_prim_key,
	company_id,
	user_id,
	group_id,
	language_id,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		event.ClassNameID,
		event.ResourcePrimKey,
		event.CompanyID,
		event.UserID,
		event.GroupID,
		strings.TrimSpace(event.LanguageID),
		event.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("append content event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("content event id: %w", err)
	}
	return id, nil
}

// PendingContentEvents lists unconsumed events oldest first.
func (s *Store) PendingContentEvents(ctx context.Context, limit int) ([]storage.ContentEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	class_name_id,
	resource_prim_key,
	company_id,
	user_id,
	group_id,
	language_id,
	created_at
FROM content_events
WHERE consumed_at IS NULL
ORDER BY id
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list content events: %w", err)
	}
	defer rows.Close()

	events := make([]storage.ContentEvent, 0, limit)
	for rows.Next() {
		var (
			event     storage.ContentEvent
			createdAt int64
		)
		if err := rows.Scan(
			&event.ID,
			&event.ClassNameID,
			&event.ResourcePrimKey,
			&event.CompanyID,
			&event.UserID,
			&event.GroupID,
			&event.LanguageID,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan content event: %w", err)
		}
		event.CreatedAt = time.UnixMilli(createdAt).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content events: %w", err)
	}
	return events, nil
}

// ConsumeContentEvent marks an event consumed and runs hook inside the same
// transaction. The event stays pending when hook fails. Consuming an event
// twice returns storage.ErrNotFound.
func (s *Store) ConsumeContentEvent(ctx context.Context, id int64, hook func(context.Context) error) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin consume: %w", err)
	}
	if err := markConsumed(ctx, tx, id, s.now()); err != nil {
		_ = tx.Rollback()
		return err
	}
	if hook != nil {
		if err := hook(ctx); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit consume: %w", err)
	}
	return nil
}

func markConsumed(ctx context.Context, tx *sql.Tx, id int64, now time.Time) error {
	result, err := tx.ExecContext(ctx, `
UPDATE content_events
SET consumed_at = ?
WHERE id = ? AND consumed_at IS NULL
`, now.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark content event %d consumed: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark content event %d consumed: %w", id, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
