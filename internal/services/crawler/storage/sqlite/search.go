package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
)

// SearchHit is one full-text match in the layout search index.
type SearchHit struct {
	PLID       int64
	LanguageID string
	Snippet    string
}

// Reindex replaces the search documents of layout with its current non-empty
// localizations.
func (s *Store) Reindex(ctx context.Context, layout storage.Layout) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if layout.PLID <= 0 {
		return fmt.Errorf("plid is required")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reindex: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM layout_search WHERE plid = ?`, layout.PLID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear search documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO layout_search (plid, language_id, content)
SELECT plid, language_id, content
FROM layout_localizations
WHERE plid = ? AND content <> ''
`, layout.PLID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("index search documents: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reindex: %w", err)
	}
	return nil
}

// Search runs an FTS5 match query over indexed layouts, best match first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT plid, language_id, snippet(layout_search, 2, '[', ']', '...', 12)
FROM layout_search
WHERE layout_search MATCH ?
ORDER BY rank
LIMIT ?
`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search layouts: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		if err := rows.Scan(&hit.PLID, &hit.LanguageID, &hit.Snippet); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return hits, nil
}
