package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
)

// ListLocalizations returns the cached localizations of a layout ordered by
// language id.
func (s *Store) ListLocalizations(ctx context.Context, plid int64) ([]storage.LayoutLocalization, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT plid, language_id, content, modified_at
FROM layout_localizations
WHERE plid = ?
ORDER BY language_id
`, plid)
	if err != nil {
		return nil, fmt.Errorf("list localizations: %w", err)
	}
	defer rows.Close()

	var localizations []storage.LayoutLocalization
	for rows.Next() {
		var (
			localization storage.LayoutLocalization
			modifiedAt   int64
		)
		if err := rows.Scan(&localization.PLID, &localization.LanguageID, &localization.Content, &modifiedAt); err != nil {
			return nil, fmt.Errorf("scan localization: %w", err)
		}
		localization.ModifiedAt = time.UnixMilli(modifiedAt).UTC()
		localizations = append(localizations, localization)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate localizations: %w", err)
	}
	return localizations, nil
}

// UpsertLocalization writes the content of one (plid, language) pair,
// stamping it with the captured service context.
func (s *Store) UpsertLocalization(ctx context.Context, localization storage.LayoutLocalization, serviceContext storage.ServiceContext) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	localization.LanguageID = strings.TrimSpace(localization.LanguageID)
	if localization.PLID <= 0 {
		return fmt.Errorf("plid is required")
	}
	if localization.LanguageID == "" {
		return fmt.Errorf("language id is required")
	}
	if localization.ModifiedAt.IsZero() {
		localization.ModifiedAt = s.now()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO layout_localizations (
	plid,
	language_id,
	content,
	company_id,
	modified_by_user_id,
	request_id,
	modified_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(plid, language_id) DO UPDATE SET
	content = excluded.content,
	company_id = excluded.company_id,
	modified_by_user_id = excluded.modified_by_user_id,
	request_id = excluded.request_id,
	modified_at = excluded.modified_at
`,
		localization.PLID,
		localization.LanguageID,
		localization.Content,
		serviceContext.CompanyID,
		serviceContext.UserID,
		serviceContext.RequestID,
		localization.ModifiedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert localization %d %s: %w", localization.PLID, localization.LanguageID, err)
	}
	return nil
}
