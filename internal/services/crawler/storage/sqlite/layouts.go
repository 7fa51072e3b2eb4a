package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
)

// GetLayout returns the layout with plid or storage.ErrNotFound.
func (s *Store) GetLayout(ctx context.Context, plid int64) (storage.Layout, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Layout{}, err
	}
	var (
		layout  storage.Layout
		private int
		draft   int
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT
	plid,
	company_id,
	group_id,
	layout_set_id,
	private_layout,
	draft,
	group_friendly_url,
	friendly_url,
	virtual_hostname
FROM layouts
WHERE plid = ?
`, plid).Scan(
		&layout.PLID,
		&layout.CompanyID,
		&layout.GroupID,
		&layout.LayoutSetID,
		&private,
		&draft,
		&layout.GroupFriendlyURL,
		&layout.FriendlyURL,
		&layout.VirtualHostname,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Layout{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Layout{}, fmt.Errorf("get layout %d: %w", plid, err)
	}
	layout.PrivateLayout = private != 0
	layout.Draft = draft != 0
	return layout, nil
}

// PutLayout inserts or replaces one layout.
func (s *Store) PutLayout(ctx context.Context, layout storage.Layout) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if layout.PLID <= 0 {
		return fmt.Errorf("plid is required")
	}
	layout.FriendlyURL = strings.TrimSpace(layout.FriendlyURL)
	if layout.FriendlyURL == "" {
		return fmt.Errorf("friendly url is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO layouts (
	plid,
	company_id,
	group_id,
	layout_set_id,
	private_layout,
	draft,
	group_friendly_url,
	friendly_url,
	virtual_hostname
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(plid) DO UPDATE SET
	company_id = excluded.company_id,
	group_id = excluded.group_id,
	layout_set_id = excluded.layout_set_id,
	private_layout = excluded.private_layout,
	draft = excluded.draft,
	group_friendly_url = excluded.group_friendly_url,
	friendly_url = excluded.friendly_url,
	virtual_hostname = excluded.virtual_hostname
`,
		layout.PLID,
		layout.CompanyID,
		layout.GroupID,
		layout.LayoutSetID,
		boolToInt(layout.PrivateLayout),
		boolToInt(layout.Draft),
		strings.TrimSpace(layout.GroupFriendlyURL),
		layout.FriendlyURL,
		strings.TrimSpace(layout.VirtualHostname),
	)
	if err != nil {
		return fmt.Errorf("put layout %d: %w", layout.PLID, err)
	}
	return nil
}

// PutUsage records that a layout embeds a content item.
func (s *Store) PutUsage(ctx context.Context, usage storage.LayoutUsage) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if usage.PLID <= 0 || usage.ClassNameID <= 0 || usage.ResourcePrimKey <= 0 {
		return fmt.Errorf("plid, class name id and resource prim key are required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO layout_usages (plid, class_name_id, resource_prim_key)
VALUES (?, ?, ?)
`, usage.PLID, usage.ClassNameID, usage.ResourcePrimKey); err != nil {
		return fmt.Errorf("put usage: %w", err)
	}
	return nil
}

// FindUsages lists the layouts embedding a content item, ordered by plid.
func (s *Store) FindUsages(ctx context.Context, classNameID, resourcePrimKey int64) ([]storage.LayoutUsage, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT plid, class_name_id, resource_prim_key
FROM layout_usages
WHERE class_name_id = ? AND resource_prim_key = ?
ORDER BY plid
`, classNameID, resourcePrimKey)
	if err != nil {
		return nil, fmt.Errorf("find usages: %w", err)
	}
	defer rows.Close()

	var usages []storage.LayoutUsage
	for rows.Next() {
		var usage storage.LayoutUsage
		if err := rows.Scan(&usage.PLID, &usage.ClassNameID, &usage.ResourcePrimKey); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usages = append(usages, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usages: %w", err)
	}
	return usages, nil
}
