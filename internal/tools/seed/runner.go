// Package seed loads a YAML manifest of layouts and content events into a
// crawler database for local runs.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/layoutcrawl/internal/platform/i18n/locale"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
	crawlersqlite "github.com/louisbranch/layoutcrawl/internal/services/crawler/storage/sqlite"
)

// Target receives seeded records.
type Target interface {
	PutLayout(ctx context.Context, layout storage.Layout) error
	PutUsage(ctx context.Context, usage storage.LayoutUsage) error
	UpsertLocalization(ctx context.Context, localization storage.LayoutLocalization, serviceContext storage.ServiceContext) error
	AppendContentEvent(ctx context.Context, event storage.ContentEvent) (int64, error)
}

// Config holds seed runner settings.
type Config struct {
	DBPath       string
	ManifestPath string
	Verbose      bool
}

// Summary counts the records one manifest wrote.
type Summary struct {
	Layouts       int
	Localizations int
	Usages        int
	Events        int
}

func (s Summary) String() string {
	return fmt.Sprintf("layouts=%d localizations=%d usages=%d events=%d", s.Layouts, s.Localizations, s.Usages, s.Events)
}

// Run loads the configured manifest into the configured database.
func Run(ctx context.Context, cfg Config, out io.Writer) (Summary, error) {
	if out == nil {
		out = io.Discard
	}
	manifest, err := LoadManifest(cfg.ManifestPath)
	if err != nil {
		return Summary{}, err
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return Summary{}, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Summary{}, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := crawlersqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return Summary{}, fmt.Errorf("open crawler sqlite store: %w", err)
	}
	defer store.Close()

	logf := func(string, ...any) {}
	if cfg.Verbose {
		logf = func(format string, args ...any) {
			fmt.Fprintf(out, format+"\n", args...)
		}
	}
	return Apply(ctx, store, manifest, logf)
}

// Apply writes manifest into target. Layouts are written before their
// localizations and usages; events are appended last.
func Apply(ctx context.Context, target Target, manifest Manifest, logf func(string, ...any)) (Summary, error) {
	if target == nil {
		return Summary{}, fmt.Errorf("seed target is required")
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if err := ValidateManifest(manifest); err != nil {
		return Summary{}, err
	}
	seedContext := storage.ServiceContext{RequestID: "seed"}
	if name := strings.TrimSpace(manifest.Name); name != "" {
		seedContext.RequestID = "seed-" + name
	}

	var summary Summary
	for _, layout := range manifest.Layouts {
		if err := target.PutLayout(ctx, storage.Layout{
			PLID:             layout.PLID,
			CompanyID:        layout.CompanyID,
			GroupID:          layout.GroupID,
			LayoutSetID:      layout.LayoutSetID,
			PrivateLayout:    layout.Private,
			Draft:            layout.Draft,
			GroupFriendlyURL: layout.GroupFriendlyURL,
			FriendlyURL:      layout.FriendlyURL,
			VirtualHostname:  layout.VirtualHostname,
		}); err != nil {
			return summary, fmt.Errorf("seed layout %d: %w", layout.PLID, err)
		}
		summary.Layouts++
		logf("layout %d %s", layout.PLID, layout.FriendlyURL)

		for _, localization := range layout.Localizations {
			tag, err := locale.ParseLanguageID(localization.LanguageID)
			if err != nil {
				return summary, fmt.Errorf("seed layout %d localization: %w", layout.PLID, err)
			}
			languageID := locale.LanguageID(tag)
			if err := target.UpsertLocalization(ctx, storage.LayoutLocalization{
				PLID:       layout.PLID,
				LanguageID: languageID,
				Content:    localization.Content,
			}, seedContext); err != nil {
				return summary, fmt.Errorf("seed layout %d localization %s: %w", layout.PLID, languageID, err)
			}
			summary.Localizations++
			logf("  localization %s", languageID)
		}
		for _, usage := range layout.Usages {
			if err := target.PutUsage(ctx, storage.LayoutUsage{
				PLID:            layout.PLID,
				ClassNameID:     usage.ClassNameID,
				ResourcePrimKey: usage.ResourcePrimKey,
			}); err != nil {
				return summary, fmt.Errorf("seed layout %d usage: %w", layout.PLID, err)
			}
			summary.Usages++
			logf("  usage %d/%d", usage.ClassNameID, usage.ResourcePrimKey)
		}
	}

	for _, event := range manifest.Events {
		id, err := target.AppendContentEvent(ctx, storage.ContentEvent{
			ClassNameID:     event.ClassNameID,
			ResourcePrimKey: event.ResourcePrimKey,
			CompanyID:       event.CompanyID,
			UserID:          event.UserID,
			GroupID:         event.GroupID,
			LanguageID:      event.LanguageID,
		})
		if err != nil {
			return summary, fmt.Errorf("seed content event %d/%d: %w", event.ClassNameID, event.ResourcePrimKey, err)
		}
		summary.Events++
		logf("event %d for %d/%d", id, event.ClassNameID, event.ResourcePrimKey)
	}
	return summary, nil
}
