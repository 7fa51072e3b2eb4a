package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/louisbranch/layoutcrawl/internal/platform/i18n/locale"
	"gopkg.in/yaml.v3"
)

// Manifest defines the layouts, cached localizations, content usages and
// pending content events to load into a crawler database.
type Manifest struct {
	Name    string           `yaml:"name"`
	Layouts []ManifestLayout `yaml:"layouts"`
	Events  []ManifestEvent  `yaml:"events"`
}

// ManifestLayout defines one layout and its nested records.
type ManifestLayout struct {
	PLID             int64  `yaml:"plid"`
	CompanyID        int64  `yaml:"company_id"`
	GroupID          int64  `yaml:"group_id"`
	LayoutSetID      int64  `yaml:"layout_set_id"`
	Private          bool   `yaml:"private"`
	Draft            bool   `yaml:"draft"`
	GroupFriendlyURL string `yaml:"group_friendly_url"`
	FriendlyURL      string `yaml:"friendly_url"`
	VirtualHostname  string `yaml:"virtual_hostname"`

	Localizations []ManifestLocalization `yaml:"localizations"`
	Usages        []ManifestUsage        `yaml:"usages"`
}

// ManifestLocalization defines one cached localization.
type ManifestLocalization struct {
	LanguageID string `yaml:"language_id"`
	Content    string `yaml:"content"`
}

// ManifestUsage defines one embedded content item.
type ManifestUsage struct {
	ClassNameID     int64 `yaml:"class_name_id"`
	ResourcePrimKey int64 `yaml:"resource_prim_key"`
}

// ManifestEvent defines one content-updated outbox entry.
type ManifestEvent struct {
	ClassNameID     int64  `yaml:"class_name_id"`
	ResourcePrimKey int64  `yaml:"resource_prim_key"`
	CompanyID       int64  `yaml:"company_id"`
	UserID          int64  `yaml:"user_id"`
	GroupID         int64  `yaml:"group_id"`
	LanguageID      string `yaml:"language_id"`
}

// LoadManifest reads and validates a YAML manifest file.
func LoadManifest(path string) (Manifest, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Manifest{}, fmt.Errorf("manifest path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(bytes.NewReader(data))
}

// ParseManifest decodes a YAML manifest, rejecting unknown fields.
func ParseManifest(r io.Reader) (Manifest, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var manifest Manifest
	if err := decoder.Decode(&manifest); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, fmt.Errorf("manifest is empty")
		}
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := ValidateManifest(manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

// ValidateManifest checks identifiers and references before anything is
// written.
func ValidateManifest(manifest Manifest) error {
	seen := make(map[int64]struct{}, len(manifest.Layouts))
	for i, layout := range manifest.Layouts {
		if layout.PLID <= 0 {
			return fmt.Errorf("layouts[%d]: plid must be positive", i)
		}
		if _, ok := seen[layout.PLID]; ok {
			return fmt.Errorf("layouts[%d]: duplicate plid %d", i, layout.PLID)
		}
		seen[layout.PLID] = struct{}{}
		if strings.TrimSpace(layout.FriendlyURL) == "" {
			return fmt.Errorf("layouts[%d]: friendly_url is required", i)
		}
		languages := make(map[string]struct{}, len(layout.Localizations))
		for j, localization := range layout.Localizations {
			tag, err := locale.ParseLanguageID(localization.LanguageID)
			if err != nil {
				return fmt.Errorf("layouts[%d].localizations[%d]: %w", i, j, err)
			}
			id := locale.LanguageID(tag)
			if _, ok := languages[id]; ok {
				return fmt.Errorf("layouts[%d].localizations[%d]: duplicate language %s", i, j, id)
			}
			languages[id] = struct{}{}
		}
		for j, usage := range layout.Usages {
			if usage.ClassNameID <= 0 || usage.ResourcePrimKey <= 0 {
				return fmt.Errorf("layouts[%d].usages[%d]: class_name_id and resource_prim_key must be positive", i, j)
			}
		}
	}
	for i, event := range manifest.Events {
		if event.ClassNameID <= 0 || event.ResourcePrimKey <= 0 {
			return fmt.Errorf("events[%d]: class_name_id and resource_prim_key must be positive", i)
		}
	}
	return nil
}
