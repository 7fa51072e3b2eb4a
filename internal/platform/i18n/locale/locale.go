// Package locale converts between stored language identifiers and BCP 47 tags.
//
// Localization rows store language ids in underscore form ("en_US", "pt_BR").
// Rendering needs a language.Tag for cookies and i18n paths, so every boundary
// crossing goes through this package.
package locale

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// ErrEmptyLanguageID is returned when a blank language id is parsed.
var ErrEmptyLanguageID = fmt.Errorf("language id is required")

// ParseLanguageID maps a stored language id ("en_US") or a W3C tag ("en-US")
// to a language tag.
func ParseLanguageID(id string) (language.Tag, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return language.Und, ErrEmptyLanguageID
	}
	tag, err := language.Parse(strings.ReplaceAll(id, "_", "-"))
	if err != nil {
		return language.Und, fmt.Errorf("parse language id %q: %w", id, err)
	}
	return tag, nil
}

// LanguageID renders tag in stored underscore form. Regions are only included
// when the tag names one explicitly.
func LanguageID(tag language.Tag) string {
	base, _ := tag.Base()
	region, confidence := tag.Region()
	if confidence != language.Exact {
		return base.String()
	}
	return base.String() + "_" + region.String()
}

// W3CLanguageID renders tag the way HTTP headers and paths expect it.
func W3CLanguageID(tag language.Tag) string {
	return strings.ReplaceAll(LanguageID(tag), "_", "-")
}

// Registry holds the locales a site is configured to serve.
type Registry struct {
	available []language.Tag
}

// NewRegistry builds a registry from stored language ids, skipping blanks.
func NewRegistry(ids ...string) (*Registry, error) {
	registry := &Registry{}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		tag, err := ParseLanguageID(id)
		if err != nil {
			return nil, err
		}
		registry.available = append(registry.available, tag)
	}
	return registry, nil
}

// Available returns the configured tags in registration order.
func (r *Registry) Available() []language.Tag {
	if r == nil {
		return nil
	}
	out := make([]language.Tag, len(r.available))
	copy(out, r.available)
	return out
}

// DefaultFor returns the first available locale sharing tag's base language.
// The second result is false when no such locale is registered.
func (r *Registry) DefaultFor(tag language.Tag) (language.Tag, bool) {
	if r == nil {
		return language.Und, false
	}
	base, _ := tag.Base()
	for _, candidate := range r.available {
		candidateBase, _ := candidate.Base()
		if candidateBase == base {
			return candidate, true
		}
	}
	return language.Und, false
}

// I18nPath returns the path prefix a visitor in tag would browse under:
// "/<language>" for the language's default locale, otherwise "/<tag>".
// Languages with no registered locale always use the full tag.
func (r *Registry) I18nPath(tag language.Tag) string {
	base, _ := tag.Base()
	if def, ok := r.DefaultFor(tag); ok && LanguageID(def) == LanguageID(tag) {
		return "/" + base.String()
	}
	return "/" + W3CLanguageID(tag)
}
