// Package storage defines the records and collaborator contracts the crawler
// pipeline reads and writes. Implementations live in subpackages.
package storage

import (
	"context"
	"time"

	platformerrors "github.com/louisbranch/layoutcrawl/internal/platform/errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = platformerrors.New(platformerrors.CodeNotFound, "record not found")

// ContentItem identifies one content record by type and resource key.
type ContentItem struct {
	ClassNameID     int64
	ResourcePrimKey int64
}

// LayoutUsage records that layout PLID embeds a content item.
type LayoutUsage struct {
	PLID            int64
	ClassNameID     int64
	ResourcePrimKey int64
}

// Layout is one rendered page within a site.
type Layout struct {
	PLID             int64
	CompanyID        int64
	GroupID          int64
	LayoutSetID      int64
	PrivateLayout    bool
	Draft            bool
	GroupFriendlyURL string
	FriendlyURL      string
	VirtualHostname  string
}

// LayoutLocalization is the cached, text-only rendition of a layout in one
// language.
type LayoutLocalization struct {
	PLID       int64
	LanguageID string
	Content    string
	ModifiedAt time.Time
}

// UsageResolver maps a content item to the layouts embedding it.
type UsageResolver interface {
	FindUsages(ctx context.Context, classNameID, resourcePrimKey int64) ([]LayoutUsage, error)
}

// LayoutStore reads layouts by PLID.
type LayoutStore interface {
	GetLayout(ctx context.Context, plid int64) (Layout, error)
}

// LocalizationStore reads and upserts cached layout localizations.
type LocalizationStore interface {
	ListLocalizations(ctx context.Context, plid int64) ([]LayoutLocalization, error)
	UpsertLocalization(ctx context.Context, localization LayoutLocalization, serviceContext ServiceContext) error
}

// ServiceContext is the immutable request scope captured when a content update
// is observed and replayed for every deferred write.
type ServiceContext struct {
	CompanyID       int64
	UserID          int64
	ScopeGroupID    int64
	DefaultLanguage string
	RequestID       string
	CapturedAt      time.Time
}

// AttemptRecord is one durable per-layout failure or success outcome.
type AttemptRecord struct {
	ID              int64
	PLID            int64
	ClassNameID     int64
	ResourcePrimKey int64
	Outcome         string
	ErrorCode       string
	LastError       string
	CreatedAt       time.Time
}

// AttemptStore persists per-layout propagation outcomes.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
}

// ContentEvent is one content-updated signal written by the content system.
type ContentEvent struct {
	ID              int64
	ClassNameID     int64
	ResourcePrimKey int64
	CompanyID       int64
	UserID          int64
	GroupID         int64
	LanguageID      string
	CreatedAt       time.Time
}
