package domain

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	platformerrors "github.com/louisbranch/layoutcrawl/internal/platform/errors"
	"github.com/louisbranch/layoutcrawl/internal/platform/i18n/locale"
	platformotel "github.com/louisbranch/layoutcrawl/internal/platform/otel"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
)

const defaultMaxInFlight = 4

// Attempt outcomes recorded per layout.
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeSkippedDraft = "skipped_draft"
	OutcomeLookupFailed = "lookup_failed"
	OutcomeIndexFailed  = "index_failed"
)

// LayoutRenderer produces the rendered HTML of a published layout.
type LayoutRenderer interface {
	Render(ctx context.Context, layout *storage.Layout, tag language.Tag) (string, error)
}

// SearchIndexer refreshes the search document of one layout.
type SearchIndexer interface {
	Reindex(ctx context.Context, layout storage.Layout) error
}

// Scheduler defers a task until the enclosing transaction commits.
type Scheduler interface {
	RunAfterCommit(task func(context.Context)) error
}

// Dependencies are the collaborators the propagator drives.
type Dependencies struct {
	Usages        storage.UsageResolver
	Layouts       storage.LayoutStore
	Localizations storage.LocalizationStore
	Indexer       SearchIndexer
	Renderer      LayoutRenderer
	// Attempts is optional; when set, per-layout outcomes are persisted.
	Attempts storage.AttemptStore
}

// Options tune propagation.
type Options struct {
	// MaxInFlight bounds concurrent renders for one layout.
	MaxInFlight int
	// Debug logs extracted fragments.
	Debug bool
	// OnBatchComplete observes every finished post-commit batch.
	OnBatchComplete func(Batch, Report)
	Logf            func(string, ...any)
	Clock           func() time.Time
}

// Propagator refreshes cached localizations and search documents of every
// layout embedding a content item after that item changes.
type Propagator struct {
	deps        Dependencies
	maxInFlight int
	debug       bool
	onComplete  func(Batch, Report)
	logf        func(string, ...any)
	clock       func() time.Time
	tracer      trace.Tracer
}

// NewPropagator creates a staleness propagator.
func NewPropagator(deps Dependencies, opts Options) *Propagator {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Propagator{
		deps:        deps,
		maxInFlight: opts.MaxInFlight,
		debug:       opts.Debug,
		onComplete:  opts.OnBatchComplete,
		logf:        opts.Logf,
		clock:       opts.Clock,
		tracer:      platformotel.Tracer("layoutcrawl/propagate"),
	}
}

// Batch is the immutable input captured in the triggering transaction.
type Batch struct {
	Item           storage.ContentItem
	Usages         []storage.LayoutUsage
	ServiceContext storage.ServiceContext
}

// OnAfterUpdate runs inside the content update transaction. It resolves the
// layouts embedding updated and registers one post-commit task that
// re-crawls them. Items nobody embeds schedule nothing. original is accepted
// for hook symmetry; only the updated identity is looked up.
func (p *Propagator) OnAfterUpdate(ctx context.Context, tx Scheduler, original, updated storage.ContentItem, serviceContext storage.ServiceContext) error {
	if p == nil || p.deps.Usages == nil {
		return platformerrors.New(platformerrors.CodeInvalidArgument, "propagator is not configured")
	}
	if tx == nil {
		return platformerrors.New(platformerrors.CodeInvalidArgument, "transaction scheduler is required")
	}
	usages, err := p.deps.Usages.FindUsages(ctx, updated.ClassNameID, updated.ResourcePrimKey)
	if err != nil {
		return platformerrors.Wrap(platformerrors.CodeLookupFailure,
			fmt.Sprintf("find usages for %d/%d", updated.ClassNameID, updated.ResourcePrimKey), err)
	}
	if p.debug {
		p.logf("looking for layout usages for %d %d: found %d", updated.ResourcePrimKey, updated.ClassNameID, len(usages))
	}
	if len(usages) == 0 {
		return nil
	}

	captured := serviceContext
	if captured.CapturedAt.IsZero() {
		captured.CapturedAt = p.clock().UTC()
	}
	batch := Batch{
		Item:           updated,
		Usages:         append([]storage.LayoutUsage(nil), usages...),
		ServiceContext: captured,
	}
	return tx.RunAfterCommit(func(taskCtx context.Context) {
		report := p.Process(taskCtx, batch)
		p.logf("propagated content %d/%d: %s", batch.Item.ClassNameID, batch.Item.ResourcePrimKey, report)
		if p.onComplete != nil {
			p.onComplete(batch, report)
		}
	})
}

// Process re-crawls every usage in batch. Failures are isolated per layout
// and per locale; nothing is returned to the committed transaction.
func (p *Propagator) Process(ctx context.Context, batch Batch) Report {
	ctx, span := p.tracer.Start(ctx, "propagate.batch", trace.WithAttributes(
		attribute.Int64("content.class_name_id", batch.Item.ClassNameID),
		attribute.Int64("content.resource_prim_key", batch.Item.ResourcePrimKey),
		attribute.Int("content.usages", len(batch.Usages)),
	))
	defer span.End()

	var report Report
	for _, usage := range batch.Usages {
		p.processUsage(ctx, batch, usage, &report)
	}
	span.SetAttributes(
		attribute.Int("propagate.upserts", report.Upserts),
		attribute.Int("propagate.reindexed", report.Reindexed),
		attribute.Int("propagate.failures", len(report.Failures)),
	)
	return report
}

func (p *Propagator) processUsage(ctx context.Context, batch Batch, usage storage.LayoutUsage, report *Report) {
	plid := usage.PLID
	ctx, span := p.tracer.Start(ctx, "propagate.layout", trace.WithAttributes(attribute.Int64("layout.plid", plid)))
	defer span.End()

	if p.deps.Layouts == nil || p.deps.Localizations == nil {
		p.fail(ctx, batch, plid, report, platformerrors.New(platformerrors.CodeLookupFailure, "layout stores are not configured"), OutcomeLookupFailed)
		return
	}
	layout, err := p.deps.Layouts.GetLayout(ctx, plid)
	if err != nil {
		p.fail(ctx, batch, plid, report, lookupFailure(plid, "get layout", err), OutcomeLookupFailed)
		return
	}
	if layout.Draft {
		report.SkippedDrafts++
		p.record(ctx, batch, plid, OutcomeSkippedDraft, nil)
		return
	}

	localizations, err := p.deps.Localizations.ListLocalizations(ctx, plid)
	if err != nil {
		p.fail(ctx, batch, plid, report, lookupFailure(plid, "list localizations", err), OutcomeLookupFailed)
		return
	}

	p.refreshLocalizations(ctx, batch, layout, localizations, report)

	report.Layouts++
	if p.deps.Indexer == nil {
		p.fail(ctx, batch, plid, report, platformerrors.New(platformerrors.CodeIndexError, "search indexer is not configured"), OutcomeIndexFailed)
		return
	}
	if err := p.deps.Indexer.Reindex(ctx, layout); err != nil {
		indexErr := platformerrors.WrapWithMetadata(platformerrors.CodeIndexError,
			"reindex layout "+strconv.FormatInt(plid, 10), map[string]string{"plid": strconv.FormatInt(plid, 10)}, err)
		p.fail(ctx, batch, plid, report, indexErr, OutcomeIndexFailed)
		return
	}
	report.Reindexed++
	if p.debug {
		p.logf("reindexed layout %d", plid)
	}
	p.record(ctx, batch, plid, OutcomeSucceeded, nil)
}

// refreshLocalizations renders every existing localization of layout with at
// most maxInFlight concurrent fetches and returns once all writes finished.
func (p *Propagator) refreshLocalizations(ctx context.Context, batch Batch, layout storage.Layout, localizations []storage.LayoutLocalization, report *Report) {
	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(p.maxInFlight)

	for _, localization := range localizations {
		group.Go(func() error {
			err := p.refreshLocalization(ctx, batch, layout, localization.LanguageID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, err)
				p.logf("refresh layout %d %s: %v", layout.PLID, localization.LanguageID, err)
				return nil
			}
			report.Upserts++
			return nil
		})
	}
	_ = group.Wait()
}

func (p *Propagator) refreshLocalization(ctx context.Context, batch Batch, layout storage.Layout, languageID string) error {
	tag, err := locale.ParseLanguageID(languageID)
	if err != nil {
		return platformerrors.WrapWithMetadata(platformerrors.CodeLookupFailure, "map language id",
			map[string]string{"plid": strconv.FormatInt(layout.PLID, 10), "language_id": languageID}, err)
	}

	content := ""
	if p.deps.Renderer != nil {
		if p.debug {
			p.logf("crawling layout content %d %s", layout.PLID, tag)
		}
		snapshot, err := p.deps.Renderer.Render(ctx, &layout, tag)
		if err != nil {
			p.logf("unable to get layout content %d %s: %v", layout.PLID, tag, err)
		} else {
			content = snapshot
		}
	}
	content = ExtractFragment(content)
	if p.debug {
		p.logf("crawled content %d %s: %q", layout.PLID, tag, content)
	}

	if err := p.deps.Localizations.UpsertLocalization(ctx, storage.LayoutLocalization{
		PLID:       layout.PLID,
		LanguageID: languageID,
		Content:    content,
		ModifiedAt: p.clock().UTC(),
	}, batch.ServiceContext); err != nil {
		return platformerrors.WrapWithMetadata(platformerrors.CodeStoreError, "upsert localization",
			map[string]string{"plid": strconv.FormatInt(layout.PLID, 10), "language_id": languageID}, err)
	}
	return nil
}

func (p *Propagator) fail(ctx context.Context, batch Batch, plid int64, report *Report, err error, outcome string) {
	report.Failures = append(report.Failures, err)
	p.logf("propagate layout %d: %v", plid, err)
	trace.SpanFromContext(ctx).RecordError(err)
	p.record(ctx, batch, plid, outcome, err)
}

func (p *Propagator) record(ctx context.Context, batch Batch, plid int64, outcome string, cause error) {
	if p.deps.Attempts == nil {
		return
	}
	attempt := storage.AttemptRecord{
		PLID:            plid,
		ClassNameID:     batch.Item.ClassNameID,
		ResourcePrimKey: batch.Item.ResourcePrimKey,
		Outcome:         outcome,
		CreatedAt:       p.clock().UTC(),
	}
	if cause != nil {
		attempt.ErrorCode = string(platformerrors.CodeOf(cause))
		attempt.LastError = cause.Error()
	}
	if err := p.deps.Attempts.RecordAttempt(ctx, attempt); err != nil {
		p.logf("record attempt for layout %d: %v", plid, err)
	}
}

func lookupFailure(plid int64, message string, cause error) error {
	return platformerrors.WrapWithMetadata(platformerrors.CodeLookupFailure, message,
		map[string]string{"plid": strconv.FormatInt(plid, 10)}, cause)
}
