package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/layoutcrawl/internal/services/crawler/domain"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/scheduler"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
	crawlersqlite "github.com/louisbranch/layoutcrawl/internal/services/crawler/storage/sqlite"
	"golang.org/x/text/language"
)

func TestOutboxDrainSubmitsAfterCommit(t *testing.T) {
	submitter := &recordingSubmitter{}
	events := &fakeEventStore{
		pending: []storage.ContentEvent{{ID: 1, ClassNameID: 100, ResourcePrimKey: 7}},
	}
	events.afterHook = func() {
		if got := submitter.count(); got != 0 {
			t.Fatalf("submitted %d tasks before commit", got)
		}
	}
	hook := &fakeHook{}
	outbox := NewOutbox(events, hook, submitter, OutboxConfig{}, t.Logf)

	consumed, err := outbox.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if consumed != 1 {
		t.Fatalf("consumed = %d, want 1", consumed)
	}
	if got := submitter.count(); got != 1 {
		t.Fatalf("submitted = %d, want 1", got)
	}
	if len(hook.calls) != 1 || hook.calls[0].updated.ResourcePrimKey != 7 {
		t.Fatalf("hook calls = %+v", hook.calls)
	}
}

func TestOutboxDrainDiscardsCallbacksOnHookError(t *testing.T) {
	submitter := &recordingSubmitter{}
	events := &fakeEventStore{
		pending: []storage.ContentEvent{
			{ID: 1, ClassNameID: 100, ResourcePrimKey: 7},
			{ID: 2, ClassNameID: 100, ResourcePrimKey: 8},
		},
	}
	hook := &fakeHook{failFor: 7}
	var logs []string
	outbox := NewOutbox(events, hook, submitter, OutboxConfig{}, func(format string, args ...any) {
		logs = append(logs, fmt.Sprintf(format, args...))
	})

	consumed, err := outbox.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if consumed != 1 {
		t.Fatalf("consumed = %d, want 1", consumed)
	}
	if got := submitter.count(); got != 1 {
		t.Fatalf("submitted = %d, want only the successful event's task", got)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %v, want one failure", logs)
	}
	if len(events.consumed) != 1 || events.consumed[0] != 2 {
		t.Fatalf("consumed ids = %v, want [2]", events.consumed)
	}
}

func TestOutboxDrainSkipsAlreadyConsumed(t *testing.T) {
	events := &fakeEventStore{
		pending:    []storage.ContentEvent{{ID: 1, ClassNameID: 100, ResourcePrimKey: 7}},
		consumeErr: storage.ErrNotFound,
	}
	var logs []string
	outbox := NewOutbox(events, &fakeHook{}, &recordingSubmitter{}, OutboxConfig{}, func(format string, args ...any) {
		logs = append(logs, fmt.Sprintf(format, args...))
	})
	consumed, err := outbox.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if consumed != 0 || len(logs) != 0 {
		t.Fatalf("consumed = %d logs = %v, want silent skip", consumed, logs)
	}
}

func TestOutboxDrainListError(t *testing.T) {
	events := &fakeEventStore{listErr: errors.New("database locked")}
	outbox := NewOutbox(events, &fakeHook{}, &recordingSubmitter{}, OutboxConfig{}, t.Logf)
	if _, err := outbox.Drain(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestOutboxServiceContext(t *testing.T) {
	outbox := NewOutbox(&fakeEventStore{}, &fakeHook{}, nil, OutboxConfig{DefaultLanguage: " en_US "}, t.Logf)

	got := outbox.serviceContext(storage.ContentEvent{ID: 42, CompanyID: 1, UserID: 2, GroupID: 3})
	want := storage.ServiceContext{
		CompanyID:       1,
		UserID:          2,
		ScopeGroupID:    3,
		DefaultLanguage: "en_US",
		RequestID:       "content-event-42",
	}
	if got != want {
		t.Fatalf("service context = %+v, want %+v", got, want)
	}

	got = outbox.serviceContext(storage.ContentEvent{ID: 43, LanguageID: "pt_BR"})
	if got.DefaultLanguage != "pt_BR" {
		t.Fatalf("default language = %q, want pt_BR", got.DefaultLanguage)
	}
}

func TestOutboxRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := &fakeEventStore{}
	outbox := NewOutbox(events, &fakeHook{}, &recordingSubmitter{}, OutboxConfig{PollInterval: time.Millisecond}, t.Logf)

	done := make(chan error, 1)
	go func() { done <- outbox.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancel")
	}
	if events.listCalls() < 2 {
		t.Fatalf("list calls = %d, want repeated polling", events.listCalls())
	}
}

func TestOutboxRunRequiresDependencies(t *testing.T) {
	if err := NewOutbox(nil, nil, nil, OutboxConfig{}, t.Logf).Run(context.Background()); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestOutboxPropagatesThroughSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := crawlersqlite.Open(ctx, filepath.Join(t.TempDir(), "crawler.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.PutLayout(ctx, storage.Layout{PLID: 1, CompanyID: 1, GroupID: 20, FriendlyURL: "/home"}); err != nil {
		t.Fatalf("put layout: %v", err)
	}
	if err := store.PutUsage(ctx, storage.LayoutUsage{PLID: 1, ClassNameID: 100, ResourcePrimKey: 7}); err != nil {
		t.Fatalf("put usage: %v", err)
	}
	for _, languageID := range []string{"en_US", "es_ES"} {
		if err := store.UpsertLocalization(ctx, storage.LayoutLocalization{PLID: 1, LanguageID: languageID, Content: "stale"}, storage.ServiceContext{}); err != nil {
			t.Fatalf("seed localization: %v", err)
		}
	}
	if _, err := store.AppendContentEvent(ctx, storage.ContentEvent{ClassNameID: 100, ResourcePrimKey: 7, UserID: 9}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	queue := scheduler.NewQueue(ctx, scheduler.QueueConfig{Workers: 1, Logf: t.Logf})
	propagator := domain.NewPropagator(domain.Dependencies{
		Usages:        store,
		Layouts:       store,
		Localizations: store,
		Indexer:       store,
		Renderer:      stubRenderer{},
		Attempts:      store,
	}, domain.Options{Logf: t.Logf})
	outbox := NewOutbox(store, propagator, queue, OutboxConfig{}, t.Logf)

	consumed, err := outbox.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if consumed != 1 {
		t.Fatalf("consumed = %d, want 1", consumed)
	}
	if err := queue.Close(ctx); err != nil {
		t.Fatalf("close queue: %v", err)
	}

	localizations, err := store.ListLocalizations(ctx, 1)
	if err != nil {
		t.Fatalf("list localizations: %v", err)
	}
	for _, localization := range localizations {
		want := "Fresh " + localization.LanguageID
		if localization.Content != want {
			t.Fatalf("content[%s] = %q, want %q", localization.LanguageID, localization.Content, want)
		}
	}
	hits, err := store.Search(ctx, "fresh", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %+v, want both locales indexed", hits)
	}
	attempts, err := store.ListAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Outcome != domain.OutcomeSucceeded {
		t.Fatalf("attempts = %+v, want one success", attempts)
	}
	pending, err := store.PendingContentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("pending events: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %+v, want none", pending)
	}
}

func TestPropagationKeepsNonCanonicalLanguageIDs(t *testing.T) {
	ctx := context.Background()
	store, err := crawlersqlite.Open(ctx, filepath.Join(t.TempDir(), "crawler.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.PutLayout(ctx, storage.Layout{PLID: 1, CompanyID: 1, GroupID: 20, FriendlyURL: "/home"}); err != nil {
		t.Fatalf("put layout: %v", err)
	}
	ids := []string{"pt-BR", "sr_Latn_RS", "zh_Hant"}
	for _, languageID := range ids {
		if err := store.UpsertLocalization(ctx, storage.LayoutLocalization{PLID: 1, LanguageID: languageID, Content: "stale"}, storage.ServiceContext{}); err != nil {
			t.Fatalf("seed localization: %v", err)
		}
	}

	propagator := domain.NewPropagator(domain.Dependencies{
		Usages:        store,
		Layouts:       store,
		Localizations: store,
		Indexer:       store,
		Renderer:      stubRenderer{},
		Attempts:      store,
	}, domain.Options{Logf: t.Logf})
	batch := domain.Batch{
		Item:   storage.ContentItem{ClassNameID: 100, ResourcePrimKey: 7},
		Usages: []storage.LayoutUsage{{PLID: 1, ClassNameID: 100, ResourcePrimKey: 7}},
	}
	propagator.Process(ctx, batch)
	report := propagator.Process(ctx, batch)
	if report.Upserts != 3 || len(report.Failures) != 0 {
		t.Fatalf("report = %s", report)
	}

	localizations, err := store.ListLocalizations(ctx, 1)
	if err != nil {
		t.Fatalf("list localizations: %v", err)
	}
	if len(localizations) != len(ids) {
		t.Fatalf("rows = %d, want %d: %+v", len(localizations), len(ids), localizations)
	}
	for i, localization := range localizations {
		if localization.LanguageID != ids[i] {
			t.Fatalf("row %d language id = %q, want %q", i, localization.LanguageID, ids[i])
		}
		if localization.Content == "stale" {
			t.Fatalf("row %s was not refreshed", localization.LanguageID)
		}
	}
}

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, _ *storage.Layout, tag language.Tag) (string, error) {
	region, _ := tag.Region()
	base, _ := tag.Base()
	return `<html><body><div id="wrapper"><p>Fresh ` + base.String() + "_" + region.String() + `</p></div></body></html>`, nil
}

type fakeEventStore struct {
	mu         sync.Mutex
	pending    []storage.ContentEvent
	consumed   []int64
	listErr    error
	consumeErr error
	afterHook  func()
	lists      int
}

func (f *fakeEventStore) PendingContentEvents(_ context.Context, limit int) ([]storage.ContentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.pending) > limit {
		return append([]storage.ContentEvent(nil), f.pending[:limit]...), nil
	}
	return append([]storage.ContentEvent(nil), f.pending...), nil
}

func (f *fakeEventStore) ConsumeContentEvent(ctx context.Context, id int64, hook func(context.Context) error) error {
	if f.consumeErr != nil {
		return f.consumeErr
	}
	if err := hook(ctx); err != nil {
		return err
	}
	if f.afterHook != nil {
		f.afterHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, id)
	return nil
}

func (f *fakeEventStore) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type hookCall struct {
	original storage.ContentItem
	updated  storage.ContentItem
	context  storage.ServiceContext
}

type fakeHook struct {
	calls   []hookCall
	failFor int64
}

func (f *fakeHook) OnAfterUpdate(_ context.Context, tx domain.Scheduler, original, updated storage.ContentItem, serviceContext storage.ServiceContext) error {
	f.calls = append(f.calls, hookCall{original: original, updated: updated, context: serviceContext})
	if err := tx.RunAfterCommit(func(context.Context) {}); err != nil {
		return err
	}
	if updated.ResourcePrimKey == f.failFor {
		return errors.New("lookup failed")
	}
	return nil
}

type recordingSubmitter struct {
	mu    sync.Mutex
	tasks []scheduler.Task
}

func (r *recordingSubmitter) Submit(task scheduler.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
