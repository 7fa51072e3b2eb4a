package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/layoutcrawl/internal/platform/timeouts"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/domain"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/scheduler"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
)

const defaultOutboxBatchSize = 50

// EventStore is the content event outbox the consumer drains.
type EventStore interface {
	PendingContentEvents(ctx context.Context, limit int) ([]storage.ContentEvent, error)
	ConsumeContentEvent(ctx context.Context, id int64, hook func(context.Context) error) error
}

// UpdateHook reacts to a committed content update.
type UpdateHook interface {
	OnAfterUpdate(ctx context.Context, tx domain.Scheduler, original, updated storage.ContentItem, serviceContext storage.ServiceContext) error
}

// OutboxConfig controls outbox polling.
type OutboxConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	DefaultLanguage string
}

func (c OutboxConfig) normalized() OutboxConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = timeouts.OutboxPoll
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultOutboxBatchSize
	}
	c.DefaultLanguage = strings.TrimSpace(c.DefaultLanguage)
	return c
}

// Outbox turns content events into update transactions. Each event is
// consumed inside its own transaction; post-commit callbacks registered by
// the hook reach the submitter only once that transaction commits.
type Outbox struct {
	events    EventStore
	hook      UpdateHook
	submitter scheduler.Submitter
	cfg       OutboxConfig
	logf      func(string, ...any)
}

// NewOutbox creates an outbox consumer.
func NewOutbox(events EventStore, hook UpdateHook, submitter scheduler.Submitter, cfg OutboxConfig, logf func(string, ...any)) *Outbox {
	if logf == nil {
		logf = log.Printf
	}
	return &Outbox{
		events:    events,
		hook:      hook,
		submitter: submitter,
		cfg:       cfg.normalized(),
		logf:      logf,
	}
}

// Run drains the outbox every poll interval until ctx ends.
func (o *Outbox) Run(ctx context.Context) error {
	if o == nil || o.events == nil || o.hook == nil {
		return fmt.Errorf("outbox is not configured")
	}
	if _, err := o.Drain(ctx); err != nil && ctx.Err() == nil {
		o.logf("content outbox drain failed: %v", err)
	}

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := o.Drain(ctx); err != nil && ctx.Err() == nil {
				o.logf("content outbox drain failed: %v", err)
			}
		}
	}
}

// Drain consumes one batch of pending events and returns how many committed.
// A failing event stays pending and is retried on the next drain.
func (o *Outbox) Drain(ctx context.Context) (int, error) {
	events, err := o.events.PendingContentEvents(ctx, o.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending content events: %w", err)
	}
	consumed := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return consumed, err
		}
		if err := o.consume(ctx, event); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			o.logf("content event %d: %v", event.ID, err)
			continue
		}
		consumed++
	}
	return consumed, nil
}

func (o *Outbox) consume(ctx context.Context, event storage.ContentEvent) error {
	item := storage.ContentItem{
		ClassNameID:     event.ClassNameID,
		ResourcePrimKey: event.ResourcePrimKey,
	}
	tx := scheduler.Begin(o.submitter)
	err := o.events.ConsumeContentEvent(ctx, event.ID, func(txCtx context.Context) error {
		return o.hook.OnAfterUpdate(txCtx, tx, item, item, o.serviceContext(event))
	})
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		o.logf("schedule propagation for content event %d: %v", event.ID, err)
	}
	return nil
}

func (o *Outbox) serviceContext(event storage.ContentEvent) storage.ServiceContext {
	languageID := strings.TrimSpace(event.LanguageID)
	if languageID == "" {
		languageID = o.cfg.DefaultLanguage
	}
	return storage.ServiceContext{
		CompanyID:       event.CompanyID,
		UserID:          event.UserID,
		ScopeGroupID:    event.GroupID,
		DefaultLanguage: languageID,
		RequestID:       "content-event-" + strconv.FormatInt(event.ID, 10),
	}
}
