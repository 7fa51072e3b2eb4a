// Package render produces server-side rendered snapshots of layouts by
// crawling the site's own front end as a guest visitor.
package render

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	platformerrors "github.com/louisbranch/layoutcrawl/internal/platform/errors"
	"github.com/louisbranch/layoutcrawl/internal/platform/i18n/locale"
	platformotel "github.com/louisbranch/layoutcrawl/internal/platform/otel"
	"github.com/louisbranch/layoutcrawl/internal/platform/timeouts"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
)

// DefaultUserAgent identifies crawler traffic in front-end logs.
const DefaultUserAgent = "Layoutcrawl Page Crawler"

// Config controls how layouts are crawled.
type Config struct {
	// InstanceProtocol and WebServerProtocol mirror portal settings; either
	// one being "https" makes the crawl secure.
	InstanceProtocol  string
	WebServerProtocol string
	UserAgent         string
	Timeout           time.Duration
}

func (c Config) normalized() Config {
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = timeouts.LayoutFetch
	}
	return c
}

func (c Config) secure() bool {
	return strings.EqualFold(strings.TrimSpace(c.InstanceProtocol), "https") ||
		strings.EqualFold(strings.TrimSpace(c.WebServerProtocol), "https")
}

// Renderer fetches rendered layout HTML. It is safe for concurrent use.
type Renderer struct {
	fetcher  Fetcher
	resolver ServerResolver
	locales  *locale.Registry
	cfg      Config
	logf     func(string, ...any)
	tracer   trace.Tracer
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithLogf overrides the diagnostic logger.
func WithLogf(logf func(string, ...any)) Option {
	return func(r *Renderer) {
		if logf != nil {
			r.logf = logf
		}
	}
}

// WithLocales sets the registry used to compute i18n paths.
func WithLocales(registry *locale.Registry) Option {
	return func(r *Renderer) {
		r.locales = registry
	}
}

// New creates a renderer.
func New(fetcher Fetcher, resolver ServerResolver, cfg Config, opts ...Option) *Renderer {
	r := &Renderer{
		fetcher:  fetcher,
		resolver: resolver,
		cfg:      cfg.normalized(),
		logf:     log.Printf,
		tracer:   platformotel.Tracer("layoutcrawl/render"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the HTML of layout as a visitor in tag would see it.
//
// Ordinary network outcomes never fail: an unresolvable server, a transport
// error, a timeout, or any status other than 200 yields "". Only a contract
// violation (missing layout, undetermined locale, unconfigured renderer)
// returns a RENDER_FAILURE error. Draft status is the caller's concern.
func (r *Renderer) Render(ctx context.Context, layout *storage.Layout, tag language.Tag) (string, error) {
	if r == nil || r.fetcher == nil || r.resolver == nil {
		return "", platformerrors.New(platformerrors.CodeRenderFailure, "renderer is not configured")
	}
	if layout == nil {
		return "", platformerrors.New(platformerrors.CodeRenderFailure, "layout is required")
	}
	if layout.PLID <= 0 {
		return "", platformerrors.WithMetadata(platformerrors.CodeRenderFailure, "layout plid must be positive",
			map[string]string{"plid": strconv.FormatInt(layout.PLID, 10)})
	}
	if tag == language.Und {
		return "", platformerrors.New(platformerrors.CodeRenderFailure, "locale is required")
	}

	ctx, span := r.tracer.Start(ctx, "render.layout", trace.WithAttributes(
		attribute.Int64("layout.plid", layout.PLID),
		attribute.String("layout.locale", tag.String()),
	))
	defer span.End()

	secure := r.cfg.secure()
	addr, err := r.resolver.Resolve(ctx, secure)
	if err != nil || strings.TrimSpace(addr.Host) == "" {
		r.logf("render layout %d %s: server address unresolved: %v", layout.PLID, tag, err)
		span.SetAttributes(attribute.Bool("render.server_unresolved", true))
		return "", nil
	}

	rc := newContext(*layout, tag, addr, secure, r.locales)

	headers := http.Header{}
	headers.Set("User-Agent", r.cfg.UserAgent)
	resp, err := r.fetcher.Fetch(ctx, FetchRequest{
		URL:     rc.URL,
		Host:    rc.VirtualHost,
		Headers: headers,
		Cookies: []*http.Cookie{rc.Cookie},
		Timeout: r.cfg.Timeout,
	})
	if err != nil {
		r.logf("render layout %d %s: %v", layout.PLID, tag, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return "", nil
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		r.logf("render layout %d %s: %s returned status %d", layout.PLID, tag, rc.URL, resp.StatusCode)
		return "", nil
	}
	return resp.Body, nil
}
