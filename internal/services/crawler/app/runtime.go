// Package app wires the crawler runtime: storage, rendering, propagation,
// the post-commit queue and the content event outbox.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/layoutcrawl/internal/platform/i18n/locale"
	"github.com/louisbranch/layoutcrawl/internal/platform/timeouts"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/domain"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/render"
	"github.com/louisbranch/layoutcrawl/internal/services/crawler/scheduler"
	crawlersqlite "github.com/louisbranch/layoutcrawl/internal/services/crawler/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls crawler startup, dependencies, and loop behavior.
// A blank ServerHost resolves the local hostname.
type RuntimeConfig struct {
	Port              int
	DBPath            string
	InstanceProtocol  string
	WebServerProtocol string
	ServerHost        string
	HTTPPort          int
	HTTPSPort         int
	FetchTimeout      time.Duration
	UserAgent         string
	Locales           []string
	MaxInFlight       int
	QueueWorkers      int
	QueueSize         int
	PollInterval      time.Duration
	BatchSize         int
	DefaultLanguage   string
	Debug             bool
}

// HealthService is the gRPC health service name reported while the runtime
// is up.
const HealthService = "crawler.runtime"

const (
	defaultCrawlerPort = 8095
	defaultCrawlerDB   = "data/crawler.db"
)

// Run starts crawler runtime dependencies and the outbox loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultCrawlerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultCrawlerDB
	}
	registry, err := locale.NewRegistry(cfg.Locales...)
	if err != nil {
		return fmt.Errorf("parse locales: %w", err)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create crawler storage dir: %w", err)
		}
	}

	store, err := crawlersqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open crawler sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close crawler sqlite store: %v", closeErr)
		}
	}()

	queue := scheduler.NewQueue(ctx, scheduler.QueueConfig{
		Workers: cfg.QueueWorkers,
		Size:    cfg.QueueSize,
	})
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), timeouts.QueueDrain)
		defer cancel()
		if err := queue.Close(drainCtx); err != nil {
			log.Printf("close propagation queue: %v", err)
		}
	}()

	outbox := NewOutbox(store, newPropagator(store, newRenderer(cfg, registry), cfg), queue, OutboxConfig{
		PollInterval:    cfg.PollInterval,
		BatchSize:       cfg.BatchSize,
		DefaultLanguage: cfg.DefaultLanguage,
	}, nil)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on crawler port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("crawler server listening at %v", listener.Addr())
	return outbox.Run(ctx)
}

func newRenderer(cfg RuntimeConfig, registry *locale.Registry) *render.Renderer {
	ports := render.Ports{HTTP: cfg.HTTPPort, HTTPS: cfg.HTTPSPort}
	var resolver render.ServerResolver = render.NewHostnameResolver(ports)
	if host := strings.TrimSpace(cfg.ServerHost); host != "" {
		resolver = render.StaticResolver{Host: host, Ports: ports}
	}
	return render.New(
		render.NewHTTPFetcher(&http.Client{}),
		resolver,
		render.Config{
			InstanceProtocol:  cfg.InstanceProtocol,
			WebServerProtocol: cfg.WebServerProtocol,
			UserAgent:         cfg.UserAgent,
			Timeout:           cfg.FetchTimeout,
		},
		render.WithLocales(registry),
	)
}

func newPropagator(store *crawlersqlite.Store, renderer domain.LayoutRenderer, cfg RuntimeConfig) *domain.Propagator {
	return domain.NewPropagator(domain.Dependencies{
		Usages:        store,
		Layouts:       store,
		Localizations: store,
		Indexer:       store,
		Renderer:      renderer,
		Attempts:      store,
	}, domain.Options{
		MaxInFlight: cfg.MaxInFlight,
		Debug:       cfg.Debug,
	})
}
