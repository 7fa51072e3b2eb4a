// Package crawler parses crawler command flags and launches the crawler runtime.
package crawler

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/layoutcrawl/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/layoutcrawl/internal/platform/grpc"
	"github.com/louisbranch/layoutcrawl/internal/platform/timeouts"
	crawlerserver "github.com/louisbranch/layoutcrawl/internal/services/crawler/app"
)

// Config holds crawler command configuration. Environment names carry the
// LAYOUTCRAWL_ prefix.
type Config struct {
	Port              int           `env:"CRAWLER_PORT" envDefault:"8095"`
	DBPath            string        `env:"CRAWLER_DB_PATH" envDefault:"data/crawler.db"`
	InstanceProtocol  string        `env:"CRAWLER_INSTANCE_PROTOCOL" envDefault:"http"`
	WebServerProtocol string        `env:"CRAWLER_WEB_SERVER_PROTOCOL" envDefault:"http"`
	ServerHost        string        `env:"CRAWLER_SERVER_HOST"`
	HTTPPort          int           `env:"CRAWLER_HTTP_PORT" envDefault:"8080"`
	HTTPSPort         int           `env:"CRAWLER_HTTPS_PORT" envDefault:"8443"`
	FetchTimeout      time.Duration `env:"CRAWLER_FETCH_TIMEOUT" envDefault:"100ms"`
	UserAgent         string        `env:"CRAWLER_USER_AGENT"`
	Locales           []string      `env:"CRAWLER_LOCALES" envDefault:"en_US"`
	MaxInFlight       int           `env:"CRAWLER_MAX_IN_FLIGHT" envDefault:"4"`
	QueueWorkers      int           `env:"CRAWLER_QUEUE_WORKERS" envDefault:"2"`
	QueueSize         int           `env:"CRAWLER_QUEUE_SIZE" envDefault:"256"`
	PollInterval      time.Duration `env:"CRAWLER_POLL_INTERVAL" envDefault:"2s"`
	BatchSize         int           `env:"CRAWLER_BATCH_SIZE" envDefault:"50"`
	DefaultLanguage   string        `env:"CRAWLER_DEFAULT_LANGUAGE" envDefault:"en_US"`
	Debug             bool          `env:"CRAWLER_DEBUG"`

	// HealthCheck probes a running crawler instead of starting one.
	HealthCheck bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The crawler health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The crawler SQLite database path")
	fs.StringVar(&cfg.InstanceProtocol, "instance-protocol", cfg.InstanceProtocol, "Portal instance protocol (http or https)")
	fs.StringVar(&cfg.WebServerProtocol, "web-server-protocol", cfg.WebServerProtocol, "Front-end web server protocol (http or https)")
	fs.StringVar(&cfg.ServerHost, "server-host", cfg.ServerHost, "Front-end host to crawl; blank resolves the local hostname")
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "Front-end HTTP port")
	fs.IntVar(&cfg.HTTPSPort, "https-port", cfg.HTTPSPort, "Front-end HTTPS port")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", cfg.FetchTimeout, "Timeout for one layout crawl")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent sent when crawling layouts")
	fs.Func("locales", "Comma-separated site locales, default locale per language first", func(value string) error {
		cfg.Locales = splitList(value)
		return nil
	})
	fs.IntVar(&cfg.MaxInFlight, "max-in-flight", cfg.MaxInFlight, "Concurrent renders per layout")
	fs.IntVar(&cfg.QueueWorkers, "queue-workers", cfg.QueueWorkers, "Post-commit propagation workers")
	fs.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "Post-commit propagation queue capacity")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Content event outbox poll interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Content events consumed per poll")
	fs.StringVar(&cfg.DefaultLanguage, "default-language", cfg.DefaultLanguage, "Language id assumed for events without one")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Log crawled layout content")
	fs.BoolVar(&cfg.HealthCheck, "healthcheck", false, "Probe the local crawler health endpoint and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the crawler runtime, or probes a running one when
// cfg.HealthCheck is set.
func Run(ctx context.Context, cfg Config) error {
	if cfg.HealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, timeouts.HealthProbe)
		defer cancel()
		return platformgrpc.Probe(probeCtx, fmt.Sprintf("127.0.0.1:%d", cfg.Port), crawlerserver.HealthService, log.Printf)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCrawler, func(ctx context.Context) error {
		return crawlerserver.Run(ctx, crawlerserver.RuntimeConfig{
			Port:              cfg.Port,
			DBPath:            cfg.DBPath,
			InstanceProtocol:  cfg.InstanceProtocol,
			WebServerProtocol: cfg.WebServerProtocol,
			ServerHost:        cfg.ServerHost,
			HTTPPort:          cfg.HTTPPort,
			HTTPSPort:         cfg.HTTPSPort,
			FetchTimeout:      cfg.FetchTimeout,
			UserAgent:         cfg.UserAgent,
			Locales:           cfg.Locales,
			MaxInFlight:       cfg.MaxInFlight,
			QueueWorkers:      cfg.QueueWorkers,
			QueueSize:         cfg.QueueSize,
			PollInterval:      cfg.PollInterval,
			BatchSize:         cfg.BatchSize,
			DefaultLanguage:   cfg.DefaultLanguage,
			Debug:             cfg.Debug,
		})
	})
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
