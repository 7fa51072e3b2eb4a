// Package seed parses seed command flags and loads a manifest into the
// crawler database.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"

	entrypoint "github.com/louisbranch/layoutcrawl/internal/platform/cmd"
	"github.com/louisbranch/layoutcrawl/internal/tools/seed"
)

// Config holds seed command configuration.
type Config struct {
	DBPath       string `env:"SEED_DB_PATH" envDefault:"data/crawler.db"`
	ManifestPath string `env:"SEED_MANIFEST"`
	Verbose      bool   `env:"SEED_VERBOSE"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The crawler SQLite database path")
	fs.StringVar(&cfg.ManifestPath, "manifest", cfg.ManifestPath, "YAML manifest to load")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose output")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the seed command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	summary, err := seed.Run(ctx, seed.Config{
		DBPath:       cfg.DBPath,
		ManifestPath: cfg.ManifestPath,
		Verbose:      cfg.Verbose,
	}, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded %s\n", summary)
	return nil
}
