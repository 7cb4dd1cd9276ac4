package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/cli"
	"horse.fit/atlas/internal/config"
	"horse.fit/atlas/internal/db"
	"horse.fit/atlas/internal/globaltime"
	"horse.fit/atlas/internal/ingest"
	"horse.fit/atlas/internal/reader"
)

func runFetchSources(args []string) int {
	fs := flag.NewFlagSet("fetch-sources", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	sourcesFile := fs.String("sources", "", "Sources YAML file (defaults to SOURCES_FILE)")
	bodies := fs.Bool("bodies", true, "Also fetch pending article bodies")
	hours := fs.Int("hours", 24, "Body fetch window in hours")
	limit := fs.Int("limit", 500, "Maximum pending bodies to fetch")
	dryRun := fs.Bool("dry-run", false, "Fetch without writing to the database")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *hours <= 0 || *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--hours and --limit must be > 0")
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	path := strings.TrimSpace(*sourcesFile)
	if path == "" {
		path = cfg.SourcesFile
	}
	sources, err := ingest.LoadSources(path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load sources: %v\n", err)
		return 1
	}

	ctx, cancel := commandContext(*timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("fetch-sources failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := newIngestService(cfg, pool, sources, logger)
	result, err := svc.FetchSources(ctx, ingest.FetchOptions{DryRun: *dryRun})
	if err != nil {
		logger.Error().Err(err).Msg("fetch-sources failed")
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		return 1
	}
	fmt.Printf(
		"fetch-sources sources=%d failed=%d seen=%d created=%d skipped=%d errors=%d dry_run=%t\n",
		result.Sources,
		result.Failed,
		result.Totals.Seen,
		result.Totals.Created,
		result.Totals.Skipped,
		result.Totals.Errors,
		*dryRun,
	)

	partial := result.Failed > 0 || result.Totals.Errors > 0
	if *bodies {
		since, _ := globaltime.Window(time.Duration(*hours) * time.Hour)
		bodyResult, err := svc.FetchBodies(ctx, ingest.BodyOptions{Since: since, Limit: *limit, DryRun: *dryRun})
		if err != nil {
			logger.Error().Err(err).Msg("fetch bodies failed")
			fmt.Fprintf(os.Stderr, "Body fetch failed: %v\n", err)
			return 1
		}
		fmt.Printf("fetch-bodies pending=%d fetched=%d failed=%d canceled=%d\n",
			bodyResult.Pending, bodyResult.Fetched, bodyResult.Failed, bodyResult.Canceled)
		partial = partial || bodyResult.Failed > 0 || bodyResult.Canceled > 0
	}

	if partial {
		return exitPartial
	}
	return 0
}

func newIngestService(cfg *config.Config, pool *db.Pool, sources []ingest.Source, logger zerolog.Logger) *ingest.Service {
	return ingest.NewService(ingest.NewPGStore(pool), sources, ingest.Config{
		Fetcher:     ingest.ReaderFetcher{Options: reader.FetchOptions{Timeout: cfg.FetchTimeout}},
		Concurrency: cfg.FetchConcurrency,
		Timeout:     cfg.FetchTimeout,
	}, logger)
}
