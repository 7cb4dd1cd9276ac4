package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/atlas/internal/catalog"
	"horse.fit/atlas/internal/cli"
	"horse.fit/atlas/internal/config"
	"horse.fit/atlas/internal/db"
	"horse.fit/atlas/internal/globaltime"
	"horse.fit/atlas/internal/linking"
)

func runLinkEntities(args []string) int {
	fs := flag.NewFlagSet("link-entities", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	since := fs.String("since", "7d", "Only articles fetched after this (7d, 36h, YYYY-MM-DD, RFC3339)")
	limit := fs.Int("limit", 500, "Maximum articles to process")
	rebuild := fs.Bool("rebuild", false, "Purge existing mentions and links of the selected articles first")
	dryRun := fs.Bool("dry-run", false, "Resolve without writing to the database")
	linkedThreshold := fs.Float64("linked-threshold", 0, "Override LINK_THRESHOLD")
	proposedThreshold := fs.Float64("proposed-threshold", 0, "Override PROPOSE_THRESHOLD")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}
	sinceAt, err := parseSince(*since, globaltime.UTC())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	thresholds := linking.Thresholds{Linked: cfg.LinkThreshold, Proposed: cfg.ProposeThreshold}
	if *linkedThreshold != 0 {
		thresholds.Linked = *linkedThreshold
	}
	if *proposedThreshold != 0 {
		thresholds.Proposed = *proposedThreshold
	}
	if err := config.ValidateThresholds(thresholds.Linked, thresholds.Proposed); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid thresholds: %v\n", err)
		return 2
	}
	resolver, err := linking.NewResolver(thresholds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid thresholds: %v\n", err)
		return 2
	}

	ctx, cancel := commandContext(*timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("link-entities failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	cat, err := catalog.NewPGStore(pool, logger).LoadCatalog(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("load alias catalog failed")
		fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
		return 1
	}

	svc := linking.NewService(linking.NewPGStore(pool), resolver, linking.DefaultHooks(), logger)
	totals, err := svc.Run(ctx, cat, linking.Options{
		Since:   sinceAt,
		Limit:   *limit,
		Rebuild: *rebuild,
		DryRun:  *dryRun,
	})
	if err != nil {
		logger.Error().Err(err).Msg("link-entities failed")
		fmt.Fprintf(os.Stderr, "Link failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"link-entities articles=%d mentions=%d linked=%d updated=%d proposed=%d ambiguous=%d no_candidates=%d below_threshold=%d errors=%d dry_run=%t\n",
		totals.Articles,
		totals.MentionsCreated,
		totals.LinksCreated,
		totals.LinksUpdated,
		totals.Proposed,
		totals.Ambiguous,
		totals.NoCandidates,
		totals.BelowThreshold,
		totals.Errors,
		*dryRun,
	)
	if totals.Errors > 0 {
		return exitPartial
	}
	return 0
}
