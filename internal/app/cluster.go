package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/atlas/internal/cli"
	"horse.fit/atlas/internal/clustering"
	"horse.fit/atlas/internal/db"
	"horse.fit/atlas/internal/globaltime"
)

func runClusterArticles(args []string) int {
	fs := flag.NewFlagSet("cluster-articles", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	hours := fs.Int("hours", 24, "Window in hours")
	limit := fs.Int("limit", 500, "Maximum articles to assign")
	threshold := fs.Float64("threshold", clustering.DefaultStrongThreshold, "Similarity threshold for joining a cluster")
	scope := fs.String("scope", clustering.DefaultScope, "Cluster scope")
	noMerge := fs.Bool("no-merge", false, "Skip merging near-duplicate clusters")
	dryRun := fs.Bool("dry-run", false, "Assign without writing to the database")

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
	if *threshold <= 0 || *threshold > 1 {
		fmt.Fprintln(os.Stderr, "--threshold must be in (0, 1]")
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, cancel := commandContext(*timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("cluster-articles failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	locker, closeLocker, err := buildLocker(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("cluster lock backend unavailable")
		fmt.Fprintf(os.Stderr, "Failed to connect to Redis: %v\n", err)
		return 1
	}
	defer closeLocker()

	since, _ := globaltime.Window(time.Duration(*hours) * time.Hour)
	svc := clustering.NewService(clustering.NewPGStore(pool), locker, buildEmbedder(cfg, logger), logger)
	result, err := svc.Run(ctx, clustering.Options{
		Scope:     *scope,
		Since:     since,
		Limit:     *limit,
		Threshold: *threshold,
		DryRun:    *dryRun,
		Merge:     !*noMerge,
	})
	if err != nil {
		if errors.Is(err, clustering.ErrLocked) {
			fmt.Fprintf(os.Stderr, "Another clustering pass holds scope %q\n", *scope)
			return 1
		}
		logger.Error().Err(err).Msg("cluster-articles failed")
		fmt.Fprintf(os.Stderr, "Clustering failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"cluster-articles scope=%s processed=%d assigned=%d seeded=%d skipped=%d merged=%d errors=%d dry_run=%t\n",
		*scope,
		result.Processed,
		result.Assigned,
		result.Seeded,
		result.Skipped,
		result.Merged,
		result.Errors,
		*dryRun,
	)
	if result.Errors > 0 {
		return exitPartial
	}
	return 0
}
