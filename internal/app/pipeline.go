package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/catalog"
	"horse.fit/atlas/internal/cli"
	"horse.fit/atlas/internal/clustering"
	"horse.fit/atlas/internal/config"
	"horse.fit/atlas/internal/db"
	"horse.fit/atlas/internal/ingest"
	"horse.fit/atlas/internal/linking"
	"horse.fit/atlas/internal/pipeline"
	"horse.fit/atlas/internal/routing"
)

func runPipeline(args []string) int {
	fs := flag.NewFlagSet("run-pipeline", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Hour, "Command timeout")
	hours := fs.Int("hours", pipeline.DefaultHours, "Window in hours")
	limit := fs.Int("limit", pipeline.DefaultLimit, "Maximum articles per stage")
	trigger := fs.String("trigger", pipeline.DefaultTrigger, "Trigger recorded on the run")
	dryRun := fs.Bool("dry-run", false, "Run every stage without writing to the database")

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

	sources, err := ingest.LoadSources(cfg.SourcesFile, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load sources: %v\n", err)
		return 1
	}
	contracts, err := routing.LoadContracts(cfg.SectionsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load section contracts: %v\n", err)
		return 1
	}
	resolver, err := linking.NewResolver(linking.Thresholds{Linked: cfg.LinkThreshold, Proposed: cfg.ProposeThreshold})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid thresholds: %v\n", err)
		return 1
	}

	ctx, cancel := commandContext(*timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("run-pipeline failed to connect to database")
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

	runStore := pipeline.NewPGStore(pool)
	stages := buildStages(stageDeps{
		cfg:       cfg,
		pool:      pool,
		runStore:  runStore,
		ingest:    newIngestService(cfg, pool, sources, logger),
		resolver:  resolver,
		locker:    locker,
		contracts: contracts,
		logger:    logger,
	})
	orchestrator := pipeline.NewOrchestrator(runStore, catalog.NewPGStore(pool, logger), stages, logger)

	run, err := orchestrator.Run(ctx, pipeline.Options{
		Trigger: *trigger,
		Hours:   *hours,
		Limit:   *limit,
		DryRun:  *dryRun,
	})
	if err != nil {
		logger.Error().Err(err).Msg("run-pipeline failed")
		fmt.Fprintf(os.Stderr, "Pipeline failed: %v\n", err)
		return 1
	}

	for _, entry := range run.Log {
		fmt.Printf("stage=%s status=%s\n", entry.Stage, entry.Status)
	}
	fmt.Printf("run-pipeline run=%s status=%s stages=%d dry_run=%t\n", run.UUID, run.Status, len(run.Log), run.DryRun)
	if run.ErrorMessage != "" {
		fmt.Fprintf(os.Stderr, "Run error: %s\n", run.ErrorMessage)
	}
	return run.ExitCode()
}

type stageDeps struct {
	cfg       *config.Config
	pool      *db.Pool
	runStore  *pipeline.PGStore
	ingest    *ingest.Service
	resolver  *linking.Resolver
	locker    clustering.Locker
	contracts []routing.Contract
	logger    zerolog.Logger
}

// buildStages wires the stages in pipeline.StageOrder.
func buildStages(deps stageDeps) []pipeline.Stage {
	linker := linking.NewService(linking.NewPGStore(deps.pool), deps.resolver, linking.DefaultHooks(), deps.logger)
	clusterer := clustering.NewService(clustering.NewPGStore(deps.pool), deps.locker, buildEmbedder(deps.cfg, deps.logger), deps.logger)

	return []pipeline.Stage{
		pipeline.FetchSourcesStage{Service: deps.ingest},
		pipeline.FetchBodiesStage{Service: deps.ingest},
		pipeline.NewTopicsStage(deps.runStore, buildClassifier(deps.cfg, deps.logger), deps.logger),
		pipeline.LinkStage{Service: linker},
		pipeline.NewSentimentStage(deps.runStore, deps.logger),
		pipeline.ClusterStage{Service: clusterer, Scope: clustering.DefaultScope},
		pipeline.RouteStage{
			Store:        routing.NewPGStore(deps.pool),
			Contracts:    deps.contracts,
			ClusterScope: clustering.DefaultScope,
			Logger:       deps.logger,
		},
	}
}
