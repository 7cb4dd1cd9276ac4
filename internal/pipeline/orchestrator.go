package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/catalog"
	"horse.fit/atlas/internal/db"
	"horse.fit/atlas/internal/globaltime"
)

const (
	StageFetchSources = "fetch-sources"
	StageFetchBodies  = "fetch-bodies"
	StageTopics       = "topics"
	StageLink         = "link"
	StageSentiment    = "sentiment"
	StageCluster      = "cluster"
	StageRoute        = "route"

	DefaultTrigger = "manual"
	DefaultHours   = 24
	DefaultLimit   = 500
)

// StageOrder is the fixed execution order.
var StageOrder = []string{
	StageFetchSources,
	StageFetchBodies,
	StageTopics,
	StageLink,
	StageSentiment,
	StageCluster,
	StageRoute,
}

// RunContext is what every stage sees of the run it belongs to.
type RunContext struct {
	RunID       int64
	RunUUID     string
	WindowStart time.Time
	WindowEnd   time.Time
	Limit       int
	DryRun      bool
	// Catalog is nil when it could not be loaded.
	Catalog *catalog.Catalog
}

// StageResult is a stage's JSON-serializable output. Partial marks a stage
// that finished with per-item failures.
type StageResult struct {
	Output  any
	Partial bool
}

// Stage is one step of the pipeline. Only a fatal stage stops the run when
// it fails.
type Stage interface {
	Name() string
	Fatal() bool
	Run(ctx context.Context, rc RunContext) (StageResult, error)
}

// CatalogLoader builds the alias catalog for one run.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) (*catalog.Catalog, error)
}

// Options control one pipeline run.
type Options struct {
	Trigger string
	Hours   int
	Limit   int
	DryRun  bool
}

type Orchestrator struct {
	runs    RunStore
	catalog CatalogLoader
	stages  []Stage
	logger  zerolog.Logger
}

// NewOrchestrator wires the stages. Stages run in the order given; use
// StageOrder when building them.
func NewOrchestrator(runs RunStore, loader CatalogLoader, stages []Stage, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		runs:    runs,
		catalog: loader,
		stages:  stages,
		logger:  logger,
	}
}

// Run executes every stage once over the window ending now. The returned
// error reports run-store failures only; stage failures are recorded on the
// run and reflected in its status.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Run, error) {
	if opts.Hours <= 0 {
		opts.Hours = DefaultHours
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	trigger := strings.TrimSpace(opts.Trigger)
	if trigger == "" {
		trigger = DefaultTrigger
	}

	store := o.runs
	if opts.DryRun || store == nil {
		store = NewMemoryRunStore()
	}

	start, end := globaltime.Window(time.Duration(opts.Hours) * time.Hour)
	run := Run{
		UUID:        uuid.NewString(),
		Trigger:     trigger,
		WindowStart: start,
		WindowEnd:   end,
		Status:      StatusQueued,
		Stats:       map[string]json.RawMessage{},
		DryRun:      opts.DryRun,
	}
	if err := store.CreateRun(ctx, &run); err != nil {
		return run, fmt.Errorf("create pipeline run: %w", err)
	}

	logger := o.logger.With().Str("run_uuid", run.UUID).Logger()

	startedAt := globaltime.UTC()
	run.Status = StatusRunning
	run.StartedAt = &startedAt
	if err := store.SaveRun(ctx, &run); err != nil {
		return run, fmt.Errorf("mark pipeline run running: %w", err)
	}
	logger.Info().
		Str("trigger", trigger).
		Time("window_start", start).
		Time("window_end", end).
		Bool("dry_run", opts.DryRun).
		Msg("pipeline run started")

	rc := RunContext{
		RunID:       run.ID,
		RunUUID:     run.UUID,
		WindowStart: start,
		WindowEnd:   end,
		Limit:       opts.Limit,
		DryRun:      opts.DryRun,
	}
	if o.catalog != nil {
		cat, err := o.catalog.LoadCatalog(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("catalog unavailable; catalog stages will fail")
		} else {
			rc.Catalog = cat
		}
	}

	degraded := false
	for _, stage := range o.stages {
		if err := ctx.Err(); err != nil {
			run.Status = StatusFailed
			run.ErrorMessage = db.TruncateError("run canceled: " + err.Error())
			break
		}

		entry, output, stageErr := o.runStage(ctx, stage, rc)
		run.Log = append(run.Log, entry)
		if output != nil {
			run.Stats[stage.Name()] = output
		}
		if err := store.SaveRun(ctx, &run); err != nil {
			logger.Error().Err(err).Str("stage", stage.Name()).Msg("persist stage log failed")
		}

		if entry.Status != StageSuccess {
			degraded = true
		}
		if stageErr != nil && stage.Fatal() {
			run.Status = StatusFailed
			run.ErrorMessage = db.TruncateError(fmt.Sprintf("%s: %v", stage.Name(), stageErr))
			break
		}
	}

	if run.Status == StatusRunning {
		run.Status = StatusSuccess
		if degraded {
			run.Status = StatusPartial
		}
	}
	finishedAt := globaltime.UTC()
	run.FinishedAt = &finishedAt

	// The final save must survive a canceled run context.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := store.SaveRun(saveCtx, &run); err != nil {
		return run, fmt.Errorf("finish pipeline run: %w", err)
	}

	logger.Info().
		Str("status", string(run.Status)).
		Int("stages", len(run.Log)).
		Dur("elapsed", finishedAt.Sub(startedAt)).
		Msg("pipeline run finished")
	return run, nil
}

// runStage executes one stage, converting a panic into a failure.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, rc RunContext) (entry StageEntry, output json.RawMessage, err error) {
	logger := o.logger.With().Str("run_uuid", rc.RunUUID).Str("stage", stage.Name()).Logger()
	entry.Stage = stage.Name()

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
			logger.Error().Str("stack", string(debug.Stack())).Interface("panic", recovered).Msg("stage panicked")
			entry.Status = StageFailed
			entry.Output = truncateOutput(err.Error())
			output = nil
		}
		entry.Timestamp = globaltime.UTC()
	}()

	logger.Info().Msg("stage started")
	result, err := stage.Run(ctx, rc)

	if result.Output != nil {
		encoded, marshalErr := json.Marshal(result.Output)
		if marshalErr != nil {
			logger.Warn().Err(marshalErr).Msg("stage output is not JSON")
		} else {
			output = encoded
		}
	}

	switch {
	case err != nil:
		entry.Status = StageFailed
		entry.Output = truncateOutput(err.Error())
		logger.Error().Err(err).Msg("stage failed")
	case result.Partial:
		entry.Status = StagePartial
		entry.Output = truncateOutput(string(output))
		logger.Warn().RawJSON("output", logJSON(output)).Msg("stage finished with item failures")
	default:
		entry.Status = StageSuccess
		entry.Output = truncateOutput(string(output))
		logger.Info().RawJSON("output", logJSON(output)).Msg("stage finished")
	}
	return entry, output, err
}

func logJSON(output json.RawMessage) []byte {
	if len(output) == 0 {
		return []byte("null")
	}
	return output
}
