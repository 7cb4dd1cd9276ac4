package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/clustering"
	"horse.fit/atlas/internal/ingest"
	"horse.fit/atlas/internal/linking"
	"horse.fit/atlas/internal/routing"
)

// FetchSourcesStage stores new listing entries. It is the only fatal stage.
type FetchSourcesStage struct {
	Service *ingest.Service
}

func (s FetchSourcesStage) Name() string { return StageFetchSources }
func (s FetchSourcesStage) Fatal() bool  { return true }

func (s FetchSourcesStage) Run(ctx context.Context, rc RunContext) (StageResult, error) {
	opts := ingest.FetchOptions{DryRun: rc.DryRun}
	if !rc.DryRun {
		runID := rc.RunID
		opts.PipelineRunID = &runID
	}
	result, err := s.Service.FetchSources(ctx, opts)
	if err != nil {
		return StageResult{Output: result}, err
	}
	return StageResult{Output: result, Partial: result.Failed > 0 || result.Totals.Errors > 0}, nil
}

type FetchBodiesStage struct {
	Service *ingest.Service
}

func (s FetchBodiesStage) Name() string { return StageFetchBodies }
func (s FetchBodiesStage) Fatal() bool  { return false }

func (s FetchBodiesStage) Run(ctx context.Context, rc RunContext) (StageResult, error) {
	result, err := s.Service.FetchBodies(ctx, ingest.BodyOptions{
		Since:  rc.WindowStart,
		Limit:  rc.Limit,
		DryRun: rc.DryRun,
	})
	if err != nil {
		return StageResult{Output: result}, err
	}
	return StageResult{Output: result, Partial: result.Failed > 0 || result.Canceled > 0}, nil
}

type LinkStage struct {
	Service *linking.Service
}

func (s LinkStage) Name() string { return StageLink }
func (s LinkStage) Fatal() bool  { return false }

func (s LinkStage) Run(ctx context.Context, rc RunContext) (StageResult, error) {
	if rc.Catalog == nil {
		return StageResult{}, errors.New("catalog unavailable")
	}
	totals, err := s.Service.Run(ctx, rc.Catalog, linking.Options{
		Since:  rc.WindowStart,
		Limit:  rc.Limit,
		DryRun: rc.DryRun,
	})
	if err != nil {
		return StageResult{Output: totals}, err
	}
	return StageResult{Output: totals, Partial: totals.Errors > 0}, nil
}

type ClusterStage struct {
	Service   *clustering.Service
	Scope     string
	Threshold float64
}

func (s ClusterStage) Name() string { return StageCluster }
func (s ClusterStage) Fatal() bool  { return false }

func (s ClusterStage) Run(ctx context.Context, rc RunContext) (StageResult, error) {
	result, err := s.Service.Run(ctx, clustering.Options{
		Scope:     s.Scope,
		Since:     rc.WindowStart,
		Limit:     rc.Limit,
		Threshold: s.Threshold,
		DryRun:    rc.DryRun,
		Merge:     true,
	})
	if err != nil {
		return StageResult{Output: result}, err
	}
	return StageResult{Output: result, Partial: result.Errors > 0}, nil
}

// RouteStage routes window articles through the section contracts. The
// router is rebuilt per run from the run's institution tree.
type RouteStage struct {
	Store        routing.Store
	Contracts    []routing.Contract
	ClusterScope string
	Logger       zerolog.Logger
}

func (s RouteStage) Name() string { return StageRoute }
func (s RouteStage) Fatal() bool  { return false }

func (s RouteStage) Run(ctx context.Context, rc RunContext) (StageResult, error) {
	router := routing.NewRouter(rc.Catalog.Institutions())
	service := routing.NewService(s.Store, router, s.Contracts, s.Logger)
	result, err := service.Run(ctx, routing.Options{
		RunID:        rc.RunID,
		Since:        rc.WindowStart,
		Until:        rc.WindowEnd,
		Limit:        rc.Limit,
		ClusterScope: s.ClusterScope,
		DryRun:       rc.DryRun,
	})
	if err != nil {
		return StageResult{Output: result}, err
	}
	return StageResult{Output: result}, nil
}
