package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/db"
	"horse.fit/atlas/internal/globaltime"
)

const (
	DefaultFetchConcurrency = 4
	DefaultFetchTimeout     = 25 * time.Second
)

// Config tunes body fetching.
type Config struct {
	Fetcher     BodyFetcher
	Concurrency int
	Timeout     time.Duration
}

type Service struct {
	store       Store
	sources     []Source
	fetcher     BodyFetcher
	concurrency int
	timeout     time.Duration
	logger      zerolog.Logger
}

func NewService(store Store, sources []Source, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Fetcher == nil {
		cfg.Fetcher = ReaderFetcher{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultFetchConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	return &Service{
		store:       store,
		sources:     sources,
		fetcher:     cfg.Fetcher,
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// FetchOptions control one pass over the configured sources.
type FetchOptions struct {
	PipelineRunID *int64
	DryRun        bool
}

// SourceResult is the outcome of one source.
type SourceResult struct {
	Source string      `json:"source"`
	Status FetchStatus `json:"status"`
	Stats  SourceStats `json:"stats"`
	Error  string      `json:"error,omitempty"`
}

// FetchResult aggregates a pass over all sources.
type FetchResult struct {
	Sources int            `json:"sources"`
	Failed  int            `json:"failed"`
	Totals  SourceStats    `json:"totals"`
	Results []SourceResult `json:"results"`
}

// FetchSources lists every source and stores new articles. A failing source
// is recorded and skipped; the pass fails only when every source failed or
// the store is unusable.
func (s *Service) FetchSources(ctx context.Context, opts FetchOptions) (FetchResult, error) {
	result := FetchResult{Sources: len(s.sources)}
	if len(s.sources) == 0 {
		s.logger.Warn().Msg("no sources configured")
		return result, nil
	}

	for _, source := range s.sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sourceResult, err := s.fetchSource(ctx, source, opts)
		if err != nil {
			return result, err
		}
		if sourceResult.Status == FetchFailed {
			result.Failed++
		}
		result.Totals.Seen += sourceResult.Stats.Seen
		result.Totals.Created += sourceResult.Stats.Created
		result.Totals.Skipped += sourceResult.Stats.Skipped
		result.Totals.Errors += sourceResult.Stats.Errors
		result.Results = append(result.Results, sourceResult)
	}

	s.logger.Info().
		Int("sources", result.Sources).
		Int("failed", result.Failed).
		Int("seen", result.Totals.Seen).
		Int("created", result.Totals.Created).
		Int("skipped", result.Totals.Skipped).
		Int("errors", result.Totals.Errors).
		Bool("dry_run", opts.DryRun).
		Msg("source fetch completed")

	if result.Failed == result.Sources {
		return result, fmt.Errorf("all %d sources failed", result.Sources)
	}
	return result, nil
}

func (s *Service) fetchSource(ctx context.Context, source Source, opts FetchOptions) (SourceResult, error) {
	result := SourceResult{Source: source.Name()}
	logger := s.logger.With().Str("source", source.Name()).Str("kind", source.Kind()).Logger()

	var runID int64
	if !opts.DryRun {
		id, err := s.store.StartFetchRun(ctx, FetchRun{
			Source:        source.Name(),
			Kind:          source.Kind(),
			PipelineRunID: opts.PipelineRunID,
			StartedAt:     globaltime.UTC(),
		})
		if err != nil {
			return result, fmt.Errorf("start fetch run source=%s: %w", source.Name(), err)
		}
		runID = id
	}

	raw, fetchErr := source.Fetch(ctx)
	if fetchErr != nil {
		result.Status = FetchFailed
		result.Error = db.TruncateError(fetchErr.Error())
		logger.Warn().Err(fetchErr).Msg("source fetch failed")
	} else {
		result.Stats = s.storeArticles(ctx, source.Name(), raw, opts.DryRun, logger)
		result.Status = FetchCompleted
		if result.Stats.Errors > 0 {
			result.Status = FetchPartial
		}
	}

	if !opts.DryRun {
		if err := s.store.FinishFetchRun(ctx, runID, result.Status, result.Stats, result.Error, globaltime.UTC()); err != nil {
			return result, fmt.Errorf("finish fetch run source=%s: %w", source.Name(), err)
		}
	}

	logger.Info().
		Str("status", string(result.Status)).
		Int("seen", result.Stats.Seen).
		Int("created", result.Stats.Created).
		Int("skipped", result.Stats.Skipped).
		Int("errors", result.Stats.Errors).
		Msg("source processed")
	return result, nil
}

func (s *Service) storeArticles(ctx context.Context, source string, raw []RawArticle, dryRun bool, logger zerolog.Logger) SourceStats {
	var stats SourceStats
	hashes := make(map[string]struct{}, len(raw))
	fetchedAt := globaltime.UTC()

	for _, item := range raw {
		stats.Seen++

		canonical, err := CanonicalURL(item.URL)
		if err != nil {
			stats.Errors++
			logger.Warn().Err(err).Str("url", item.URL).Msg("skipping listing entry")
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = canonical
		}

		hash := ContentHash(title, canonical)
		if _, dup := hashes[string(hash)]; dup {
			stats.Skipped++
			continue
		}
		hashes[string(hash)] = struct{}{}

		if dryRun {
			stats.Created++
			continue
		}

		articleID, created, err := s.store.InsertArticle(ctx, NewArticle{
			URL:         canonical,
			Source:      source,
			Title:       title,
			Lead:        clipRunes(strings.TrimSpace(item.Lead), MaxLeadRunes),
			Language:    item.Language,
			ContentHash: hash,
			PublishedAt: item.PublishedAt,
			FetchedAt:   fetchedAt,
		})
		if err != nil {
			stats.Errors++
			logger.Error().Err(err).Str("url", canonical).Msg("store article failed")
			continue
		}
		if !created {
			stats.Skipped++
			continue
		}
		stats.Created++
		logger.Debug().Int64("article_id", articleID).Str("url", canonical).Msg("article stored")
	}
	return stats
}
