package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const defaultClusterScope = "global"

type Options struct {
	RunID        int64
	Since        time.Time
	Until        time.Time
	Limit        int
	ClusterScope string
	DryRun       bool
}

// SectionStats summarizes one section. OffSectionRate is excluded/evaluated.
type SectionStats struct {
	Key            string  `json:"key"`
	Evaluated      int     `json:"evaluated"`
	Included       int     `json:"included"`
	Excluded       int     `json:"excluded"`
	Vetoed         int     `json:"vetoed"`
	Stories        int     `json:"stories"`
	OffSectionRate float64 `json:"off_section_rate"`
}

type Result struct {
	Articles  int            `json:"articles"`
	Evaluated int            `json:"evaluated"`
	Included  int            `json:"included"`
	Persisted int            `json:"persisted"`
	Stories   int            `json:"stories"`
	Sections  []SectionStats `json:"sections"`
}

type Service struct {
	store     Store
	router    *Router
	contracts []Contract
	logger    zerolog.Logger
}

func NewService(store Store, router *Router, contracts []Contract, logger zerolog.Logger) *Service {
	compiled := make([]Contract, 0, len(contracts))
	for _, contract := range contracts {
		compiled = append(compiled, contract.Compile())
	}
	if router == nil {
		router = NewRouter(nil)
	}
	return &Service{
		store:     store,
		router:    router,
		contracts: compiled,
		logger:    logger,
	}
}

// Run evaluates every window article against every section, persists each
// evaluation and the synthesized stories of the included articles.
func (s *Service) Run(ctx context.Context, opts Options) (Result, error) {
	if s == nil || s.store == nil {
		return Result{}, errors.New("routing service is not initialized")
	}
	if !opts.DryRun && opts.RunID <= 0 {
		return Result{}, errors.New("routing needs a pipeline run id")
	}
	if len(s.contracts) == 0 {
		s.logger.Warn().Msg("no section contracts configured")
		return Result{}, nil
	}
	scope := opts.ClusterScope
	if scope == "" {
		scope = defaultClusterScope
	}

	articles, err := s.store.LoadArticles(ctx, ArticleQuery{
		Since:        opts.Since,
		Until:        opts.Until,
		Limit:        opts.Limit,
		ClusterScope: scope,
	})
	if err != nil {
		return Result{}, fmt.Errorf("load routing articles: %w", err)
	}

	result := Result{Articles: len(articles)}
	for _, contract := range s.contracts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		stats, persisted, stories, err := s.routeSection(ctx, opts, contract, articles)
		if err != nil {
			return result, err
		}
		result.Evaluated += stats.Evaluated
		result.Included += stats.Included
		result.Persisted += persisted
		result.Stories += stories
		result.Sections = append(result.Sections, stats)

		s.logger.Info().
			Str("section", contract.Key).
			Int("evaluated", stats.Evaluated).
			Int("included", stats.Included).
			Int("vetoed", stats.Vetoed).
			Int("stories", stats.Stories).
			Float64("off_section_rate", stats.OffSectionRate).
			Msg("section routed")
	}

	s.logger.Info().
		Int("articles", result.Articles).
		Int("evaluated", result.Evaluated).
		Int("included", result.Included).
		Int("persisted", result.Persisted).
		Int("stories", result.Stories).
		Bool("dry_run", opts.DryRun).
		Msg("routing finished")
	return result, nil
}

func (s *Service) routeSection(ctx context.Context, opts Options, contract Contract, articles []Article) (SectionStats, int, int, error) {
	stats := SectionStats{Key: contract.Key}
	evaluations := make([]Evaluation, 0, len(articles))
	var included []Article
	for _, article := range articles {
		decision := s.router.Route(article, contract)
		evaluations = append(evaluations, Evaluation{
			SectionKey: contract.Key,
			ArticleID:  article.ID,
			Decision:   decision,
		})
		stats.Evaluated++
		if decision.Included {
			stats.Included++
			included = append(included, article)
			continue
		}
		stats.Excluded++
		if decision.Reasons.Rule == RuleNegativeVeto {
			stats.Vetoed++
		}
	}
	if stats.Evaluated > 0 {
		stats.OffSectionRate = float64(stats.Excluded) / float64(stats.Evaluated)
	}

	stories := Synthesize(contract.Key, included)
	stats.Stories = len(stories)
	if opts.DryRun {
		return stats, 0, len(stories), nil
	}

	persisted, err := s.store.SaveEvaluations(ctx, opts.RunID, evaluations)
	if err != nil {
		return stats, 0, 0, fmt.Errorf("save routing results section=%s: %w", contract.Key, err)
	}
	if _, err := s.store.SaveStories(ctx, opts.RunID, stories); err != nil {
		return stats, persisted, 0, fmt.Errorf("save synthesis stories section=%s: %w", contract.Key, err)
	}
	return stats, persisted, len(stories), nil
}
