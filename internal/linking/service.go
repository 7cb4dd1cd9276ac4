package linking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/catalog"
	"horse.fit/atlas/internal/domain"
	"horse.fit/atlas/internal/mentions"
)

// Options control one linking run.
type Options struct {
	Since      time.Time
	Limit      int
	ArticleIDs []int64
	Rebuild    bool
	DryRun     bool
}

// Totals are the counters reported at the end of a run.
type Totals struct {
	Articles         int `json:"articles"`
	MentionsCreated  int `json:"mentions_created"`
	MentionsAnalyzed int `json:"mentions_analyzed"`
	LinksCreated     int `json:"links_created"`
	LinksUpdated     int `json:"links_updated"`
	Proposed         int `json:"proposed"`
	Ambiguous        int `json:"ambiguous"`
	NoCandidates     int `json:"no_candidates"`
	BelowThreshold   int `json:"below_threshold"`
	Errors           int `json:"errors"`
}

type Service struct {
	store    Store
	resolver *Resolver
	hooks    []PostLinkHook
	logger   zerolog.Logger
}

func NewService(store Store, resolver *Resolver, hooks []PostLinkHook, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		hooks:    hooks,
		logger:   logger,
	}
}

// Run extracts mentions from the selected articles and resolves each one
// against cat. Per-mention failures are counted and never stop the batch.
func (s *Service) Run(ctx context.Context, cat *catalog.Catalog, opts Options) (Totals, error) {
	if s == nil || s.store == nil || s.resolver == nil {
		return Totals{}, fmt.Errorf("linking service is not initialized")
	}
	if cat.Empty() {
		s.logger.Warn().Msg("no aliases loaded; nothing will be linked")
	}

	articles, err := s.store.ListArticles(ctx, ArticleQuery{
		Since: opts.Since,
		Limit: opts.Limit,
		IDs:   opts.ArticleIDs,
	})
	if err != nil {
		return Totals{}, fmt.Errorf("list articles: %w", err)
	}

	var totals Totals
	totals.Articles = len(articles)

	if opts.Rebuild && len(articles) > 0 {
		ids := make([]int64, 0, len(articles))
		for _, article := range articles {
			ids = append(ids, article.ID)
		}
		if opts.DryRun {
			s.logger.Info().Int("articles", len(ids)).Msg("dry run: would purge links before rebuild")
		} else {
			purged, err := s.store.PurgeArticleLinks(ctx, ids)
			if err != nil {
				return totals, fmt.Errorf("purge links for rebuild: %w", err)
			}
			s.logger.Info().Int64("rows", purged).Int("articles", len(ids)).Msg("purged links for rebuild")
		}
	}

	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return totals, err
		}
		s.linkArticle(ctx, cat, article, opts.DryRun, &totals)
	}

	s.logger.Info().
		Int("articles", totals.Articles).
		Int("mentions_created", totals.MentionsCreated).
		Int("mentions_analyzed", totals.MentionsAnalyzed).
		Int("links_created", totals.LinksCreated).
		Int("links_updated", totals.LinksUpdated).
		Int("proposed", totals.Proposed).
		Int("ambiguous", totals.Ambiguous).
		Int("no_candidates", totals.NoCandidates).
		Int("below_threshold", totals.BelowThreshold).
		Int("errors", totals.Errors).
		Bool("dry_run", opts.DryRun).
		Msg("entity linking finished")

	return totals, nil
}

func (s *Service) linkArticle(ctx context.Context, cat *catalog.Catalog, article domain.Article, dryRun bool, totals *Totals) {
	spans := mentions.Extract(article.Text(), cat.Matcher())
	candidates, unmatched := mentions.FromSpans(article.ID, spans, cat)
	totals.NoCandidates += len(unmatched)

	for _, candidate := range candidates {
		totals.MentionsAnalyzed++

		mention, created, err := s.prepareMention(ctx, candidate, dryRun)
		if err != nil {
			totals.Errors++
			s.logger.Error().Err(err).Int64("article_id", article.ID).Str("surface", candidate.Surface).Msg("mention persistence failed")
			continue
		}
		if created {
			totals.MentionsCreated++
		}

		decision := s.resolver.Resolve(mention, cat)
		if decision.Ambiguous {
			totals.Ambiguous++
		}
		switch decision.Tier {
		case TierNone:
			if decision.NoCandidates() {
				totals.NoCandidates++
			} else {
				totals.BelowThreshold++
			}
			continue
		case TierProposed:
			totals.Proposed++
		}

		plan, err := s.persistDecision(ctx, mention, decision, dryRun)
		if err != nil {
			totals.Errors++
			s.logger.Error().
				Err(err).
				Int64("article_id", article.ID).
				Int64("mention_id", mention.ID).
				Str("entity", decision.Entity.String()).
				Msg("link persistence failed")
			continue
		}

		switch plan.Action {
		case ActionCreate:
			totals.LinksCreated++
		case ActionUpdate, ActionPromote:
			totals.LinksUpdated++
		}
		s.logger.Debug().
			Int64("article_id", article.ID).
			Int64("mention_id", mention.ID).
			Str("surface", mention.Surface).
			Str("entity", decision.Entity.String()).
			Str("tier", string(decision.Tier)).
			Float64("score", decision.Score).
			Str("action", string(plan.Action)).
			Msg("mention resolved")
	}
}

func (s *Service) prepareMention(ctx context.Context, candidate domain.Mention, dryRun bool) (domain.Mention, bool, error) {
	if !dryRun {
		return s.store.EnsureMention(ctx, candidate)
	}
	existing, found, err := s.store.FindMention(ctx, candidate.Key())
	if err != nil {
		return domain.Mention{}, false, err
	}
	if found {
		return existing, false, nil
	}
	return candidate, true, nil
}

// persistDecision applies the decision in one transaction. A lost unique
// race is retried once; the retry re-reads the links and turns into an
// update or no-op.
func (s *Service) persistDecision(ctx context.Context, mention domain.Mention, decision Decision, dryRun bool) (Plan, error) {
	if dryRun {
		var existing []domain.EntityLink
		if mention.ID > 0 {
			links, err := s.store.MentionLinks(ctx, mention.ID)
			if err != nil {
				return Plan{}, err
			}
			existing = links
		}
		return PlanLink(mention.ID, existing, decision), nil
	}

	plan, err := s.applyOnce(ctx, mention, decision)
	if errors.Is(err, ErrConflict) {
		s.logger.Debug().Int64("mention_id", mention.ID).Msg("link conflict, retrying as update")
		plan, err = s.applyOnce(ctx, mention, decision)
	}
	return plan, err
}

func (s *Service) applyOnce(ctx context.Context, mention domain.Mention, decision Decision) (Plan, error) {
	var plan Plan
	err := s.store.InMentionTx(ctx, func(tx LinkTx) error {
		existing, err := tx.LockLinks(ctx, mention.ID)
		if err != nil {
			return err
		}

		plan = PlanLink(mention.ID, existing, decision)
		switch plan.Action {
		case ActionNoop:
			return nil
		case ActionCreate:
			id, err := tx.InsertLink(ctx, plan.Link)
			if err != nil {
				return err
			}
			plan.Link.ID = id
		case ActionUpdate, ActionPromote:
			if err := tx.UpdateLink(ctx, plan.Link); err != nil {
				return err
			}
		}

		if !plan.WritesLinked() {
			return nil
		}
		for _, hook := range s.hooks {
			if err := hook(ctx, tx, mention, plan); err != nil {
				return err
			}
		}
		return nil
	})
	return plan, err
}
