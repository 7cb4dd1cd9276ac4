package clustering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/mentions"
	"horse.fit/atlas/internal/textnorm"
)

const (
	DefaultScope       = "global"
	canonicalTextLimit = 900
)

// Options control one clustering pass.
type Options struct {
	Scope     string
	Since     time.Time
	Limit     int
	Threshold float64
	DryRun    bool
	Merge     bool
}

// Result are the counters reported at the end of a pass.
type Result struct {
	Processed int `json:"processed"`
	Assigned  int `json:"assigned"`
	Seeded    int `json:"seeded"`
	Skipped   int `json:"skipped"`
	Merged    int `json:"merged"`
	Errors    int `json:"errors"`
}

type Service struct {
	store    Store
	locker   Locker
	embedder Embedder
	logger   zerolog.Logger
}

// NewService wires the clustering pass. embedder may be nil, in which case
// articles without a stored vector are skipped.
func NewService(store Store, locker Locker, embedder Embedder, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Service{
		store:    store,
		locker:   locker,
		embedder: embedder,
		logger:   logger,
	}
}

// Run assigns every unclustered window article to a cluster in the scope,
// seeding new clusters as needed, then optionally merges near-duplicates.
func (s *Service) Run(ctx context.Context, opts Options) (Result, error) {
	if s == nil || s.store == nil {
		return Result{}, fmt.Errorf("clustering service is not initialized")
	}
	scope := strings.TrimSpace(opts.Scope)
	if scope == "" {
		scope = DefaultScope
	}

	release, err := s.locker.Acquire(ctx, scope)
	if err != nil {
		return Result{}, err
	}
	defer release()

	clusterer := NewClusterer(DefaultParams().WithThreshold(opts.Threshold))

	items, err := s.store.LoadItems(ctx, ItemQuery{Scope: scope, Since: opts.Since, Limit: opts.Limit})
	if err != nil {
		return Result{}, fmt.Errorf("load cluster items: %w", err)
	}
	clusters, err := s.store.LoadClusters(ctx, scope, opts.Since)
	if err != nil {
		return Result{}, fmt.Errorf("load clusters: %w", err)
	}

	var (
		result Result
		tempID int64
	)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++

		item = PrepareItem(item)
		if !Usable(item.Embedding) {
			item.Embedding = s.embedItem(ctx, item, opts.DryRun)
		}
		if !Usable(item.Embedding) {
			result.Skipped++
			s.logger.Debug().Int64("article_id", item.ArticleID).Msg("skipping article without embedding")
			continue
		}

		if match, ok := clusterer.Assign(item, clusters); ok {
			joined := clusterer.Join(match.Cluster, match, item)
			if !opts.DryRun {
				member := joined.Members[len(joined.Members)-1]
				if err := s.store.AddMember(ctx, joined, member); err != nil {
					if errors.Is(err, ErrAlreadyAssigned) {
						result.Skipped++
						continue
					}
					result.Errors++
					s.logger.Error().Err(err).Int64("article_id", item.ArticleID).Int64("cluster_id", joined.ID).Msg("cluster assignment failed")
					continue
				}
			}
			replaceCluster(clusters, match.Cluster, joined)
			result.Assigned++
			s.logger.Debug().
				Int64("article_id", item.ArticleID).
				Int64("cluster_id", joined.ID).
				Float64("similarity", match.Similarity).
				Strs("strong_overlap", match.Signals.StrongOverlap).
				Strs("tag_overlap", match.Signals.TagOverlap).
				Msg("article assigned to cluster")
			continue
		}

		seeded := clusterer.Seed(scope, item)
		if opts.DryRun {
			tempID--
			seeded.ID = tempID
		} else {
			id, err := s.store.CreateCluster(ctx, seeded)
			if err != nil {
				if errors.Is(err, ErrAlreadyAssigned) {
					result.Skipped++
					continue
				}
				result.Errors++
				s.logger.Error().Err(err).Int64("article_id", item.ArticleID).Msg("cluster seed failed")
				continue
			}
			seeded.ID = id
		}
		clusters = append(clusters, seeded)
		result.Seeded++
	}

	if opts.Merge {
		_, ops := clusterer.MergePass(clusters)
		for _, op := range ops {
			if !opts.DryRun {
				if err := s.store.MergeClusters(ctx, op.Survivor, op.AbsorbedID); err != nil {
					result.Errors++
					s.logger.Error().Err(err).Int64("survivor_id", op.Survivor.ID).Int64("absorbed_id", op.AbsorbedID).Msg("cluster merge failed")
					continue
				}
			}
			result.Merged++
		}
	}

	s.logger.Info().
		Str("scope", scope).
		Int("processed", result.Processed).
		Int("assigned", result.Assigned).
		Int("seeded", result.Seeded).
		Int("skipped", result.Skipped).
		Int("merged", result.Merged).
		Int("errors", result.Errors).
		Bool("dry_run", opts.DryRun).
		Msg("clustering finished")

	return result, nil
}

func (s *Service) embedItem(ctx context.Context, item Item, dryRun bool) []float64 {
	if s.embedder == nil {
		return nil
	}
	text := CanonicalText(item)
	if text == "" {
		return nil
	}
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil || len(vectors) == 0 {
		s.logger.Warn().Err(err).Int64("article_id", item.ArticleID).Msg("embedding unavailable")
		return nil
	}
	vector := vectors[0]
	if !Usable(vector) || dryRun {
		return vector
	}
	if err := s.store.SaveEmbedding(ctx, item.ArticleID, vector, s.embedder.Model()); err != nil {
		s.logger.Warn().Err(err).Int64("article_id", item.ArticleID).Msg("failed to store embedding")
	}
	return vector
}

// PrepareItem normalizes tags and grades entity strength from the linked
// surfaces when Strong was not supplied.
func PrepareItem(item Item) Item {
	tags := make([]string, 0, len(item.Tags))
	for _, tag := range item.Tags {
		if normalized := textnorm.Normalize(tag); normalized != "" {
			tags = append(tags, normalized)
		}
	}
	item.Tags = uniqueStrings(tags)

	if item.Strong == nil && len(item.Surfaces) > 0 {
		for _, key := range item.Entities {
			surfaces := item.Surfaces[key]
			if len(surfaces) == 0 {
				continue
			}
			if mentions.Strength(item.Title, item.Body, surfaces).Strong {
				item.Strong = append(item.Strong, key)
			}
		}
	}
	return item
}

// CanonicalText is the embedding input of an article: title, central idea,
// labels and entity names joined by " | ", cut to 900 characters.
func CanonicalText(item Item) string {
	parts := make([]string, 0, 4)
	for _, part := range []string{
		item.Title,
		item.Summary,
		strings.Join(item.Tags, ", "),
		strings.Join(item.EntityNames, ", "),
	} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	text := strings.Join(parts, " | ")
	if utf8.RuneCountInString(text) <= canonicalTextLimit {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:canonicalTextLimit]))
}

func replaceCluster(clusters []*Cluster, old, next *Cluster) {
	for i := range clusters {
		if clusters[i] == old {
			clusters[i] = next
			return
		}
	}
}
