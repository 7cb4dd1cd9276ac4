package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/catalog"
	"horse.fit/atlas/internal/classify"
	"horse.fit/atlas/internal/domain"
	"horse.fit/atlas/internal/globaltime"
	"horse.fit/atlas/internal/textnorm"
	payloadschema "horse.fit/atlas/schema"
)

// ClassifiedArticle is a stored classification awaiting sentiment mapping.
type ClassifiedArticle struct {
	ArticleID int64
	Payload   classify.Payload
}

// EntitySentiment is the classifier's sentiment toward one canonical entity.
type EntitySentiment struct {
	Key        domain.EntityKey
	Sentiment  string
	Confidence float64
}

// SentimentStore reads classified articles and writes entity sentiment.
type SentimentStore interface {
	PendingSentiment(ctx context.Context, since time.Time, limit int) ([]ClassifiedArticle, error)
	// ApplySentiment updates existing article entities only and marks the
	// article done. It returns the number of entities updated.
	ApplySentiment(ctx context.Context, articleID int64, sentiments []EntitySentiment, at time.Time) (int, error)
}

// SentimentResult counts one sentiment stage.
type SentimentResult struct {
	Articles  int `json:"articles"`
	Mapped    int `json:"mapped"`
	Applied   int `json:"applied"`
	Unmatched int `json:"unmatched"`
	Errors    int `json:"errors"`
}

type SentimentStage struct {
	store  SentimentStore
	logger zerolog.Logger
}

func NewSentimentStage(store SentimentStore, logger zerolog.Logger) *SentimentStage {
	return &SentimentStage{store: store, logger: logger}
}

func (s *SentimentStage) Name() string { return StageSentiment }
func (s *SentimentStage) Fatal() bool  { return false }

func (s *SentimentStage) Run(ctx context.Context, rc RunContext) (StageResult, error) {
	if rc.Catalog == nil {
		return StageResult{}, errors.New("catalog unavailable")
	}
	articles, err := s.store.PendingSentiment(ctx, rc.WindowStart, rc.Limit)
	if err != nil {
		return StageResult{}, err
	}

	result := SentimentResult{Articles: len(articles)}
	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return StageResult{Output: result}, err
		}
		mapped, unmatched := MapSentiments(article.Payload, rc.Catalog)
		result.Mapped += len(mapped)
		result.Unmatched += unmatched
		if rc.DryRun {
			continue
		}
		applied, err := s.store.ApplySentiment(ctx, article.ArticleID, mapped, globaltime.UTC())
		if err != nil {
			result.Errors++
			s.logger.Error().Err(err).Int64("article_id", article.ArticleID).Msg("apply sentiment failed")
			continue
		}
		result.Applied += applied
	}
	return StageResult{Output: result, Partial: result.Errors > 0}, nil
}

// MapSentiments resolves classifier mentions to canonical entities by exact
// normalized alias. A name matching no entity of its type, or more than one,
// is counted as unmatched. Topic mentions are ignored.
func MapSentiments(payload classify.Payload, cat *catalog.Catalog) ([]EntitySentiment, int) {
	best := make(map[domain.EntityKey]EntitySentiment)
	unmatched := 0
	for _, mention := range payload.Mentions {
		var want domain.EntityType
		switch mention.TargetType {
		case payloadschema.TargetPerson:
			want = domain.EntityPerson
		case payloadschema.TargetInstitution:
			want = domain.EntityInstitution
		default:
			continue
		}

		var match []catalog.Candidate
		for _, candidate := range cat.Lookup(textnorm.Normalize(mention.TargetName)) {
			if candidate.EntityType == want {
				match = append(match, candidate)
			}
		}
		if len(match) != 1 {
			unmatched++
			continue
		}

		key := match[0].Key()
		if current, ok := best[key]; ok && current.Confidence >= mention.Confidence {
			continue
		}
		best[key] = EntitySentiment{
			Key:        key,
			Sentiment:  strings.TrimSpace(mention.Sentiment),
			Confidence: mention.Confidence,
		}
	}

	mapped := make([]EntitySentiment, 0, len(best))
	for _, sentiment := range best {
		mapped = append(mapped, sentiment)
	}
	sort.Slice(mapped, func(i, j int) bool {
		return mapped[i].Key.String() < mapped[j].Key.String()
	})
	return mapped, unmatched
}
