package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/atlas/internal/classify"
	"horse.fit/atlas/internal/domain"
	"horse.fit/atlas/internal/globaltime"
)

// TopicStore reads articles awaiting classification and stores payloads.
type TopicStore interface {
	PendingClassification(ctx context.Context, since time.Time, limit int) ([]domain.Article, error)
	SaveClassification(ctx context.Context, articleID int64, payload classify.Payload, at time.Time) error
}

// TopicsResult counts one topics stage.
type TopicsResult struct {
	Articles   int `json:"articles"`
	Classified int `json:"classified"`
	Fallback   int `json:"fallback"`
	Invalid    int `json:"invalid"`
	Errors     int `json:"errors"`
}

// TopicsStage classifies window articles. Fallback payloads are not stored,
// so the article is classified again by the next run.
type TopicsStage struct {
	store      TopicStore
	classifier classify.Classifier
	logger     zerolog.Logger
}

func NewTopicsStage(store TopicStore, classifier classify.Classifier, logger zerolog.Logger) *TopicsStage {
	if classifier == nil {
		classifier = classify.Neutral{}
	}
	return &TopicsStage{store: store, classifier: classifier, logger: logger}
}

func (s *TopicsStage) Name() string { return StageTopics }
func (s *TopicsStage) Fatal() bool  { return false }

func (s *TopicsStage) Run(ctx context.Context, rc RunContext) (StageResult, error) {
	articles, err := s.store.PendingClassification(ctx, rc.WindowStart, rc.Limit)
	if err != nil {
		return StageResult{}, err
	}

	result := TopicsResult{Articles: len(articles)}
	names := rc.Catalog.Names()
	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return StageResult{Output: result}, err
		}

		classified := s.classifier.Classify(ctx, classify.Request{
			ArticleID: article.ID,
			Title:     article.Title,
			Text:      joinNonEmpty(article.Lead, article.Body),
			Catalog:   names,
		})
		payload, ok := classified.Payload()
		if !ok {
			result.Invalid++
			s.logger.Warn().Int64("article_id", article.ID).Str("reason", classified.Reason()).Msg("classification rejected")
			continue
		}
		if payload.Fallback {
			result.Fallback++
			continue
		}
		if rc.DryRun {
			result.Classified++
			continue
		}
		if err := s.store.SaveClassification(ctx, article.ID, payload, globaltime.UTC()); err != nil {
			result.Errors++
			s.logger.Error().Err(err).Int64("article_id", article.ID).Msg("save classification failed")
			continue
		}
		result.Classified++
	}
	if result.Articles > 0 && result.Errors == result.Articles {
		return StageResult{Output: result}, errors.New("every classification write failed")
	}
	return StageResult{Output: result, Partial: result.Errors > 0}, nil
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "\n")
}
