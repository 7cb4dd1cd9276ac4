package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horse.fit/atlas/internal/classify"
	"horse.fit/atlas/internal/domain"
)

type memTopicStore struct {
	articles []domain.Article
	saved    map[int64]classify.Payload
	failIDs  map[int64]bool
	since    time.Time
	limit    int
}

func (m *memTopicStore) PendingClassification(_ context.Context, since time.Time, limit int) ([]domain.Article, error) {
	m.since, m.limit = since, limit
	return m.articles, nil
}

func (m *memTopicStore) SaveClassification(_ context.Context, articleID int64, payload classify.Payload, _ time.Time) error {
	if m.failIDs[articleID] {
		return errors.New("write failed")
	}
	if m.saved == nil {
		m.saved = make(map[int64]classify.Payload)
	}
	m.saved[articleID] = payload
	return nil
}

// scriptedClassifier returns a fixed result per article ID and records what
// it was asked.
type scriptedClassifier struct {
	results  map[int64]classify.Result
	requests []classify.Request
}

func (s *scriptedClassifier) Classify(_ context.Context, req classify.Request) classify.Result {
	s.requests = append(s.requests, req)
	if result, ok := s.results[req.ArticleID]; ok {
		return result
	}
	return classify.Valid(classify.Payload{CentralIdea: "idea", ArticleType: "informativo", Labels: []string{"seguridad"}})
}

func topicArticles(ids ...int64) []domain.Article {
	articles := make([]domain.Article, 0, len(ids))
	for _, id := range ids {
		articles = append(articles, domain.Article{ID: id, Title: "Titular", Lead: "Entrada", Body: "Cuerpo"})
	}
	return articles
}

func TestTopicsStageClassifiesAndSkipsFallback(t *testing.T) {
	t.Parallel()

	store := &memTopicStore{articles: topicArticles(1, 2, 3)}
	classifier := &scriptedClassifier{results: map[int64]classify.Result{
		2: classify.Invalid("labels: too few"),
		3: classify.Neutral{}.Classify(context.Background(), classify.Request{Title: "Titular"}),
	}}
	stage := NewTopicsStage(store, classifier, zerolog.Nop())

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	result, err := stage.Run(context.Background(), RunContext{WindowStart: start, Limit: 50})
	require.NoError(t, err)

	assert.Equal(t, TopicsResult{Articles: 3, Classified: 1, Fallback: 1, Invalid: 1}, result.Output)
	assert.False(t, result.Partial)
	assert.Equal(t, start, store.since)
	assert.Equal(t, 50, store.limit)
	require.Len(t, store.saved, 1)
	assert.Contains(t, store.saved, int64(1))

	require.Len(t, classifier.requests, 3)
	assert.Equal(t, "Entrada\nCuerpo", classifier.requests[0].Text)
	assert.Empty(t, classifier.requests[0].Catalog)
}

func TestTopicsStageWriteErrors(t *testing.T) {
	t.Parallel()

	store := &memTopicStore{articles: topicArticles(1, 2), failIDs: map[int64]bool{2: true}}
	stage := NewTopicsStage(store, &scriptedClassifier{}, zerolog.Nop())

	result, err := stage.Run(context.Background(), RunContext{})
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Equal(t, 1, result.Output.(TopicsResult).Errors)

	store = &memTopicStore{articles: topicArticles(1), failIDs: map[int64]bool{1: true}}
	stage = NewTopicsStage(store, &scriptedClassifier{}, zerolog.Nop())
	_, err = stage.Run(context.Background(), RunContext{})
	assert.Error(t, err)
}

func TestTopicsStageDryRunDoesNotWrite(t *testing.T) {
	t.Parallel()

	store := &memTopicStore{articles: topicArticles(1, 2)}
	stage := NewTopicsStage(store, &scriptedClassifier{}, zerolog.Nop())

	result, err := stage.Run(context.Background(), RunContext{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Output.(TopicsResult).Classified)
	assert.Empty(t, store.saved)
}

func TestTopicsStageDefaultsToNeutral(t *testing.T) {
	t.Parallel()

	store := &memTopicStore{articles: topicArticles(1)}
	stage := NewTopicsStage(store, nil, zerolog.Nop())

	result, err := stage.Run(context.Background(), RunContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Output.(TopicsResult).Fallback)
	assert.Empty(t, store.saved)
}

func TestJoinNonEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a\nb", joinNonEmpty("a", "  ", "b"))
	assert.Equal(t, "", joinNonEmpty("", " "))
}
