package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horse.fit/atlas/internal/catalog"
	"horse.fit/atlas/internal/classify"
	"horse.fit/atlas/internal/domain"
	payloadschema "horse.fit/atlas/schema"
)

func sentimentCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Build(
		[]catalog.Entity{
			{Type: domain.EntityPerson, ID: 1, DisplayName: "Mauricio Kuri"},
			{Type: domain.EntityPerson, ID: 2, DisplayName: "Ana Gómez"},
			{Type: domain.EntityPerson, ID: 3, DisplayName: "Luis Gómez"},
			{Type: domain.EntityInstitution, ID: 10, DisplayName: "Secretaría de Seguridad"},
		},
		[]catalog.AliasRow{
			{EntityType: domain.EntityPerson, EntityID: 1, RawText: "Kuri", MatchQuality: 0.9},
			{EntityType: domain.EntityPerson, EntityID: 2, RawText: "Gómez", MatchQuality: 0.8},
			{EntityType: domain.EntityPerson, EntityID: 3, RawText: "Gómez", MatchQuality: 0.8},
		},
	)
	require.NoError(t, err)
	return cat
}

func mention(targetType, name, sentiment string, confidence float64) payloadschema.Mention {
	return payloadschema.Mention{TargetType: targetType, TargetName: name, Sentiment: sentiment, Confidence: confidence}
}

func TestMapSentiments(t *testing.T) {
	t.Parallel()

	cat := sentimentCatalog(t)
	payload := classify.Payload{Mentions: []payloadschema.Mention{
		mention(payloadschema.TargetPerson, "KURI", "positivo", 0.6),
		mention(payloadschema.TargetPerson, "Mauricio Kuri", "negativo", 0.9),
		mention(payloadschema.TargetInstitution, "secretaria de seguridad", " neutral ", 0.7),
		mention(payloadschema.TargetPerson, "Gómez", "negativo", 0.8),
		mention(payloadschema.TargetInstitution, "Kuri", "positivo", 0.8),
		mention(payloadschema.TargetPerson, "Desconocido", "positivo", 0.8),
		mention(payloadschema.TargetTopic, "seguridad", "negativo", 0.9),
	}}

	mapped, unmatched := MapSentiments(payload, cat)
	assert.Equal(t, 3, unmatched)
	assert.Equal(t, []EntitySentiment{
		{Key: domain.EntityKey{Type: domain.EntityInstitution, ID: 10}, Sentiment: "neutral", Confidence: 0.7},
		{Key: domain.EntityKey{Type: domain.EntityPerson, ID: 1}, Sentiment: "negativo", Confidence: 0.9},
	}, mapped)
}

type memSentimentStore struct {
	articles []ClassifiedArticle
	applied  map[int64][]EntitySentiment
	fail     int64
}

func (m *memSentimentStore) PendingSentiment(context.Context, time.Time, int) ([]ClassifiedArticle, error) {
	return m.articles, nil
}

func (m *memSentimentStore) ApplySentiment(_ context.Context, articleID int64, sentiments []EntitySentiment, _ time.Time) (int, error) {
	if articleID == m.fail {
		return 0, errors.New("tx aborted")
	}
	if m.applied == nil {
		m.applied = make(map[int64][]EntitySentiment)
	}
	m.applied[articleID] = sentiments
	return len(sentiments), nil
}

func TestSentimentStage(t *testing.T) {
	t.Parallel()

	cat := sentimentCatalog(t)
	store := &memSentimentStore{
		articles: []ClassifiedArticle{
			{ArticleID: 1, Payload: classify.Payload{Mentions: []payloadschema.Mention{
				mention(payloadschema.TargetPerson, "Kuri", "positivo", 0.8),
			}}},
			{ArticleID: 2, Payload: classify.Payload{Mentions: []payloadschema.Mention{
				mention(payloadschema.TargetPerson, "Gómez", "negativo", 0.8),
			}}},
			{ArticleID: 3, Payload: classify.Payload{Mentions: []payloadschema.Mention{
				mention(payloadschema.TargetInstitution, "Secretaría de Seguridad", "negativo", 0.5),
			}}},
		},
		fail: 3,
	}
	stage := NewSentimentStage(store, zerolog.Nop())

	result, err := stage.Run(context.Background(), RunContext{Catalog: cat})
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Equal(t, SentimentResult{Articles: 3, Mapped: 2, Applied: 1, Unmatched: 1, Errors: 1}, result.Output)
	assert.Len(t, store.applied[1], 1)
	assert.Empty(t, store.applied[2])
}

func TestSentimentStageNeedsCatalog(t *testing.T) {
	t.Parallel()

	stage := NewSentimentStage(&memSentimentStore{}, zerolog.Nop())
	_, err := stage.Run(context.Background(), RunContext{})
	assert.EqualError(t, err, "catalog unavailable")
}
