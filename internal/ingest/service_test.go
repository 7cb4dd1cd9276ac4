package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horse.fit/atlas/internal/reader"
)

type finishedRun struct {
	status FetchStatus
	stats  SourceStats
	errMsg string
}

type memStore struct {
	mu       sync.Mutex
	nextID   int64
	runSeq   int64
	runs     map[int64]FetchRun
	finished map[int64]finishedRun
	byURL    map[string]int64
	byHash   map[string]int64
	articles map[int64]NewArticle
	pending  []PendingBody
	bodies   map[int64]BodyUpdate
	failURL  string
}

func newMemStore() *memStore {
	return &memStore{
		runs:     map[int64]FetchRun{},
		finished: map[int64]finishedRun{},
		byURL:    map[string]int64{},
		byHash:   map[string]int64{},
		articles: map[int64]NewArticle{},
		bodies:   map[int64]BodyUpdate{},
	}
}

func (m *memStore) StartFetchRun(_ context.Context, run FetchRun) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runSeq++
	m.runs[m.runSeq] = run
	return m.runSeq, nil
}

func (m *memStore) FinishFetchRun(_ context.Context, runID int64, status FetchStatus, stats SourceStats, errMsg string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[runID] = finishedRun{status: status, stats: stats, errMsg: errMsg}
	return nil
}

func (m *memStore) InsertArticle(_ context.Context, article NewArticle) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if article.URL == m.failURL {
		return 0, false, errors.New("insert failed")
	}
	if _, ok := m.byURL[article.URL]; ok {
		return 0, false, nil
	}
	if _, ok := m.byHash[string(article.ContentHash)]; ok {
		return 0, false, nil
	}
	m.nextID++
	m.byURL[article.URL] = m.nextID
	m.byHash[string(article.ContentHash)] = m.nextID
	m.articles[m.nextID] = article
	return m.nextID, true, nil
}

func (m *memStore) PendingBodies(_ context.Context, q BodyQuery) ([]PendingBody, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.Limit > 0 && q.Limit < len(m.pending) {
		return append([]PendingBody(nil), m.pending[:q.Limit]...), nil
	}
	return append([]PendingBody(nil), m.pending...), nil
}

func (m *memStore) SaveBody(_ context.Context, update BodyUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[update.ArticleID] = update
	return nil
}

type stubSource struct {
	name     string
	articles []RawArticle
	err      error
}

func (s stubSource) Name() string { return s.name }
func (s stubSource) Kind() string { return KindFeed }
func (s stubSource) Fetch(context.Context) ([]RawArticle, error) {
	return s.articles, s.err
}

type stubFetcher struct {
	mu       sync.Mutex
	pages    map[string]reader.Page
	block    map[string]bool
	inFlight int
	peak     int
}

func (f *stubFetcher) Fetch(ctx context.Context, url, _ string) (reader.Page, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	page, ok := f.pages[url]
	block := f.block[url]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if block {
		<-ctx.Done()
		return reader.Page{}, ctx.Err()
	}
	time.Sleep(5 * time.Millisecond)
	if !ok {
		return reader.Page{}, fmt.Errorf("fetch status 404")
	}
	return page, nil
}

func TestFetchSourcesStoresAndDedupes(t *testing.T) {
	store := newMemStore()
	store.byURL["https://diario.example/vieja"] = 99

	sources := []Source{
		stubSource{name: "diario", articles: []RawArticle{
			{URL: "https://diario.example/nota?utm_source=rss", Title: "Kuri encabeza reunión", Lead: "Lead"},
			{URL: "https://Diario.example/nota#top", Title: "Kuri encabeza reunión"},
			{URL: "https://diario.example/vieja", Title: "Ya guardada"},
			{URL: "notaurl", Title: "Mala"},
			{URL: "https://diario.example/sin-titulo"},
		}},
		stubSource{name: "caido", err: errors.New("connection refused")},
	}
	svc := NewService(store, sources, Config{}, zerolog.Nop())

	runID := int64(7)
	result, err := svc.FetchSources(context.Background(), FetchOptions{PipelineRunID: &runID})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Sources)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, SourceStats{Seen: 5, Created: 2, Skipped: 2, Errors: 1}, result.Totals)
	require.Len(t, result.Results, 2)
	assert.Equal(t, FetchPartial, result.Results[0].Status)
	assert.Equal(t, FetchFailed, result.Results[1].Status)
	assert.Equal(t, "connection refused", result.Results[1].Error)

	require.Len(t, store.finished, 2)
	assert.Equal(t, FetchPartial, store.finished[1].status)
	assert.Equal(t, FetchFailed, store.finished[2].status)
	assert.Equal(t, &runID, store.runs[1].PipelineRunID)

	id := store.byURL["https://diario.example/nota"]
	require.NotZero(t, id)
	assert.Equal(t, "diario", store.articles[id].Source)
	assert.Equal(t, "Lead", store.articles[id].Lead)
	assert.Contains(t, store.byURL, "https://diario.example/sin-titulo")
	assert.Equal(t, "https://diario.example/sin-titulo", store.articles[store.byURL["https://diario.example/sin-titulo"]].Title)
}

func TestFetchSourcesAllFailed(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, []Source{stubSource{name: "a", err: errors.New("boom")}}, Config{}, zerolog.Nop())

	result, err := svc.FetchSources(context.Background(), FetchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 1 sources failed")
	assert.Equal(t, 1, result.Failed)
}

func TestFetchSourcesNoSources(t *testing.T) {
	svc := NewService(newMemStore(), nil, Config{}, zerolog.Nop())

	result, err := svc.FetchSources(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Sources)
}

func TestFetchSourcesDryRunWritesNothing(t *testing.T) {
	store := newMemStore()
	sources := []Source{stubSource{name: "diario", articles: []RawArticle{
		{URL: "https://diario.example/a", Title: "A"},
		{URL: "https://diario.example/a", Title: "A"},
	}}}
	svc := NewService(store, sources, Config{}, zerolog.Nop())

	result, err := svc.FetchSources(context.Background(), FetchOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, SourceStats{Seen: 2, Created: 1, Skipped: 1}, result.Totals)
	assert.Empty(t, store.runs)
	assert.Empty(t, store.articles)
}

func TestFetchSourcesInsertErrorIsPartial(t *testing.T) {
	store := newMemStore()
	store.failURL = "https://diario.example/b"
	sources := []Source{stubSource{name: "diario", articles: []RawArticle{
		{URL: "https://diario.example/a", Title: "A"},
		{URL: "https://diario.example/b", Title: "B"},
	}}}
	svc := NewService(store, sources, Config{}, zerolog.Nop())

	result, err := svc.FetchSources(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, SourceStats{Seen: 2, Created: 1, Errors: 1}, result.Totals)
	assert.Equal(t, FetchPartial, result.Results[0].Status)
}

func TestFetchBodies(t *testing.T) {
	store := newMemStore()
	store.pending = []PendingBody{
		{ArticleID: 1, URL: "https://diario.example/1", Title: "Uno", Language: "es-MX"},
		{ArticleID: 2, URL: "https://diario.example/2", Title: "Dos", Lead: "Un lead de listado suficientemente largo para confiar en él."},
		{ArticleID: 3, URL: "https://diario.example/3", Title: "Tres"},
		{ArticleID: 4, URL: "https://diario.example/4", Title: "Cuatro"},
		{ArticleID: 5, URL: "https://diario.example/5", Title: "Cinco"},
	}
	fetcher := &stubFetcher{
		pages: map[string]reader.Page{
			"https://diario.example/1": {Text: "Primera oración. Suscríbete al newsletter.\n\nSegundo párrafo.", Lead: "Primera oración."},
			"https://diario.example/2": {Text: "Cuerpo de la nota dos."},
			"https://diario.example/4": {Text: "Publicidad"},
		},
		block: map[string]bool{"https://diario.example/5": true},
	}
	svc := NewService(store, nil, Config{Fetcher: fetcher, Concurrency: 2, Timeout: 50 * time.Millisecond}, zerolog.Nop())

	result, err := svc.FetchBodies(context.Background(), BodyOptions{})
	require.NoError(t, err)
	assert.Equal(t, BodyResult{Pending: 5, Fetched: 2, Failed: 3}, result)
	assert.LessOrEqual(t, fetcher.peak, 2)

	one := store.bodies[1]
	assert.Equal(t, BodyOK, one.Status)
	assert.Equal(t, "Primera oración.\n\nSegundo párrafo.", one.Body)
	assert.Equal(t, "Primera oración.", one.Lead)
	assert.Equal(t, "es", one.Language)

	two := store.bodies[2]
	assert.Equal(t, "Un lead de listado suficientemente largo para confiar en él.", two.Lead)

	assert.Equal(t, BodyFailed, store.bodies[3].Status)
	assert.Contains(t, store.bodies[3].Error, "404")
	assert.Equal(t, BodyFailed, store.bodies[4].Status)
	assert.Contains(t, store.bodies[4].Error, "empty after cleanup")
	assert.Equal(t, BodyFailed, store.bodies[5].Status)
	assert.Contains(t, store.bodies[5].Error, "deadline exceeded")
}

func TestFetchBodiesDryRun(t *testing.T) {
	store := newMemStore()
	store.pending = []PendingBody{{ArticleID: 1, URL: "https://diario.example/1", Title: "Uno"}}
	fetcher := &stubFetcher{pages: map[string]reader.Page{"https://diario.example/1": {Text: "Texto."}}}
	svc := NewService(store, nil, Config{Fetcher: fetcher}, zerolog.Nop())

	result, err := svc.FetchBodies(context.Background(), BodyOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
	assert.Empty(t, store.bodies)
}

type cancelingFetcher struct {
	cancelOn string
	cancel   context.CancelFunc
}

func (f cancelingFetcher) Fetch(ctx context.Context, url, _ string) (reader.Page, error) {
	if url == f.cancelOn {
		f.cancel()
		<-ctx.Done()
		return reader.Page{}, ctx.Err()
	}
	return reader.Page{Text: "Cuerpo completo de la nota."}, nil
}

func TestFetchBodiesCountsCanceledArticles(t *testing.T) {
	store := newMemStore()
	store.pending = []PendingBody{
		{ArticleID: 1, URL: "https://diario.example/1", Title: "Uno"},
		{ArticleID: 2, URL: "https://diario.example/2", Title: "Dos"},
		{ArticleID: 3, URL: "https://diario.example/3", Title: "Tres"},
		{ArticleID: 4, URL: "https://diario.example/4", Title: "Cuatro"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := cancelingFetcher{cancelOn: "https://diario.example/2", cancel: cancel}
	svc := NewService(store, nil, Config{Fetcher: fetcher, Concurrency: 1, Timeout: time.Second}, zerolog.Nop())

	result, err := svc.FetchBodies(ctx, BodyOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, BodyResult{Pending: 4, Fetched: 1, Failed: 0, Canceled: 3}, result)
	assert.Equal(t, result.Pending, result.Fetched+result.Failed+result.Canceled)

	require.Len(t, store.bodies, 1)
	assert.Equal(t, BodyOK, store.bodies[1].Status)
}
