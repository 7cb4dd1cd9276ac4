package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"horse.fit/atlas/internal/db"
)

// PGStore is the PostgreSQL Store.
type PGStore struct {
	pool *db.Pool
}

func NewPGStore(pool *db.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) StartFetchRun(ctx context.Context, run FetchRun) (int64, error) {
	const q = `
INSERT INTO atlas.source_fetch_runs (source, source_kind, started_at, status, pipeline_run_id)
VALUES ($1, $2, $3, 'running', $4)
RETURNING fetch_run_id
`
	var id int64
	if err := s.pool.QueryRow(ctx, q, run.Source, run.Kind, run.StartedAt, run.PipelineRunID).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert source_fetch_runs: %w", err)
	}
	return id, nil
}

func (s *PGStore) FinishFetchRun(ctx context.Context, runID int64, status FetchStatus, stats SourceStats, errMsg string, finishedAt time.Time) error {
	const q = `
UPDATE atlas.source_fetch_runs
SET
	status = $2::atlas.fetch_run_status,
	items_seen = $3,
	items_created = $4,
	items_skipped = $5,
	item_errors = $6,
	error_message = $7,
	finished_at = $8
WHERE fetch_run_id = $1
`
	var message *string
	if trimmed := strings.TrimSpace(errMsg); trimmed != "" {
		truncated := db.TruncateError(trimmed)
		message = &truncated
	}
	if _, err := s.pool.Exec(ctx, q, runID, string(status), stats.Seen, stats.Created, stats.Skipped, stats.Errors, message, finishedAt); err != nil {
		return fmt.Errorf("update source_fetch_runs id=%d: %w", runID, err)
	}
	return nil
}

func (s *PGStore) InsertArticle(ctx context.Context, article NewArticle) (int64, bool, error) {
	const q = `
INSERT INTO atlas.articles (
	url,
	source,
	title,
	lead,
	language,
	content_hash,
	published_at,
	fetched_at,
	body_status,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $8, $8)
ON CONFLICT DO NOTHING
RETURNING article_id
`
	var language *string
	if article.Language != "" {
		language = &article.Language
	}

	var id int64
	err := s.pool.QueryRow(ctx, q,
		article.URL,
		article.Source,
		article.Title,
		article.Lead,
		language,
		article.ContentHash,
		article.PublishedAt,
		article.FetchedAt,
	).Scan(&id)
	if err != nil {
		if db.IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("insert article url=%s: %w", article.URL, err)
	}
	return id, true, nil
}

func (s *PGStore) PendingBodies(ctx context.Context, q BodyQuery) ([]PendingBody, error) {
	articles, err := s.pool.ListArticles(ctx, db.ArticleFilter{
		Since:       q.Since,
		Limit:       q.Limit,
		MissingBody: true,
	})
	if err != nil {
		return nil, err
	}

	pending := make([]PendingBody, 0, len(articles))
	for _, article := range articles {
		pending = append(pending, PendingBody{
			ArticleID: article.ID,
			URL:       article.URL,
			Title:     article.Title,
			Lead:      article.Lead,
			Language:  article.Language,
		})
	}
	return pending, nil
}

func (s *PGStore) SaveBody(ctx context.Context, update BodyUpdate) error {
	const q = `
UPDATE atlas.articles
SET
	body_status = $2,
	body = CASE WHEN $2 = 'ok' THEN $3 ELSE body END,
	lead = CASE WHEN $2 = 'ok' AND $4 <> '' THEN $4 ELSE lead END,
	language = COALESCE(NULLIF($5, ''), language),
	body_error = NULLIF($6, ''),
	updated_at = $7
WHERE article_id = $1
`
	if _, err := s.pool.Exec(ctx, q,
		update.ArticleID,
		update.Status,
		update.Body,
		update.Lead,
		update.Language,
		update.Error,
		update.FetchedAt,
	); err != nil {
		return fmt.Errorf("update body article_id=%d: %w", update.ArticleID, err)
	}
	return nil
}
