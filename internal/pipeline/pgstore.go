package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"horse.fit/atlas/internal/classify"
	"horse.fit/atlas/internal/db"
	"horse.fit/atlas/internal/domain"
)

// PGStore keeps runs, classifications and sentiment in PostgreSQL.
type PGStore struct {
	pool *db.Pool
}

func NewPGStore(pool *db.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) CreateRun(ctx context.Context, run *Run) error {
	const q = `
INSERT INTO atlas.pipeline_runs (
	run_uuid,
	trigger,
	window_start,
	window_end,
	status,
	stage_log,
	stats,
	created_at,
	updated_at
)
VALUES ($1::uuid, $2, $3, $4, $5::atlas.pipeline_run_status, $6::jsonb, $7::jsonb, now(), now())
RETURNING run_id
`
	stageLogDoc, statsDoc, err := encodeRun(run)
	if err != nil {
		return err
	}
	if err := s.pool.QueryRow(ctx, q,
		run.UUID,
		run.Trigger,
		run.WindowStart,
		run.WindowEnd,
		string(run.Status),
		stageLogDoc,
		statsDoc,
	).Scan(&run.ID); err != nil {
		return fmt.Errorf("insert pipeline_runs: %w", err)
	}
	return nil
}

func (s *PGStore) SaveRun(ctx context.Context, run *Run) error {
	const q = `
UPDATE atlas.pipeline_runs
SET
	status = $2::atlas.pipeline_run_status,
	stage_log = $3::jsonb,
	stats = $4::jsonb,
	error_message = NULLIF($5, ''),
	started_at = $6,
	finished_at = $7,
	updated_at = now()
WHERE run_uuid = $1::uuid
`
	stageLogDoc, statsDoc, err := encodeRun(run)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, q,
		run.UUID,
		string(run.Status),
		stageLogDoc,
		statsDoc,
		db.TruncateError(run.ErrorMessage),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update pipeline_runs uuid=%s: %w", run.UUID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

const selectRun = `
SELECT
	run_id,
	run_uuid::text,
	trigger,
	window_start,
	window_end,
	status::text,
	stage_log,
	stats,
	COALESCE(error_message, ''),
	started_at,
	finished_at
FROM atlas.pipeline_runs
`

func (s *PGStore) GetRun(ctx context.Context, runUUID string) (Run, error) {
	if _, err := uuid.Parse(strings.TrimSpace(runUUID)); err != nil {
		return Run{}, ErrRunNotFound
	}
	rows, err := s.pool.Query(ctx, selectRun+"WHERE run_uuid = $1::uuid", strings.TrimSpace(runUUID))
	if err != nil {
		return Run{}, fmt.Errorf("select pipeline run: %w", err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrRunNotFound
	}
	return runs[0], nil
}

func (s *PGStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, selectRun+"ORDER BY run_id DESC LIMIT NULLIF($1, 0)", limit)
	if err != nil {
		return nil, fmt.Errorf("select pipeline runs: %w", err)
	}
	return scanRuns(rows)
}

func scanRuns(rows *db.Rows) ([]Run, error) {
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			status   string
			stageLog []byte
			statsDoc []byte
		)
		if err := rows.Scan(
			&run.ID,
			&run.UUID,
			&run.Trigger,
			&run.WindowStart,
			&run.WindowEnd,
			&status,
			&stageLog,
			&statsDoc,
			&run.ErrorMessage,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pipeline run: %w", err)
		}
		run.Status = Status(status)
		if err := json.Unmarshal(stageLog, &run.Log); err != nil {
			return nil, fmt.Errorf("decode stage log run=%s: %w", run.UUID, err)
		}
		if err := json.Unmarshal(statsDoc, &run.Stats); err != nil {
			return nil, fmt.Errorf("decode stats run=%s: %w", run.UUID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline runs: %w", err)
	}
	return runs, nil
}

func encodeRun(run *Run) (string, string, error) {
	entries := run.Log
	if entries == nil {
		entries = []StageEntry{}
	}
	stageLogDoc, err := json.Marshal(entries)
	if err != nil {
		return "", "", fmt.Errorf("encode stage log: %w", err)
	}
	stats := run.Stats
	if stats == nil {
		stats = map[string]json.RawMessage{}
	}
	statsDoc, err := json.Marshal(stats)
	if err != nil {
		return "", "", fmt.Errorf("encode stats: %w", err)
	}
	return string(stageLogDoc), string(statsDoc), nil
}

func (s *PGStore) PendingClassification(ctx context.Context, since time.Time, limit int) ([]domain.Article, error) {
	return s.pool.ListArticles(ctx, db.ArticleFilter{
		Since:        since,
		Limit:        limit,
		WithBody:     true,
		Unclassified: true,
	})
}

func (s *PGStore) SaveClassification(ctx context.Context, articleID int64, payload classify.Payload, at time.Time) error {
	const q = `
UPDATE atlas.articles
SET
	classification = $2::jsonb,
	topics = $3::jsonb,
	summary = $4,
	content_type = $5,
	classified_at = $6,
	updated_at = $6
WHERE article_id = $1
`
	encoded, err := db.JSONB(payload)
	if err != nil {
		return err
	}
	topics, err := db.JSONB(payload.Labels)
	if err != nil {
		return err
	}
	summary := strings.TrimSpace(payload.Summary)
	if summary == "" {
		summary = payload.CentralIdea
	}
	if _, err := s.pool.Exec(ctx, q, articleID, string(encoded), string(topics), summary, payload.ArticleType, at); err != nil {
		return fmt.Errorf("update classification article_id=%d: %w", articleID, err)
	}
	return nil
}

func (s *PGStore) PendingSentiment(ctx context.Context, since time.Time, limit int) ([]ClassifiedArticle, error) {
	const q = `
SELECT article_id, classification
FROM atlas.articles
WHERE classification IS NOT NULL
	AND sentiment_at IS NULL
	AND COALESCE(published_at, fetched_at) >= $1
ORDER BY COALESCE(published_at, fetched_at) DESC, article_id DESC
LIMIT NULLIF($2, 0)
`
	rows, err := s.pool.Query(ctx, q, since, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending sentiment: %w", err)
	}
	defer rows.Close()

	var pending []ClassifiedArticle
	for rows.Next() {
		var (
			article ClassifiedArticle
			raw     []byte
		)
		if err := rows.Scan(&article.ArticleID, &raw); err != nil {
			return nil, fmt.Errorf("scan pending sentiment: %w", err)
		}
		if err := json.Unmarshal(raw, &article.Payload); err != nil {
			return nil, fmt.Errorf("decode classification article_id=%d: %w", article.ArticleID, err)
		}
		pending = append(pending, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending sentiment: %w", err)
	}
	return pending, nil
}

func (s *PGStore) ApplySentiment(ctx context.Context, articleID int64, sentiments []EntitySentiment, at time.Time) (int, error) {
	const updateEntity = `
UPDATE atlas.article_entities
SET sentiment = $4, sentiment_confidence = $5, updated_at = $6
WHERE article_id = $1 AND entity_type = $2 AND entity_id = $3
`
	const markArticle = `UPDATE atlas.articles SET sentiment_at = $2, updated_at = $2 WHERE article_id = $1`

	applied := 0
	err := s.pool.InTx(ctx, func(tx db.Tx) error {
		for _, sentiment := range sentiments {
			tag, err := tx.Exec(ctx, updateEntity,
				articleID,
				string(sentiment.Key.Type),
				sentiment.Key.ID,
				sentiment.Sentiment,
				sentiment.Confidence,
				at,
			)
			if err != nil {
				return fmt.Errorf("update sentiment %s: %w", sentiment.Key, err)
			}
			applied += int(tag.RowsAffected())
		}
		if _, err := tx.Exec(ctx, markArticle, articleID, at); err != nil {
			return fmt.Errorf("mark sentiment done: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("apply sentiment article_id=%d: %w", articleID, err)
	}
	return applied, nil
}
