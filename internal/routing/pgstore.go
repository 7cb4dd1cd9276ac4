package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"horse.fit/atlas/internal/db"
	"horse.fit/atlas/internal/domain"
	"horse.fit/atlas/internal/mentions"
)

// PGStore implements Store on atlas.routing_results and
// atlas.synthesis_stories.
type PGStore struct {
	pool *db.Pool
}

func NewPGStore(pool *db.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) LoadArticles(ctx context.Context, q ArticleQuery) ([]Article, error) {
	rows, err := s.pool.ListArticles(ctx, db.ArticleFilter{
		Since: q.Since,
		Until: q.Until,
		Limit: q.Limit,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	refs, err := s.pool.ArticleEntityRefs(ctx, ids)
	if err != nil {
		return nil, err
	}
	surfaces, err := s.pool.LinkedSurfaces(ctx, ids)
	if err != nil {
		return nil, err
	}
	clusters, err := s.pool.ClusterAssignments(ctx, q.ClusterScope, ids)
	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(rows))
	for _, row := range rows {
		articles = append(articles, toArticle(row, refs[row.ID], surfaces[row.ID], clusters[row.ID]))
	}
	return articles, nil
}

func toArticle(row domain.Article, refs []db.EntityRef, surfaces map[string][]string, clusterID int64) Article {
	article := Article{
		ID:        row.ID,
		Title:     row.Title,
		Lead:      row.Lead,
		Body:      row.Body,
		Summary:   row.Summary,
		ClusterID: clusterID,
	}
	body := strings.TrimSpace(row.Lead + "\n" + row.Body)
	for _, ref := range refs {
		key, err := domain.ParseEntityKey(ref.Key())
		if err != nil {
			continue
		}
		strong := false
		if list := surfaces[ref.Key()]; len(list) > 0 {
			strong = mentions.Strength(row.Title, body, list).Strong
		}
		article.Entities = append(article.Entities, EntityHit{Key: key, Strong: strong})
	}
	return article
}

func (s *PGStore) SaveEvaluations(ctx context.Context, runID int64, evaluations []Evaluation) (int, error) {
	const insertQ = `
INSERT INTO atlas.routing_results (
	run_id,
	section_key,
	article_id,
	included,
	score,
	reasons
)
VALUES ($1, $2, $3, $4, $5, $6::jsonb)
ON CONFLICT (run_id, section_key, article_id) DO NOTHING
`
	var inserted int
	err := s.pool.InTx(ctx, func(tx db.Tx) error {
		for _, evaluation := range evaluations {
			reasons, err := json.Marshal(evaluation.Decision.Reasons)
			if err != nil {
				return fmt.Errorf("encode routing reasons article_id=%d: %w", evaluation.ArticleID, err)
			}
			tag, err := tx.Exec(ctx, insertQ,
				runID,
				evaluation.SectionKey,
				evaluation.ArticleID,
				evaluation.Decision.Included,
				evaluation.Decision.Score,
				string(reasons),
			)
			if err != nil {
				return fmt.Errorf("insert routing result article_id=%d: %w", evaluation.ArticleID, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *PGStore) SaveStories(ctx context.Context, runID int64, stories []Story) (int, error) {
	const insertQ = `
INSERT INTO atlas.synthesis_stories (
	run_id,
	section_key,
	fingerprint,
	cluster_id,
	sort_order,
	title,
	summary,
	article_ids
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
ON CONFLICT (run_id, section_key, fingerprint) DO NOTHING
`
	var inserted int
	err := s.pool.InTx(ctx, func(tx db.Tx) error {
		for _, story := range stories {
			articleIDs, err := db.JSONB(story.ArticleIDs)
			if err != nil {
				return err
			}
			var clusterID *int64
			if story.ClusterID > 0 {
				id := story.ClusterID
				clusterID = &id
			}
			tag, err := tx.Exec(ctx, insertQ,
				runID,
				story.SectionKey,
				story.Fingerprint,
				clusterID,
				story.SortOrder,
				story.Title,
				story.Summary,
				string(articleIDs),
			)
			if err != nil {
				return fmt.Errorf("insert synthesis story section=%s: %w", story.SectionKey, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
