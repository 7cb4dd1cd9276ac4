package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"horse.fit/atlas/internal/domain"
)

// ArticleFilter selects a window of articles for a batch stage.
type ArticleFilter struct {
	Since            time.Time
	Until            time.Time
	Limit            int
	IDs              []int64
	WithBody         bool
	MissingBody      bool
	MissingEmbedding bool
	Unclassified     bool
	Classified       bool
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const articleTimeExpr = "COALESCE(a.published_at, a.fetched_at)"

// BuildArticleQuery renders the SELECT for f. Rows come back newest first.
func BuildArticleQuery(f ArticleFilter) (string, []any, error) {
	query := psql.Select(
		"a.article_id",
		"a.url",
		"a.source",
		"a.title",
		"a.lead",
		"a.body",
		"a.summary",
		"COALESCE(a.content_type, '')",
		"COALESCE(a.language, '')",
		"a.topics",
		"a.embedding::text",
		"a.published_at",
		"a.fetched_at",
	).From("atlas.articles a")

	if !f.Since.IsZero() {
		query = query.Where(sq.GtOrEq{articleTimeExpr: f.Since.UTC()})
	}
	if !f.Until.IsZero() {
		query = query.Where(sq.LtOrEq{articleTimeExpr: f.Until.UTC()})
	}
	if len(f.IDs) > 0 {
		query = query.Where(sq.Eq{"a.article_id": f.IDs})
	}
	if f.WithBody {
		query = query.Where("a.body <> ''")
	}
	if f.MissingBody {
		query = query.Where(sq.Eq{"a.body_status": "pending"})
	}
	if f.MissingEmbedding {
		query = query.Where(sq.Eq{"a.embedding": nil})
	}
	if f.Unclassified {
		query = query.Where(sq.Eq{"a.classification": nil})
	}
	if f.Classified {
		query = query.Where(sq.NotEq{"a.classification": nil})
	}

	query = query.OrderBy(articleTimeExpr+" DESC", "a.article_id DESC")
	if f.Limit > 0 {
		query = query.Limit(uint64(f.Limit))
	}
	return query.ToSql()
}

// ListArticles returns the articles selected by f.
func (p *Pool) ListArticles(ctx context.Context, f ArticleFilter) ([]domain.Article, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	q, args, err := BuildArticleQuery(f)
	if err != nil {
		return nil, fmt.Errorf("build article query: %w", err)
	}

	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var (
			article   domain.Article
			topics    []byte
			embedding *string
		)
		if err := rows.Scan(
			&article.ID,
			&article.URL,
			&article.Source,
			&article.Title,
			&article.Lead,
			&article.Body,
			&article.Summary,
			&article.ContentType,
			&article.Language,
			&topics,
			&embedding,
			&article.PublishedAt,
			&article.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		if len(topics) > 0 {
			if err := json.Unmarshal(topics, &article.Topics); err != nil {
				return nil, fmt.Errorf("decode topics article_id=%d: %w", article.ID, err)
			}
		}
		article.Embedding, err = ParseVectorLiteral(embedding)
		if err != nil {
			return nil, fmt.Errorf("decode embedding article_id=%d: %w", article.ID, err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

// ArticleClassification returns the stored classifier payload of an article,
// or nil when it has not been classified.
func (p *Pool) ArticleClassification(ctx context.Context, articleID int64) ([]byte, error) {
	const q = `SELECT classification FROM atlas.articles WHERE article_id = $1`

	var payload []byte
	if err := p.QueryRow(ctx, q, articleID).Scan(&payload); err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("select classification article_id=%d: %w", articleID, err)
	}
	if strings.TrimSpace(string(payload)) == "null" {
		return nil, nil
	}
	return payload, nil
}

// SetArticleEmbedding stores an embedding vector and its model.
func (p *Pool) SetArticleEmbedding(ctx context.Context, articleID int64, vector []float64, model string) error {
	literal, err := ToVectorLiteral(vector)
	if err != nil {
		return fmt.Errorf("encode embedding article_id=%d: %w", articleID, err)
	}
	if literal == nil {
		return nil
	}

	const q = `
UPDATE atlas.articles
SET embedding = $2::vector,
	embedding_model = $3,
	updated_at = now()
WHERE article_id = $1
`
	if _, err := p.Exec(ctx, q, articleID, *literal, model); err != nil {
		return fmt.Errorf("update embedding article_id=%d: %w", articleID, err)
	}
	return nil
}
