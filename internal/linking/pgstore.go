package linking

import (
	"context"
	"encoding/json"
	"fmt"

	"horse.fit/atlas/internal/db"
	"horse.fit/atlas/internal/domain"
)

// PGStore implements Store on the atlas schema.
type PGStore struct {
	pool *db.Pool
}

func NewPGStore(pool *db.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) ListArticles(ctx context.Context, q ArticleQuery) ([]domain.Article, error) {
	return s.pool.ListArticles(ctx, db.ArticleFilter{
		Since: q.Since,
		Limit: q.Limit,
		IDs:   q.IDs,
	})
}

func (s *PGStore) PurgeArticleLinks(ctx context.Context, articleIDs []int64) (int64, error) {
	if len(articleIDs) == 0 {
		return 0, nil
	}

	const deleteLinks = `
DELETE FROM atlas.entity_links el
USING atlas.mentions m
WHERE el.mention_id = m.mention_id
	AND m.article_id = ANY($1)
`
	const deleteArticleEntities = `DELETE FROM atlas.article_entities WHERE article_id = ANY($1)`
	const deleteEntityMentions = `DELETE FROM atlas.entity_mentions WHERE article_id = ANY($1)`

	var total int64
	err := s.pool.InTx(ctx, func(tx db.Tx) error {
		for _, q := range []string{deleteLinks, deleteArticleEntities, deleteEntityMentions} {
			tag, err := tx.Exec(ctx, q, articleIDs)
			if err != nil {
				return fmt.Errorf("purge article links: %w", err)
			}
			total += tag.RowsAffected()
		}
		return nil
	})
	return total, err
}

func (s *PGStore) EnsureMention(ctx context.Context, m domain.Mention) (domain.Mention, bool, error) {
	const insertQ = `
INSERT INTO atlas.mentions (
	article_id,
	entity_kind,
	span_start,
	span_end,
	normalized_surface,
	surface,
	context_window
)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (article_id, entity_kind, span_start, span_end, normalized_surface) DO NOTHING
RETURNING mention_id
`

	var id int64
	err := s.pool.QueryRow(
		ctx,
		insertQ,
		m.ArticleID,
		string(m.EntityKind),
		m.SpanStart,
		m.SpanEnd,
		m.NormalizedSurface,
		m.Surface,
		m.ContextWindow,
	).Scan(&id)
	if err == nil {
		m.ID = id
		return m, true, nil
	}
	if !db.IsNoRows(err) {
		return domain.Mention{}, false, fmt.Errorf("insert mention article_id=%d: %w", m.ArticleID, err)
	}

	existing, found, err := s.FindMention(ctx, m.Key())
	if err != nil {
		return domain.Mention{}, false, err
	}
	if !found {
		return domain.Mention{}, false, fmt.Errorf("mention article_id=%d span=%d-%d vanished after conflict", m.ArticleID, m.SpanStart, m.SpanEnd)
	}
	return existing, false, nil
}

func (s *PGStore) FindMention(ctx context.Context, key domain.MentionKey) (domain.Mention, bool, error) {
	const q = `
SELECT mention_id, surface, context_window
FROM atlas.mentions
WHERE article_id = $1
	AND entity_kind = $2
	AND span_start = $3
	AND span_end = $4
	AND normalized_surface = $5
`

	m := domain.Mention{
		ArticleID:         key.ArticleID,
		EntityKind:        key.EntityKind,
		SpanStart:         key.SpanStart,
		SpanEnd:           key.SpanEnd,
		NormalizedSurface: key.NormalizedSurface,
	}
	err := s.pool.QueryRow(ctx, q, key.ArticleID, string(key.EntityKind), key.SpanStart, key.SpanEnd, key.NormalizedSurface).
		Scan(&m.ID, &m.Surface, &m.ContextWindow)
	if err != nil {
		if db.IsNoRows(err) {
			return domain.Mention{}, false, nil
		}
		return domain.Mention{}, false, fmt.Errorf("select mention article_id=%d: %w", key.ArticleID, err)
	}
	return m, true, nil
}

func (s *PGStore) MentionLinks(ctx context.Context, mentionID int64) ([]domain.EntityLink, error) {
	rows, err := s.pool.Query(ctx, selectLinksQuery, mentionID)
	if err != nil {
		return nil, fmt.Errorf("select links mention_id=%d: %w", mentionID, err)
	}
	return scanLinks(rows)
}

func (s *PGStore) InMentionTx(ctx context.Context, fn func(tx LinkTx) error) error {
	err := s.pool.InTx(ctx, func(tx db.Tx) error {
		return fn(&pgLinkTx{tx: tx})
	})
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

const selectLinksQuery = `
SELECT link_id, mention_id, entity_type, entity_id, status::text, confidence, reasons, resolver_version, updated_at
FROM atlas.entity_links
WHERE mention_id = $1
ORDER BY link_id
`

type pgLinkTx struct {
	tx db.Tx
}

func (t *pgLinkTx) LockLinks(ctx context.Context, mentionID int64) ([]domain.EntityLink, error) {
	// Lock the mention row too so concurrent resolvers of a mention with no
	// links yet still serialize.
	const lockMention = `SELECT mention_id FROM atlas.mentions WHERE mention_id = $1 FOR UPDATE`

	var locked int64
	if err := t.tx.QueryRow(ctx, lockMention, mentionID).Scan(&locked); err != nil {
		return nil, fmt.Errorf("lock mention_id=%d: %w", mentionID, err)
	}

	rows, err := t.tx.Query(ctx, selectLinksQuery+" FOR UPDATE", mentionID)
	if err != nil {
		return nil, fmt.Errorf("lock links mention_id=%d: %w", mentionID, err)
	}
	return scanLinks(rows)
}

func (t *pgLinkTx) InsertLink(ctx context.Context, link domain.EntityLink) (int64, error) {
	const q = `
INSERT INTO atlas.entity_links (
	mention_id,
	entity_type,
	entity_id,
	status,
	confidence,
	reasons,
	resolver_version
)
VALUES ($1, $2, $3, $4::atlas.link_status, $5, $6::jsonb, $7)
RETURNING link_id
`

	reasons, err := db.JSONB(link.Reasons)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.tx.QueryRow(
		ctx,
		q,
		link.MentionID,
		string(link.EntityType),
		link.EntityID,
		string(link.Status),
		link.Confidence,
		string(reasons),
		link.ResolverVersion,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert link mention_id=%d: %w", link.MentionID, err)
	}
	return id, nil
}

func (t *pgLinkTx) UpdateLink(ctx context.Context, link domain.EntityLink) error {
	const q = `
UPDATE atlas.entity_links
SET entity_type = $2,
	entity_id = $3,
	status = $4::atlas.link_status,
	confidence = $5,
	reasons = $6::jsonb,
	resolver_version = $7,
	updated_at = now()
WHERE link_id = $1
`

	reasons, err := db.JSONB(link.Reasons)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(
		ctx,
		q,
		link.ID,
		string(link.EntityType),
		link.EntityID,
		string(link.Status),
		link.Confidence,
		string(reasons),
		link.ResolverVersion,
	)
	if err != nil {
		return fmt.Errorf("update link link_id=%d: %w", link.ID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update link link_id=%d: row not found", link.ID)
	}
	return nil
}

func (t *pgLinkTx) UpsertArticleEntity(ctx context.Context, entity domain.ArticleEntity) error {
	const q = `
INSERT INTO atlas.article_entities (article_id, entity_type, entity_id, confidence)
VALUES ($1, $2, $3, $4)
ON CONFLICT (article_id, entity_type, entity_id) DO UPDATE
SET confidence = GREATEST(atlas.article_entities.confidence, EXCLUDED.confidence),
	updated_at = now()
`

	_, err := t.tx.Exec(ctx, q, entity.ArticleID, string(entity.EntityType), entity.EntityID, entity.Confidence)
	return err
}

func (t *pgLinkTx) RefreshEntityMention(ctx context.Context, key domain.EntityKey, articleID int64) error {
	const countQ = `
SELECT COUNT(*)
FROM atlas.entity_links el
JOIN atlas.mentions m ON m.mention_id = el.mention_id
WHERE m.article_id = $1
	AND el.entity_type = $2
	AND el.entity_id = $3
	AND el.status = 'linked'
`
	const upsertQ = `
INSERT INTO atlas.entity_mentions (entity_type, entity_id, article_id, mention_count, last_linked_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (entity_type, entity_id, article_id) DO UPDATE
SET mention_count = EXCLUDED.mention_count,
	last_linked_at = EXCLUDED.last_linked_at
`
	const deleteQ = `
DELETE FROM atlas.entity_mentions
WHERE entity_type = $1 AND entity_id = $2 AND article_id = $3
`

	var count int
	if err := t.tx.QueryRow(ctx, countQ, articleID, string(key.Type), key.ID).Scan(&count); err != nil {
		return fmt.Errorf("count linked mentions: %w", err)
	}
	if count == 0 {
		_, err := t.tx.Exec(ctx, deleteQ, string(key.Type), key.ID, articleID)
		return err
	}
	_, err := t.tx.Exec(ctx, upsertQ, string(key.Type), key.ID, articleID, count)
	return err
}

func scanLinks(rows *db.Rows) ([]domain.EntityLink, error) {
	defer rows.Close()

	var links []domain.EntityLink
	for rows.Next() {
		var (
			link       domain.EntityLink
			entityType string
			status     string
			reasons    []byte
		)
		if err := rows.Scan(
			&link.ID,
			&link.MentionID,
			&entityType,
			&link.EntityID,
			&status,
			&link.Confidence,
			&reasons,
			&link.ResolverVersion,
			&link.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entity link: %w", err)
		}
		link.EntityType = domain.EntityType(entityType)
		link.Status = domain.LinkStatus(status)
		if len(reasons) > 0 {
			if err := json.Unmarshal(reasons, &link.Reasons); err != nil {
				return nil, fmt.Errorf("decode link reasons link_id=%d: %w", link.ID, err)
			}
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity links: %w", err)
	}
	return links, nil
}
