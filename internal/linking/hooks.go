package linking

import (
	"context"
	"fmt"

	"horse.fit/atlas/internal/domain"
)

// PostLinkHook runs inside the mention transaction after a linked row was
// created or changed.
type PostLinkHook func(ctx context.Context, tx LinkTx, mention domain.Mention, plan Plan) error

// DefaultHooks are the derived-table syncs run after every linked write.
func DefaultHooks() []PostLinkHook {
	return []PostLinkHook{SyncArticleEntity, SyncEntityMention}
}

// SyncArticleEntity raises the article rollup confidence to the new link's
// confidence. The stored value never decreases.
func SyncArticleEntity(ctx context.Context, tx LinkTx, mention domain.Mention, plan Plan) error {
	link := plan.Link
	err := tx.UpsertArticleEntity(ctx, domain.ArticleEntity{
		ArticleID:  mention.ArticleID,
		EntityType: link.EntityType,
		EntityID:   link.EntityID,
		Confidence: link.Confidence,
	})
	if err != nil {
		return fmt.Errorf("sync article entity article_id=%d entity=%s: %w", mention.ArticleID, link.EntityKey(), err)
	}
	return nil
}

// SyncEntityMention recounts the per-entity mention rollup for the new
// entity and, when a linked row moved, for the entity it left.
func SyncEntityMention(ctx context.Context, tx LinkTx, mention domain.Mention, plan Plan) error {
	keys := []domain.EntityKey{plan.Link.EntityKey()}
	if prev := plan.Previous; prev != nil && prev.Status == domain.LinkLinked && prev.EntityKey() != plan.Link.EntityKey() {
		keys = append(keys, prev.EntityKey())
	}
	for _, key := range keys {
		if err := tx.RefreshEntityMention(ctx, key, mention.ArticleID); err != nil {
			return fmt.Errorf("sync entity mention article_id=%d entity=%s: %w", mention.ArticleID, key, err)
		}
	}
	return nil
}
