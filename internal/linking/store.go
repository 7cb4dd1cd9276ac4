package linking

import (
	"context"
	"errors"
	"time"

	"horse.fit/atlas/internal/domain"
)

// ErrConflict marks a unique-constraint race lost to a concurrent writer.
var ErrConflict = errors.New("link write conflict")

// ArticleQuery selects the articles of one linking run.
type ArticleQuery struct {
	Since time.Time
	Limit int
	IDs   []int64
}

// Store is the persistence the linking service needs.
type Store interface {
	ListArticles(ctx context.Context, q ArticleQuery) ([]domain.Article, error)
	PurgeArticleLinks(ctx context.Context, articleIDs []int64) (int64, error)
	// EnsureMention returns the stored mention for m's key, creating it when
	// missing. The bool reports creation.
	EnsureMention(ctx context.Context, m domain.Mention) (domain.Mention, bool, error)
	FindMention(ctx context.Context, key domain.MentionKey) (domain.Mention, bool, error)
	MentionLinks(ctx context.Context, mentionID int64) ([]domain.EntityLink, error)
	// InMentionTx runs fn in a transaction. Unique violations surface as
	// ErrConflict.
	InMentionTx(ctx context.Context, fn func(tx LinkTx) error) error
}

// LinkTx is the transactional view of one mention's links.
type LinkTx interface {
	// LockLinks returns the mention's links, locking them until commit.
	LockLinks(ctx context.Context, mentionID int64) ([]domain.EntityLink, error)
	InsertLink(ctx context.Context, link domain.EntityLink) (int64, error)
	UpdateLink(ctx context.Context, link domain.EntityLink) error
	UpsertArticleEntity(ctx context.Context, entity domain.ArticleEntity) error
	RefreshEntityMention(ctx context.Context, key domain.EntityKey, articleID int64) error
}
