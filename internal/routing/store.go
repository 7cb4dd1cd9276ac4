package routing

import (
	"context"
	"time"
)

// ArticleQuery selects the window articles a routing pass evaluates.
type ArticleQuery struct {
	Since time.Time
	Until time.Time
	Limit int
	// ClusterScope picks which cluster membership fills Article.ClusterID.
	ClusterScope string
}

// Evaluation is one persisted routing decision.
type Evaluation struct {
	SectionKey string
	ArticleID  int64
	Decision   Decision
}

type Store interface {
	LoadArticles(ctx context.Context, q ArticleQuery) ([]Article, error)
	// SaveEvaluations inserts results that do not exist yet for the run and
	// returns how many were written.
	SaveEvaluations(ctx context.Context, runID int64, evaluations []Evaluation) (int, error)
	SaveStories(ctx context.Context, runID int64, stories []Story) (int, error)
}
