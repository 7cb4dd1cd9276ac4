package clustering

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyAssigned is returned when the article already has a cluster in
// the scope.
var ErrAlreadyAssigned = errors.New("article already assigned in scope")

// ItemQuery selects the articles of one clustering pass.
type ItemQuery struct {
	Scope string
	Since time.Time
	Limit int
}

// Store is the persistence the clustering service needs.
type Store interface {
	// LoadItems returns window articles that are not yet members in the
	// scope, oldest first.
	LoadItems(ctx context.Context, q ItemQuery) ([]Item, error)
	LoadClusters(ctx context.Context, scope string, since time.Time) ([]*Cluster, error)
	SaveEmbedding(ctx context.Context, articleID int64, vector []float64, model string) error
	// CreateCluster inserts the cluster with its seed member and returns the
	// new id.
	CreateCluster(ctx context.Context, cluster *Cluster) (int64, error)
	// AddMember inserts member and rewrites the cluster aggregates.
	AddMember(ctx context.Context, cluster *Cluster, member Member) error
	MergeClusters(ctx context.Context, survivor *Cluster, absorbedID int64) error
}

// Embedder turns canonical article text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
}
