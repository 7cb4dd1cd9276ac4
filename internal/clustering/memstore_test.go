package clustering

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type memStore struct {
	mu         sync.Mutex
	items      []Item
	clusters   map[int64]*Cluster
	assigned   map[int64]int64
	embeddings map[int64][]float64
	nextID     int64
	failAdd    error
	merges     []MergeOp
}

func newMemStore(items ...Item) *memStore {
	return &memStore{
		items:      items,
		clusters:   map[int64]*Cluster{},
		assigned:   map[int64]int64{},
		embeddings: map[int64][]float64{},
	}
}

func (s *memStore) LoadItems(_ context.Context, q ItemQuery) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Item
	for _, it := range s.items {
		if _, ok := s.assigned[it.ArticleID]; ok {
			continue
		}
		if it.Timestamp.Before(q.Since) {
			continue
		}
		if stored, ok := s.embeddings[it.ArticleID]; ok {
			it.Embedding = stored
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *memStore) LoadClusters(_ context.Context, scope string, _ time.Time) ([]*Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Cluster
	for _, cluster := range s.clusters {
		if cluster.Scope == scope {
			out = append(out, cluster.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SaveEmbedding(_ context.Context, articleID int64, vector []float64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[articleID] = vector
	return nil
}

func (s *memStore) CreateCluster(_ context.Context, cluster *Cluster) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articleID := cluster.Members[0].Item.ArticleID
	if _, ok := s.assigned[articleID]; ok {
		return 0, ErrAlreadyAssigned
	}
	s.nextID++
	stored := cluster.clone()
	stored.ID = s.nextID
	s.clusters[stored.ID] = stored
	s.assigned[articleID] = stored.ID
	return stored.ID, nil
}

func (s *memStore) AddMember(_ context.Context, cluster *Cluster, member Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAdd != nil {
		return s.failAdd
	}
	if _, ok := s.assigned[member.Item.ArticleID]; ok {
		return ErrAlreadyAssigned
	}
	if _, ok := s.clusters[cluster.ID]; !ok {
		return errors.New("unknown cluster")
	}
	s.clusters[cluster.ID] = cluster.clone()
	s.assigned[member.Item.ArticleID] = cluster.ID
	return nil
}

func (s *memStore) MergeClusters(_ context.Context, survivor *Cluster, absorbedID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clusters, absorbedID)
	s.clusters[survivor.ID] = survivor.clone()
	for articleID, clusterID := range s.assigned {
		if clusterID == absorbedID {
			s.assigned[articleID] = survivor.ID
		}
	}
	s.merges = append(s.merges, MergeOp{Survivor: survivor, AbsorbedID: absorbedID})
	return nil
}

func (s *memStore) clusterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clusters)
}

type stubEmbedder struct {
	vectors map[string][]float64
	calls   []string
	err     error
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		e.calls = append(e.calls, text)
		out = append(out, e.vectors[text])
	}
	return out, nil
}

func (e *stubEmbedder) Model() string {
	return "stub"
}
