package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// RunStore persists run records.
type RunStore interface {
	// CreateRun stores a new run and sets its ID.
	CreateRun(ctx context.Context, run *Run) error
	// SaveRun overwrites the mutable fields of an existing run.
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, uuid string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// MemoryRunStore keeps runs in process. Dry runs use it so nothing reaches
// the database.
type MemoryRunStore struct {
	mu     sync.Mutex
	nextID int64
	runs   map[string]Run
	saves  int
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]Run)}
}

func (m *MemoryRunStore) CreateRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	run.ID = m.nextID
	m.runs[run.UUID] = cloneRun(*run)
	return nil
}

func (m *MemoryRunStore) SaveRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.UUID]; !ok {
		return ErrRunNotFound
	}
	m.runs[run.UUID] = cloneRun(*run)
	m.saves++
	return nil
}

func (m *MemoryRunStore) GetRun(_ context.Context, uuid string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[uuid]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return cloneRun(run), nil
}

// ListRuns returns the newest runs first.
func (m *MemoryRunStore) ListRuns(_ context.Context, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, cloneRun(run))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Saves counts SaveRun calls.
func (m *MemoryRunStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func cloneRun(run Run) Run {
	run.Log = append([]StageEntry(nil), run.Log...)
	stats := make(map[string]json.RawMessage, len(run.Stats))
	for k, v := range run.Stats {
		stats[k] = v
	}
	run.Stats = stats
	return run
}
