package ingest

import (
	"context"
	"time"
)

// FetchStatus is the outcome of one source fetch run.
type FetchStatus string

const (
	FetchRunning   FetchStatus = "running"
	FetchCompleted FetchStatus = "completed"
	FetchPartial   FetchStatus = "partial"
	FetchFailed    FetchStatus = "failed"
)

const (
	BodyPending = "pending"
	BodyOK      = "ok"
	BodyFailed  = "failed"
)

// FetchRun is the record opened before a source is fetched.
type FetchRun struct {
	Source        string
	Kind          string
	PipelineRunID *int64
	StartedAt     time.Time
}

// SourceStats are the per-source item counters.
type SourceStats struct {
	Seen    int `json:"seen"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// NewArticle is a listing entry ready to be stored.
type NewArticle struct {
	URL         string
	Source      string
	Title       string
	Lead        string
	Language    string
	ContentHash []byte
	PublishedAt *time.Time
	FetchedAt   time.Time
}

// BodyQuery selects articles still waiting for their body.
type BodyQuery struct {
	Since time.Time
	Limit int
}

// PendingBody is an article whose body has not been fetched yet.
type PendingBody struct {
	ArticleID int64
	URL       string
	Title     string
	Lead      string
	Language  string
}

// BodyUpdate is the result of fetching one article body.
type BodyUpdate struct {
	ArticleID int64
	Status    string
	Body      string
	Lead      string
	Language  string
	Error     string
	FetchedAt time.Time
}

// Store persists fetch runs and articles.
type Store interface {
	StartFetchRun(ctx context.Context, run FetchRun) (int64, error)
	FinishFetchRun(ctx context.Context, runID int64, status FetchStatus, stats SourceStats, errMsg string, finishedAt time.Time) error
	// InsertArticle reports false when an article with the same URL or
	// content hash already exists.
	InsertArticle(ctx context.Context, article NewArticle) (int64, bool, error)
	PendingBodies(ctx context.Context, q BodyQuery) ([]PendingBody, error)
	SaveBody(ctx context.Context, update BodyUpdate) error
}
