// Package pipeline runs the ingestion, enrichment, clustering and routing
// stages in a fixed order and keeps a persistent log of every run.
package pipeline

import (
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"horse.fit/atlas/internal/db"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusFailed
}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StagePartial StageStatus = "partial"
	StageFailed  StageStatus = "failed"
)

// ErrRunNotFound is returned by a RunStore for an unknown run.
var ErrRunNotFound = errors.New("pipeline run not found")

// StageEntry is one line of the run log.
type StageEntry struct {
	Stage     string      `json:"stage"`
	Status    StageStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Output    string      `json:"output"`
}

// Run is one execution of the pipeline over a time window.
type Run struct {
	ID           int64                      `json:"id"`
	UUID         string                     `json:"uuid"`
	Trigger      string                     `json:"trigger"`
	WindowStart  time.Time                  `json:"window_start"`
	WindowEnd    time.Time                  `json:"window_end"`
	Status       Status                     `json:"status"`
	Log          []StageEntry               `json:"log"`
	Stats        map[string]json.RawMessage `json:"stats"`
	ErrorMessage string                     `json:"error_message,omitempty"`
	StartedAt    *time.Time                 `json:"started_at,omitempty"`
	FinishedAt   *time.Time                 `json:"finished_at,omitempty"`
	DryRun       bool                       `json:"dry_run"`
}

// ExitCode maps the final status onto the CLI convention.
func (r Run) ExitCode() int {
	switch r.Status {
	case StatusSuccess:
		return 0
	case StatusPartial:
		return 3
	default:
		return 1
	}
}

// truncateOutput clips stage output to the stored error length on a rune
// boundary.
func truncateOutput(output string) string {
	if len(output) <= db.MaxErrorLength {
		return output
	}
	cut := db.MaxErrorLength
	for cut > 0 && !utf8.RuneStart(output[cut]) {
		cut--
	}
	return output[:cut]
}
