// Package history keeps an audit trail of upload runs in PostgreSQL.
//
// Each run gets one row in upload_runs, updated as batches complete, and
// every rejected record is copied into upload_item_failures with its
// document. The trail is write-only: nothing reads it back to skip or
// resume batches.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/elastic-upload/internal/bulk"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run describes an upload run as it starts.
type Run struct {
	ID        uuid.UUID
	File      string
	Index     string
	BatchSize int
	StartedAt time.Time
}

// Totals are the final counters of a run.
type Totals struct {
	Batches  int
	Records  int
	Indexed  int
	Failed   int
	Duration time.Duration
}

// Recorder receives run lifecycle events.
type Recorder interface {
	Start(ctx context.Context, run Run) error
	Batch(ctx context.Context, runID uuid.UUID, out bulk.Outcome) error
	Finish(ctx context.Context, runID uuid.UUID, totals Totals, runErr error) error
}

// Nop is a Recorder that records nothing.
type Nop struct{}

func (Nop) Start(context.Context, Run) error { return nil }
func (Nop) Batch(context.Context, uuid.UUID, bulk.Outcome) error { return nil }
func (Nop) Finish(context.Context, uuid.UUID, Totals, error) error { return nil }
