// Package pipeline drives one upload run: it pulls batches from a record
// source and submits them one at a time.
//
// Batches are strictly sequential. Batch N+1 is not pulled until the upload
// of batch N has returned, and the context is checked before every pull and
// every upload so a cancelled run never submits another batch. Partial
// failures are reported and the run continues; any other error ends it.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/elastic-upload/internal/batch"
	"github.com/JonMunkholm/elastic-upload/internal/bulk"
	"github.com/JonMunkholm/elastic-upload/internal/history"
	"github.com/JonMunkholm/elastic-upload/internal/logging"
	"github.com/JonMunkholm/elastic-upload/internal/metrics"
)

// Uploader submits one batch. *bulk.Uploader implements it.
type Uploader interface {
	Upload(ctx context.Context, b batch.Batch, index string) (bulk.Outcome, error)
}

// Summary totals a run, complete or not.
type Summary struct {
	Batches  int
	Records  int
	Indexed  int
	Failed   int
	Duration time.Duration
}

// Totals converts the summary for the run history.
func (s Summary) Totals() history.Totals {
	return history.Totals(s)
}

// Runner wires the stages of a run. Uploader is required; the other
// fields are optional.
type Runner struct {
	Uploader Uploader
	Reporter Reporter
	Metrics  *metrics.Metrics
	History  history.Recorder
	Logger   *slog.Logger

	// RunID and File identify the run in the history.
	RunID uuid.UUID
	File  string
}

// Run uploads every record of src to index in batches of size.
func (r *Runner) Run(ctx context.Context, src batch.Source, index string, size int) (sum Summary, err error) {
	batcher, err := batch.New(src, size)
	if err != nil {
		return Summary{}, err
	}

	logger := r.Logger
	if logger == nil {
		logger = logging.Component(ctx, "pipeline")
	}
	recorder := r.History
	if recorder == nil {
		recorder = history.Nop{}
	}
	reporter := r.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}

	start := time.Now()
	if herr := recorder.Start(ctx, history.Run{
		ID: r.RunID, File: r.File, Index: index, BatchSize: size, StartedAt: start,
	}); herr != nil {
		logger.Warn("run history unavailable", "error", herr)
	}
	defer func() {
		sum.Duration = time.Since(start)
		// the run context may be cancelled; the final row is still written
		if herr := recorder.Finish(context.WithoutCancel(ctx), r.RunID, sum.Totals(), err); herr != nil {
			logger.Warn("failed to record run result", "error", herr)
		}
	}()

	reporter.Started(index, size)
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		b, err := batcher.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}
		sum.Records += b.Len()
		if r.Metrics != nil {
			r.Metrics.ObserveRecords(b.Len())
		}

		if err := ctx.Err(); err != nil {
			return sum, err
		}

		logger.Debug("uploading batch", "batch", b.Index, "records", b.Len())
		out, err := r.Uploader.Upload(ctx, b, index)
		if err != nil {
			if r.Metrics != nil {
				r.Metrics.ObserveError()
			}
			logger.Error("batch upload failed", "batch", b.Index, "error", err)
			return sum, err
		}

		sum.Batches++
		sum.Indexed += out.Indexed
		sum.Failed += len(out.Failures)
		if r.Metrics != nil {
			r.Metrics.ObserveOutcome(out)
		}
		if out.Kind == bulk.Partial {
			logger.Warn("batch partially failed", "batch", out.Batch, "failed", len(out.Failures))
		}
		reporter.Batch(out)

		if herr := recorder.Batch(ctx, r.RunID, out); herr != nil {
			logger.Warn("failed to record batch", "batch", out.Batch, "error", herr)
		}
	}

	sum.Duration = time.Since(start)
	reporter.Finished(sum)
	return sum, nil
}
