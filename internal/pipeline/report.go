package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/elastic-upload/internal/bulk"
)

// Reporter receives user-facing progress.
type Reporter interface {
	Started(index string, batchSize int)
	Batch(out bulk.Outcome)
	Finished(sum Summary)
}

// ConsoleReporter writes progress lines to W.
type ConsoleReporter struct {
	W io.Writer
}

func (c ConsoleReporter) Started(index string, batchSize int) {
	fmt.Fprintf(c.W, "Uploading to index %q in batches of %d\n", index, batchSize)
}

func (c ConsoleReporter) Batch(out bulk.Outcome) {
	if out.Kind != bulk.Partial {
		fmt.Fprintf(c.W, "Batch %d: indexed %d records\n", out.Batch, out.Indexed)
		return
	}
	fmt.Fprintf(c.W, "Batch %d: indexed %d of %d records, %d failed\n",
		out.Batch, out.Indexed, out.Records, len(out.Failures))
	for _, f := range out.Failures {
		fmt.Fprintf(c.W, "  %s\n", f)
	}
}

func (c ConsoleReporter) Finished(sum Summary) {
	fmt.Fprintln(c.W)
	fmt.Fprintln(c.W, " --- Upload complete --- ")
	fmt.Fprintf(c.W, "Batches: %d, records: %d, indexed: %d, failed: %d, took %s\n",
		sum.Batches, sum.Records, sum.Indexed, sum.Failed, sum.Duration.Round(time.Millisecond))
}

type nopReporter struct{}

func (nopReporter) Started(string, int) {}
func (nopReporter) Batch(bulk.Outcome)  {}
func (nopReporter) Finished(Summary)    {}
