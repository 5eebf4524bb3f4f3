// Package batch groups a record stream into fixed-size batches.
//
// Records are pulled on demand, so at most one batch is held in memory.
// Every batch holds exactly the configured number of records except the
// last, which may be shorter. An empty stream produces no batches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/elastic-upload/internal/fault"
	"github.com/JonMunkholm/elastic-upload/internal/record"
)

// Source yields records until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (record.Record, error)
}

// Batch is an ordered group of records with its 0-based position in the stream.
type Batch struct {
	Index   int
	Records []record.Record
}

// Len returns the number of records in the batch.
func (b Batch) Len() int { return len(b.Records) }

// Batcher regroups a Source into batches of a fixed size.
type Batcher struct {
	src  Source
	size int
	next int
	done bool
}

// New returns a Batcher over src. size must be positive.
func New(src Source, size int) (*Batcher, error) {
	if size <= 0 {
		return nil, fault.Config("batch size", fmt.Errorf("batch size must be positive, got %d", size))
	}
	return &Batcher{src: src, size: size}, nil
}

// Size returns the configured batch size.
func (b *Batcher) Size() int { return b.size }

// Next pulls up to Size records and returns them as the next batch. It
// returns io.EOF once the source is exhausted and no records are pending.
// A source error is returned as is and ends the stream.
func (b *Batcher) Next(ctx context.Context) (Batch, error) {
	if b.done {
		return Batch{}, io.EOF
	}

	records := make([]record.Record, 0, b.size)
	for len(records) < b.size {
		rec, err := b.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			b.done = true
			break
		}
		if err != nil {
			b.done = true
			return Batch{}, err
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return Batch{}, io.EOF
	}

	out := Batch{Index: b.next, Records: records}
	b.next++
	return out, nil
}

// Collect drains src into batches. Intended for small inputs and tests.
func Collect(ctx context.Context, src Source, size int) ([]Batch, error) {
	b, err := New(src, size)
	if err != nil {
		return nil, err
	}

	var out []Batch
	for {
		bt, err := b.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, bt)
	}
}
