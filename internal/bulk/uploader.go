// Package bulk submits record batches to a search cluster through the
// _bulk API.
//
// A batch ends in one of three ways:
//
//   - every item indexed: an Outcome of kind Success
//   - some items rejected: an Outcome of kind Partial listing each ItemFailure
//   - the request itself failed: a transport error, which ends the run
//
// Item failures are data, not errors. They are reported and the run goes on.
package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/elastic/go-elasticsearch/v7/esutil"

	"github.com/JonMunkholm/elastic-upload/internal/batch"
	"github.com/JonMunkholm/elastic-upload/internal/fault"
	"github.com/JonMunkholm/elastic-upload/internal/record"
)

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 4 << 10

// Kind classifies the outcome of a batch upload.
type Kind int

const (
	Success Kind = iota
	Partial
)

func (k Kind) String() string {
	if k == Partial {
		return "partial"
	}
	return "success"
}

// ItemFailure is one record the cluster rejected.
type ItemFailure struct {
	Position int // 0-based position within the batch
	Record   record.Record
	Status   int
	Type     string
	Reason   string
	CausedBy string
}

func (f ItemFailure) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "item %d: status %d", f.Position, f.Status)
	if f.Type != "" {
		fmt.Fprintf(&b, " %s", f.Type)
	}
	if f.Reason != "" {
		fmt.Fprintf(&b, ": %s", f.Reason)
	}
	if f.CausedBy != "" {
		fmt.Fprintf(&b, " (caused by: %s)", f.CausedBy)
	}
	return b.String()
}

// Outcome is the result of one accepted bulk request.
type Outcome struct {
	Batch    int // batch index
	Kind     Kind
	Records  int
	Indexed  int
	Failures []ItemFailure
	Took     time.Duration
}

// Uploader sends batches over an esapi.Transport, normally an
// *elasticsearch.Client.
type Uploader struct {
	transport esapi.Transport
	now       func() time.Time
}

// New returns an Uploader that performs requests with transport.
func New(transport esapi.Transport) *Uploader {
	return &Uploader{transport: transport, now: time.Now}
}

// Upload indexes every record of b into index with a single bulk request.
func (u *Uploader) Upload(ctx context.Context, b batch.Batch, index string) (Outcome, error) {
	body, err := encode(b.Records, index)
	if err != nil {
		return Outcome{}, fault.Construction("encode batch", err)
	}

	start := u.now()
	res, err := esapi.BulkRequest{Body: body}.Do(ctx, u.transport)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, fault.Transport("bulk request", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return Outcome{}, fault.Newf(fault.KindTransport, "bulk request",
			"status %d: %s", res.StatusCode, errorDetail(detail))
	}

	var parsed esutil.BulkIndexerResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return Outcome{}, fault.Newf(fault.KindTransport, "bulk request", "decode bulk response: %v", err)
	}
	if len(parsed.Items) != b.Len() {
		return Outcome{}, fault.Newf(fault.KindTransport, "bulk request",
			"bulk response has %d items for %d records", len(parsed.Items), b.Len())
	}

	out := Outcome{Batch: b.Index, Kind: Success, Records: b.Len(), Took: u.now().Sub(start)}
	for i, item := range parsed.Items {
		for _, info := range item {
			if info.Status < 300 && info.Error.Type == "" {
				out.Indexed++
				continue
			}
			out.Failures = append(out.Failures, ItemFailure{
				Position: i,
				Record:   b.Records[i],
				Status:   info.Status,
				Type:     info.Error.Type,
				Reason:   info.Error.Reason,
				CausedBy: causedBy(info.Error.Cause.Type, info.Error.Cause.Reason),
			})
		}
	}
	if len(out.Failures) > 0 {
		out.Kind = Partial
	}
	return out, nil
}

// encode builds the NDJSON body: an index action followed by the document
// for every record.
func encode(records []record.Record, index string) (*bytes.Buffer, error) {
	meta, err := json.Marshal(map[string]map[string]string{"index": {"_index": index}})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, rec := range records {
		doc, err := rec.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Grow(len(meta) + len(doc) + 2)
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}
	return &buf, nil
}

// errorDetail extracts "type: reason" from a cluster error body, falling
// back to the raw text.
func errorDetail(body []byte) string {
	var e struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Type != "" {
		return e.Error.Type + ": " + e.Error.Reason
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response body"
	}
	return text
}

func causedBy(typ, reason string) string {
	switch {
	case typ == "":
		return reason
	case reason == "":
		return typ
	}
	return typ + ": " + reason
}
