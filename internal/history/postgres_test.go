package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/elastic-upload/internal/bulk"
	"github.com/JonMunkholm/elastic-upload/internal/fault"
	"github.com/JonMunkholm/elastic-upload/internal/record"
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB records statements and drains COPY sources.
type fakeDB struct {
	execs   []execCall
	copied  [][]any
	table   pgx.Identifier
	columns []string
	execErr error
	copyErr error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("UPDATE 1"), f.execErr
}

func (f *fakeDB) CopyFrom(_ context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	f.table, f.columns = table, cols
	var n int64
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return n, err
		}
		f.copied = append(f.copied, vals)
		n++
	}
	return n, src.Err()
}

func fixedClock(p *Postgres) time.Time {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return ts }
	return ts
}

func TestPostgres_Start(t *testing.T) {
	db := &fakeDB{}
	p := NewPostgres(db)
	ts := fixedClock(p)
	id := uuid.New()

	if err := p.Start(context.Background(), Run{ID: id, File: "people.csv", Index: "people", BatchSize: 100}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("got %d statements, want 1", len(db.execs))
	}
	call := db.execs[0]
	if !strings.Contains(call.sql, "INSERT INTO upload_runs") {
		t.Errorf("sql = %q", call.sql)
	}
	want := []any{id, "people.csv", "people", 100, StatusRunning, ts}
	for i := range want {
		if call.args[i] != want[i] {
			t.Errorf("arg %d = %v, want %v", i, call.args[i], want[i])
		}
	}
}

func TestPostgres_BatchCopiesFailures(t *testing.T) {
	db := &fakeDB{}
	p := NewPostgres(db)
	id := uuid.New()

	out := bulk.Outcome{
		Batch:   3,
		Kind:    bulk.Partial,
		Records: 3,
		Indexed: 1,
		Failures: []bulk.ItemFailure{
			{Position: 0, Record: record.New([]string{"id"}, []string{"x"}), Status: 400, Type: "mapper_parsing_exception", Reason: "bad"},
			{Position: 2, Record: record.New([]string{"id"}, []string{"y"}), Status: 429, Type: "es_rejected_execution_exception"},
		},
	}

	if err := p.Batch(context.Background(), id, out); err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0].sql, "UPDATE upload_runs") {
		t.Fatalf("execs = %v", db.execs)
	}
	if got := db.execs[0].args[3]; got != 2 {
		t.Errorf("failed increment = %v, want 2", got)
	}

	if len(db.table) != 1 || db.table[0] != "upload_item_failures" {
		t.Errorf("copy table = %v", db.table)
	}
	if len(db.copied) != 2 {
		t.Fatalf("copied %d rows, want 2", len(db.copied))
	}
	row := db.copied[1]
	if row[0] != id || row[1] != 3 || row[2] != 2 || row[3] != 429 {
		t.Errorf("row = %v", row)
	}
	if doc := string(row[7].([]byte)); doc != `{"id":"y"}` {
		t.Errorf("document = %s", doc)
	}
}

func TestPostgres_BatchWithoutFailuresSkipsCopy(t *testing.T) {
	db := &fakeDB{}
	p := NewPostgres(db)

	if err := p.Batch(context.Background(), uuid.New(), bulk.Outcome{Kind: bulk.Success, Records: 5, Indexed: 5}); err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if db.copied != nil {
		t.Errorf("copied %v, want nothing", db.copied)
	}
}

func TestPostgres_Finish(t *testing.T) {
	tests := []struct {
		name       string
		runErr     error
		wantStatus string
		wantMsg    bool
	}{
		{"success", nil, StatusSucceeded, false},
		{"transport failure", fault.Transport("bulk request", errors.New("status 401")), StatusFailed, true},
		{"cancelled", context.Canceled, StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{}
			p := NewPostgres(db)
			fixedClock(p)

			totals := Totals{Batches: 2, Records: 15, Indexed: 14, Failed: 1}
			if err := p.Finish(context.Background(), uuid.New(), totals, tt.runErr); err != nil {
				t.Fatalf("Finish() error = %v", err)
			}
			args := db.execs[0].args
			if args[1] != tt.wantStatus {
				t.Errorf("status = %v, want %v", args[1], tt.wantStatus)
			}
			if msg := args[6].(*string); (msg != nil) != tt.wantMsg {
				t.Errorf("error message set = %v, want %v", msg != nil, tt.wantMsg)
			}
		})
	}
}

func TestPostgres_Errors(t *testing.T) {
	boom := errors.New("boom")

	p := NewPostgres(&fakeDB{execErr: boom})
	if err := p.Start(context.Background(), Run{ID: uuid.New()}); !errors.Is(err, boom) {
		t.Errorf("Start() error = %v, want boom", err)
	}
	if err := p.EnsureSchema(context.Background()); !fault.Is(err, fault.KindConstruction) {
		t.Errorf("EnsureSchema() error = %v, want construction error", err)
	}

	p = NewPostgres(&fakeDB{copyErr: boom})
	out := bulk.Outcome{Failures: []bulk.ItemFailure{{Record: record.New(nil, nil)}}}
	if err := p.Batch(context.Background(), uuid.New(), out); !errors.Is(err, boom) {
		t.Errorf("Batch() error = %v, want boom", err)
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz")
	if !fault.Is(err, fault.KindConfig) {
		t.Errorf("Open() error = %v, want config error", err)
	}
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	ctx := context.Background()
	if r.Start(ctx, Run{}) != nil || r.Batch(ctx, uuid.Nil, bulk.Outcome{}) != nil || r.Finish(ctx, uuid.Nil, Totals{}, nil) != nil {
		t.Error("Nop returned an error")
	}
}
