package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/elastic-upload/internal/bulk"
	"github.com/JonMunkholm/elastic-upload/internal/fault"
)

// DBTX is the subset of pgx used by Postgres. *pgxpool.Pool, *pgx.Conn
// and pgx.Tx all satisfy it.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS upload_runs (
	id          UUID PRIMARY KEY,
	file        TEXT NOT NULL,
	index_name  TEXT NOT NULL,
	batch_size  INTEGER NOT NULL,
	status      TEXT NOT NULL,
	batches     INTEGER NOT NULL DEFAULT 0,
	records     INTEGER NOT NULL DEFAULT 0,
	indexed     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS upload_item_failures (
	run_id     UUID NOT NULL REFERENCES upload_runs (id) ON DELETE CASCADE,
	batch      INTEGER NOT NULL,
	position   INTEGER NOT NULL,
	status     INTEGER NOT NULL,
	error_type TEXT NOT NULL,
	reason     TEXT NOT NULL,
	caused_by  TEXT NOT NULL,
	document   JSONB NOT NULL,
	PRIMARY KEY (run_id, batch, position)
);
`

var failureColumns = []string{"run_id", "batch", "position", "status", "error_type", "reason", "caused_by", "document"}

// Postgres records runs in PostgreSQL.
type Postgres struct {
	db   DBTX
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres returns a Postgres recorder over db. The schema must exist;
// see EnsureSchema.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Open connects to dsn, verifies the connection and creates the schema.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fault.Config("history database", fmt.Errorf("parse database URL: %w", err))
	}
	poolConfig.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fault.Construction("history database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fault.Construction("history database", fmt.Errorf("ping: %w", err))
	}

	p := NewPostgres(pool)
	p.pool = pool
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the connection pool opened by Open.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// EnsureSchema creates the history tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fault.Construction("history schema", err)
	}
	return nil
}

// Start inserts the run row.
func (p *Postgres) Start(ctx context.Context, run Run) error {
	started := run.StartedAt
	if started.IsZero() {
		started = p.now()
	}
	_, err := p.db.Exec(ctx,
		`INSERT INTO upload_runs (id, file, index_name, batch_size, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.File, run.Index, run.BatchSize, StatusRunning, started)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// Batch adds a batch outcome to the run counters and copies its failures.
func (p *Postgres) Batch(ctx context.Context, runID uuid.UUID, out bulk.Outcome) error {
	_, err := p.db.Exec(ctx,
		`UPDATE upload_runs
		 SET batches = batches + 1, records = records + $2, indexed = indexed + $3, failed = failed + $4
		 WHERE id = $1`,
		runID, out.Records, out.Indexed, len(out.Failures))
	if err != nil {
		return fmt.Errorf("record batch %d: %w", out.Batch, err)
	}

	if len(out.Failures) == 0 {
		return nil
	}

	rows, err := failureRows(runID, out)
	if err != nil {
		return err
	}
	n, err := p.db.CopyFrom(ctx, pgx.Identifier{"upload_item_failures"}, failureColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("record batch %d failures: %w", out.Batch, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("record batch %d failures: copied %d of %d rows", out.Batch, n, len(rows))
	}
	return nil
}

func failureRows(runID uuid.UUID, out bulk.Outcome) ([][]any, error) {
	rows := make([][]any, 0, len(out.Failures))
	for _, f := range out.Failures {
		doc, err := f.Record.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode failed document: %w", err)
		}
		rows = append(rows, []any{
			runID, out.Batch, f.Position, f.Status, f.Type, f.Reason, f.CausedBy, doc,
		})
	}
	return rows, nil
}

// Finish stores the final status and totals of the run.
func (p *Postgres) Finish(ctx context.Context, runID uuid.UUID, totals Totals, runErr error) error {
	status := StatusSucceeded
	var msg *string
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) || fault.KindOf(runErr) == fault.KindCancelled:
		status = StatusCancelled
	default:
		status = StatusFailed
	}
	if runErr != nil {
		s := runErr.Error()
		msg = &s
	}

	_, err := p.db.Exec(ctx,
		`UPDATE upload_runs
		 SET status = $2, batches = $3, records = $4, indexed = $5, failed = $6, error = $7, finished_at = $8
		 WHERE id = $1`,
		runID, status, totals.Batches, totals.Records, totals.Indexed, totals.Failed, msg, p.now())
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}
