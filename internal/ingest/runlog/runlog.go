// Package runlog records ingestion runs in Postgres so operators can see
// when the catalog was last loaded and how it went.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "completed_with_failures"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id          UUID PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status      TEXT NOT NULL,
	options     JSONB,
	summary     JSONB,
	error       TEXT
)`

const (
	insertRunSQL = `INSERT INTO ingest_runs (id, started_at, status, options) VALUES ($1, $2, $3, $4)`
	finishRunSQL = `UPDATE ingest_runs SET finished_at = $2, status = $3, summary = $4, error = $5 WHERE id = $1`
	recentRunSQL = `SELECT id, started_at, finished_at, status, summary, error FROM ingest_runs ORDER BY started_at DESC LIMIT $1`
)

// Run is one row of the ledger.
type Run struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Status     string          `json:"status"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type Ledger struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func New(db *sql.DB, log logger.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "runlog"}),
		now:    time.Now,
	}
}

// EnsureSchema creates the table when it is missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schemaSQL); err != nil {
		return apperrors.NewQueryExecutionFailedError("create_ingest_runs", err)
	}
	return nil
}

// Start inserts a running row and returns its id.
func (l *Ledger) Start(ctx context.Context, options interface{}) (string, error) {
	opts, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("encode run options: %w", err)
	}
	id := uuid.New().String()
	if _, err := l.db.ExecContext(ctx, insertRunSQL, id, l.now().UTC(), StatusRunning, opts); err != nil {
		return "", apperrors.NewQueryExecutionFailedError("insert_ingest_run", err)
	}
	l.logger.Debug("run recorded", map[string]interface{}{"runId": id})
	return id, nil
}

// Finish closes a run. runErr may be nil.
func (l *Ledger) Finish(ctx context.Context, id, status string, summary interface{}, runErr error) error {
	sum, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := l.db.ExecContext(ctx, finishRunSQL, id, l.now().UTC(), status, sum, errText)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("finish_ingest_run", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewQueryExecutionFailedError("finish_ingest_run", fmt.Errorf("run %s not found", id))
	}
	return nil
}

// Recent returns the newest runs first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx, recentRunSQL, limit)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("recent_ingest_runs", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
			summary  []byte
			errText  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &summary, &errText); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("recent_ingest_runs", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		if len(summary) > 0 {
			r.Summary = json.RawMessage(summary)
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("recent_ingest_runs", err)
	}
	return runs, nil
}

// Last returns the newest run, or nil when none is recorded.
func (l *Ledger) Last(ctx context.Context) (*Run, error) {
	runs, err := l.Recent(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}
