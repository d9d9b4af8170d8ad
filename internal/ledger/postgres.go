package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var ErrDuplicateJob = errors.New("render job already recorded")

// Execer is the subset of *pgxpool.Pool used by PostgresRecorder.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS render_jobs (
		job_id          TEXT PRIMARY KEY,
		outcome         TEXT NOT NULL,
		markup_bytes    INTEGER NOT NULL,
		compile_ms      BIGINT NOT NULL,
		total_ms        BIGINT NOT NULL,
		error           TEXT,
		started_at      TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// PostgresRecorder stores one row per job in render_jobs.
type PostgresRecorder struct {
	db Execer
}

func NewPostgresRecorder(db Execer) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// EnsureSchema creates render_jobs when it does not exist.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating render_jobs: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Record(ctx context.Context, e Entry) error {
	var errText *string
	if e.Error != "" {
		errText = &e.Error
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO render_jobs (job_id, outcome, markup_bytes, compile_ms, total_ms, error, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, e.JobID, e.Outcome, e.MarkupBytes, e.CompileDuration.Milliseconds(), e.TotalDuration.Milliseconds(), errText, e.StartedAt)

	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateJob
		}
		if IsUndefinedTable(err) {
			return fmt.Errorf("render_jobs missing, run EnsureSchema: %w", err)
		}
		return err
	}
	return nil
}
