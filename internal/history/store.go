package history

import (
	"context"
	"fmt"
	"time"

	"github.com/mailmind-app/mailmind-be/shared/postgresql"
)

// Record is one archived terminal job outcome, backing the dashboard's
// history view.
type Record struct {
	JobID      string    `db:"job_id" json:"job_id"`
	Kind       string    `db:"kind" json:"kind"`
	Priority   string    `db:"priority" json:"priority"`
	Status     string    `db:"status" json:"status"`
	Attempts   int       `db:"attempts" json:"attempts"`
	Result     []byte    `db:"result" json:"result,omitempty"`
	Error      string    `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
}

// Store persists terminal job outcomes to Postgres.
type Store struct {
	pg *postgresql.Client
}

// NewStore creates a history store over the shared Postgres client.
func NewStore(pg *postgresql.Client) *Store {
	return &Store{pg: pg}
}

// Insert archives one terminal outcome.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO job_history (
			job_id, kind, priority, status,
			attempts, result, error, created_at, finished_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		)
		ON CONFLICT (job_id) DO NOTHING
	`

	err := s.pg.ExecContext(
		ctx,
		query,
		rec.JobID,
		rec.Kind,
		rec.Priority,
		rec.Status,
		rec.Attempts,
		rec.Result,
		rec.Error,
		rec.CreatedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	return nil
}

// Filter narrows a history listing.
type Filter struct {
	Kind     string
	Status   string
	PageSize int
	Cursor   *Cursor
}

// Cursor is the keyset position for history pagination, ordered by
// (finished_at, job_id) descending.
type Cursor struct {
	FinishedAt time.Time
	JobID      string
}

// List returns up to PageSize+1 records so the caller can detect whether a
// next page exists.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := `
		SELECT
			job_id, kind, priority, status,
			attempts, result, error, created_at, finished_at
		FROM job_history
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (finished_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.FinishedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY finished_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var records []Record
	if err := s.pg.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	return records, nil
}
