package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Span kinds.
const (
	KindTask  = "task"  // one execution of a task body
	KindScope = "scope" // labelled region inside a body
)

// Span statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one scheduler execution.
type Run struct {
	ID         string
	Name       string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is open
}

// Span is a timed region attributed to a task.
type Span struct {
	RunID    string
	TaskID   string
	Kind     string
	Name     string
	Start    time.Time
	Duration time.Duration
	Status   string
	Error    string
}

// SummaryRow aggregates spans sharing a kind and name.
type SummaryRow struct {
	Kind   string
	Name   string
	Count  int
	Failed int
	Total  time.Duration
}

// Mean returns the average span duration.
func (r SummaryRow) Mean() time.Duration {
	if r.Count == 0 {
		return 0
	}
	return r.Total / time.Duration(r.Count)
}

// StartRun opens a new run and returns its ID.
func (s *Store) StartRun(ctx context.Context, name string, at time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, started_at) VALUES (?, ?, ?)
	`, id, name, at.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's finish time.
func (s *Store) FinishRun(ctx context.Context, runID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ? WHERE id = ?
	`, at.UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, started_at, finished_at FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &run.Name, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}

	run.StartedAt = time.Unix(0, started)
	if finished.Valid {
		run.FinishedAt = time.Unix(0, finished.Int64)
	}
	return run, nil
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, started_at, finished_at FROM runs ORDER BY started_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&run.ID, &run.Name, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = time.Unix(0, started)
		if finished.Valid {
			run.FinishedAt = time.Unix(0, finished.Int64)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// InsertSpan stores one span. The run must exist.
func (s *Store) InsertSpan(ctx context.Context, span Span) error {
	var errStr sql.NullString
	if span.Error != "" {
		errStr = sql.NullString{String: span.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spans (run_id, task_id, kind, name, started_at, duration_ns, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, span.RunID, span.TaskID, span.Kind, span.Name, span.Start.UnixNano(), int64(span.Duration), span.Status, errStr)
	if err != nil {
		return fmt.Errorf("failed to insert span %s/%s: %w", span.Kind, span.Name, err)
	}
	return nil
}

// Spans lists a run's spans in start order.
func (s *Store) Spans(ctx context.Context, runID string) ([]Span, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, kind, name, started_at, duration_ns, status, COALESCE(error, '')
		FROM spans
		WHERE run_id = ?
		ORDER BY started_at, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query spans: %w", err)
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var (
			span     Span
			started  int64
			duration int64
		)
		if err := rows.Scan(&span.RunID, &span.TaskID, &span.Kind, &span.Name, &started, &duration, &span.Status, &span.Error); err != nil {
			return nil, fmt.Errorf("failed to scan span: %w", err)
		}
		span.Start = time.Unix(0, started)
		span.Duration = time.Duration(duration)
		spans = append(spans, span)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spans: %w", err)
	}
	return spans, nil
}

// Summary aggregates a run's spans per kind and name, ordered by total time
// descending.
func (s *Store) Summary(ctx context.Context, runID string) ([]SummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, name, COUNT(*), SUM(CASE WHEN status = ? THEN 0 ELSE 1 END), SUM(duration_ns)
		FROM spans
		WHERE run_id = ?
		GROUP BY kind, name
		ORDER BY SUM(duration_ns) DESC, kind, name
	`, StatusOK, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var (
			row   SummaryRow
			total int64
		)
		if err := rows.Scan(&row.Kind, &row.Name, &row.Count, &row.Failed, &total); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		row.Total = time.Duration(total)
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary: %w", err)
	}
	return out, nil
}
