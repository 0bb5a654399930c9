package profile

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS spans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_spans_run_kind_name ON spans(run_id, kind, name);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
