// Package profile records task execution spans in SQLite for later analysis.
package profile

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists runs and spans.
type Store struct {
	db *sql.DB
}

// Open creates or opens a profile database at dbPath.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr, err := fileDSN(dbPath)
	if err != nil {
		return nil, err
	}
	return open(ctx, connStr)
}

// fileDSN builds a file: URI for dbPath with the store pragmas. The path is
// made absolute and escaped so '?' and '#' stay part of the file name.
func fileDSN(dbPath string) (string, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}

	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
	}
	return u.String(), nil
}

// OpenMemory creates a private in-memory store, mainly for tests.
func OpenMemory(ctx context.Context) (*Store, error) {
	// Each store gets its own named database so parallel tests don't share state
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*Store, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; span inserts are short and workers queue on the pool
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
