// Package history stores upload outcomes in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// schemaVersion is incremented when the uploads table changes.
// An older table is dropped and recreated.
const schemaVersion = 1

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 50

// Store is a SQLite-backed ports.HistoryStore.
type Store struct {
	db   *sql.DB
	path string
}

var _ ports.HistoryStore = (*Store)(nil)

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One connection keeps writes from separate goroutines serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: enable WAL: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return err
	}

	var current int
	err := db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&current)
	if err == nil && current < schemaVersion {
		log.Info().
			Int("old_version", current).
			Int("new_version", schemaVersion).
			Msg("history schema changed, recreating uploads table")
		_, _ = db.Exec("DROP TABLE IF EXISTS uploads")
	}

	schema := `
		CREATE TABLE IF NOT EXISTS uploads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			path TEXT NOT NULL,
			file_name TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			finished_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_uploads_finished_at ON uploads(finished_at DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	_, err = db.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)", schemaVersion)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record inserts one upload outcome.
func (s *Store) Record(ctx context.Context, rec domain.UploadRecord) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads (session_id, path, file_name, size, outcome, error_kind, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.Path,
		rec.FileName,
		rec.Size,
		string(rec.Outcome),
		string(rec.ErrorKind),
		rec.Error,
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", rec.Path, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.UploadRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, path, file_name, size, outcome, error_kind, error, finished_at
		FROM uploads
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]domain.UploadRecord, 0, limit)
	for rows.Next() {
		var (
			rec      domain.UploadRecord
			outcome  string
			kind     string
			finished string
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Path, &rec.FileName, &rec.Size,
			&outcome, &kind, &rec.Error, &finished); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		rec.Outcome = domain.UploadOutcome(outcome)
		rec.ErrorKind = domain.ErrorKind(kind)
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM uploads").Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
