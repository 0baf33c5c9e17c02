// Package history persists a record of each backup/restore run to a local
// SQLite database so `coldvault history` can list past activity.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded backup or restore invocation.
type Run struct {
	ID            int64
	Operation     string // "backup" or "restore"
	Source        string
	Target        string
	StartedAt     time.Time
	FinishedAt    time.Time
	FilesTotal    int
	FilesUploaded int
	FilesFailed   int
	TotalBytes    int64
	Daemon        bool
	Error         string
}

// Store owns the SQLite database backing run history.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if absent and
// migrates the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	operation TEXT NOT NULL,
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	files_total INTEGER NOT NULL DEFAULT 0,
	files_uploaded INTEGER NOT NULL DEFAULT 0,
	files_failed INTEGER NOT NULL DEFAULT 0,
	total_bytes INTEGER NOT NULL DEFAULT 0,
	daemon INTEGER NOT NULL DEFAULT 0,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Record inserts one completed run and returns its assigned ID.
func (s *Store) Record(ctx context.Context, run Run) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (operation, source, target, started_at, finished_at, files_total, files_uploaded, files_failed, total_bytes, daemon, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Operation, run.Source, run.Target,
		run.StartedAt.Unix(), run.FinishedAt.Unix(),
		run.FilesTotal, run.FilesUploaded, run.FilesFailed, run.TotalBytes,
		boolToInt(run.Daemon), run.Error,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Recent returns up to limit runs, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, source, target, started_at, finished_at, files_total, files_uploaded, files_failed, total_bytes, daemon, error
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedUnix, finishedUnix int64
		var daemonInt int
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &r.Operation, &r.Source, &r.Target, &startedUnix, &finishedUnix,
			&r.FilesTotal, &r.FilesUploaded, &r.FilesFailed, &r.TotalBytes, &daemonInt, &errText); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(startedUnix, 0).UTC()
		r.FinishedAt = time.Unix(finishedUnix, 0).UTC()
		r.Daemon = daemonInt != 0
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DefaultPath returns the history database's default location under a
// config/cache directory.
func DefaultPath(configDir string) string {
	return filepath.Join(configDir, "history.db")
}
