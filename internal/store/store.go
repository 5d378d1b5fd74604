// Package store keeps webform's local state in SQLite: the driver versions
// the driver manager resolved, and the history of scenario runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Run outcomes.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Store wraps the SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path, creating its directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, path: path}
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS driver_resolutions (
		driver TEXT NOT NULL,
		browser_major INTEGER NOT NULL,
		version TEXT NOT NULL,
		path TEXT NOT NULL,
		resolved_at TEXT NOT NULL,
		PRIMARY KEY (driver, browser_major)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		backend TEXT NOT NULL,
		browser TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		message TEXT,
		status TEXT NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Resolution records which driver version serves a browser major version,
// and where it was unpacked.
type Resolution struct {
	Driver       string
	BrowserMajor int
	Version      string
	Path         string
	ResolvedAt   time.Time
}

// PutResolution inserts or replaces the resolution for its driver and
// browser major version.
func (s *Store) PutResolution(ctx context.Context, r Resolution) error {
	query := `
	INSERT INTO driver_resolutions (driver, browser_major, version, path, resolved_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(driver, browser_major) DO UPDATE SET
		version = excluded.version,
		path = excluded.path,
		resolved_at = excluded.resolved_at
	`
	if _, err := s.db.ExecContext(ctx, query, r.Driver, r.BrowserMajor, r.Version, r.Path, formatTime(r.ResolvedAt)); err != nil {
		return fmt.Errorf("failed to store resolution: %w", err)
	}
	return nil
}

// Resolution returns the stored resolution, or nil if there is none.
func (s *Store) Resolution(ctx context.Context, driver string, browserMajor int) (*Resolution, error) {
	query := `
	SELECT driver, browser_major, version, path, resolved_at
	FROM driver_resolutions
	WHERE driver = ? AND browser_major = ?
	`
	var r Resolution
	var resolvedAt string
	err := s.db.QueryRowContext(ctx, query, driver, browserMajor).Scan(
		&r.Driver,
		&r.BrowserMajor,
		&r.Version,
		&r.Path,
		&resolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution: %w", err)
	}
	r.ResolvedAt = parseTime(resolvedAt)
	return &r, nil
}

// Run is one execution of the scenario.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Backend    string
	Browser    string
	URL        string
	Title      string
	Message    string
	Status     string
	Error      string
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RecordRun stores r and returns its ID.
func (s *Store) RecordRun(ctx context.Context, r *Run) (int64, error) {
	query := `
	INSERT INTO runs (started_at, finished_at, backend, browser, url, title, message, status, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		formatTime(r.StartedAt),
		formatTime(r.FinishedAt),
		r.Backend,
		r.Browser,
		r.URL,
		r.Title,
		r.Message,
		r.Status,
		r.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
	SELECT id, started_at, finished_at, backend, browser, url, title, message, status, error
	FROM runs
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		var title, message, errText sql.NullString
		if err := rows.Scan(&r.ID, &started, &finished, &r.Backend, &r.Browser, &r.URL, &title, &message, &r.Status, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		r.Title = title.String
		r.Message = message.String
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
