// Package history persists scenario runs and their findings to SQLite.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/epalmerini/soundcheck/internal/xdg"
)

//go:embed schema.sql
var schemaSQL string

// Run is one recorded scenario run.
type Run struct {
	ID       int64
	RunID    string
	Scenario string
	Profile  string
	Started  time.Time
	Finished time.Time
	OK       bool
	Checks   int64
	Failed   int64
}

// Finding is one recorded check outcome.
type Finding struct {
	ID        int64
	RunID     int64
	Subsystem string
	Target    string
	Check     string
	Kind      string
	OK        bool
	Expected  string
	Actual    string
	Detail    string
}

// Store implements run persistence on SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the history database at customPath, falling back to the
// XDG data directory when customPath is empty.
func NewStore(customPath string) (*Store, error) {
	dbPath := customPath
	if dbPath == "" {
		dataDir, err := xdg.Dir("XDG_DATA_HOME", ".local/share")
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dbPath = filepath.Join(dataDir, "history.db")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys and WAL mode for better performance
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to set pragmas: %w", err), db.Close())
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize schema: %w", err), db.Close())
	}

	return &Store{db: db}, nil
}

// SaveRun inserts the run and its findings in one transaction and
// returns the new row id.
func (s *Store) SaveRun(ctx context.Context, run Run, findings []Finding) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	res, err := tx.ExecContext(ctx, `
INSERT INTO runs (run_id, scenario, profile, started_at, finished_at, ok, checks, failed)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Scenario, toNullString(run.Profile),
		run.Started, run.Finished, run.OK, run.Checks, run.Failed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	for i, f := range findings {
		_, err := tx.ExecContext(ctx, `
INSERT INTO findings (run_id, subsystem, target, check_name, kind, ok, expected, actual, detail)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, f.Subsystem, f.Target, f.Check, f.Kind, f.OK,
			toNullString(f.Expected), toNullString(f.Actual), toNullString(f.Detail),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert finding %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(ctx context.Context, limit int64) (_ []Run, err error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, scenario, profile, started_at, finished_at, ok, checks, failed
FROM runs
ORDER BY started_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, rows.Close()) }()

	var runs []Run
	for rows.Next() {
		var r Run
		var profile sql.NullString
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.Scenario, &profile,
			&r.Started, &r.Finished, &r.OK, &r.Checks, &r.Failed,
		); err != nil {
			return nil, err
		}
		r.Profile = profile.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Findings returns the findings of one run in recorded order.
func (s *Store) Findings(ctx context.Context, runID int64) (_ []Finding, err error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, subsystem, target, check_name, kind, ok, expected, actual, detail
FROM findings
WHERE run_id = ?
ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, rows.Close()) }()

	var findings []Finding
	for rows.Next() {
		var f Finding
		var expected, actual, detail sql.NullString
		if err := rows.Scan(
			&f.ID, &f.RunID, &f.Subsystem, &f.Target, &f.Check, &f.Kind, &f.OK,
			&expected, &actual, &detail,
		); err != nil {
			return nil, err
		}
		f.Expected = expected.String
		f.Actual = actual.String
		f.Detail = detail.String
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
