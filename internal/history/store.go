// Package history persists run outcomes in a local SQLite database so past
// pipeline runs can be inspected after the fact.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/reqsite/internal/pipeline"
)

// Record is one persisted run summary.
type Record struct {
	RunID          string    `json:"run_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Outcome        string    `json:"outcome"`
	FilesStaged    int       `json:"files_staged"`
	FilesPublished int       `json:"files_published"`
	DestinationsOK int       `json:"destinations_ok"`
	DestinationsKO int       `json:"destinations_failed"`
	Errors         []string  `json:"errors,omitempty"`
	Warnings       []string  `json:"warnings,omitempty"`
}

// Store wraps the SQLite handle. Use ":memory:" for tests, or a file path
// for persistent storage.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates the database file (including parent directories) if needed
// and ensures the schema exists.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("ensure history directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		start INTEGER NOT NULL,
		end INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		files_staged INTEGER NOT NULL,
		files_published INTEGER NOT NULL,
		destinations_ok INTEGER NOT NULL,
		destinations_failed INTEGER NOT NULL,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_start ON runs(start);
	CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runDetail holds the variable-length parts of a record, stored as JSON.
type runDetail struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// RecordRun stores the summary of a finished pipeline run.
func (s *Store) RecordRun(ctx context.Context, report *pipeline.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := recordFromReport(report)
	detailJSON, err := json.Marshal(runDetail{Errors: rec.Errors, Warnings: rec.Warnings})
	if err != nil {
		return fmt.Errorf("marshal run detail: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, start, end, outcome, files_staged, files_published, destinations_ok, destinations_failed, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Start.Unix(), rec.End.Unix(), rec.Outcome,
		rec.FilesStaged, rec.FilesPublished, rec.DestinationsOK, rec.DestinationsKO, detailJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first. A non-positive limit
// defaults to 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, start, end, outcome, files_staged, files_published, destinations_ok, destinations_failed, detail
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var startUnix, endUnix int64
		var detailJSON []byte

		err := rows.Scan(&r.RunID, &startUnix, &endUnix, &r.Outcome,
			&r.FilesStaged, &r.FilesPublished, &r.DestinationsOK, &r.DestinationsKO, &detailJSON)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		r.Start = time.Unix(startUnix, 0)
		r.End = time.Unix(endUnix, 0)

		if len(detailJSON) > 0 {
			var detail runDetail
			if err := json.Unmarshal(detailJSON, &detail); err != nil {
				return nil, fmt.Errorf("unmarshal run detail: %w", err)
			}
			r.Errors = detail.Errors
			r.Warnings = detail.Warnings
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func recordFromReport(report *pipeline.RunReport) Record {
	rec := Record{
		RunID:          report.RunID,
		Start:          report.Start,
		End:            report.End,
		Outcome:        string(report.Outcome),
		FilesStaged:    report.FilesStaged,
		FilesPublished: report.FilesPublished,
	}
	for _, d := range report.Destinations {
		if d.OK {
			rec.DestinationsOK++
		} else {
			rec.DestinationsKO++
		}
	}
	for _, e := range report.Errors {
		rec.Errors = append(rec.Errors, e.Error())
	}
	for _, w := range report.Warnings {
		rec.Warnings = append(rec.Warnings, w.Error())
	}
	return rec
}
