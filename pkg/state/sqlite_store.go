package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	_ "modernc.org/sqlite"
)

const reportSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	company      TEXT NOT NULL,
	iterations   INTEGER NOT NULL,
	plan_count   INTEGER NOT NULL,
	completed_at INTEGER NOT NULL,
	body         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_completed_at ON reports(completed_at DESC);
`

// SQLiteStore archives reports in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc's driver serializes writes; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, reportSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save upserts the report
func (s *SQLiteStore) Save(ctx context.Context, report *domain.ResearchReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("report ID is required")
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, company, iterations, plan_count, completed_at, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company = excluded.company,
			iterations = excluded.iterations,
			plan_count = excluded.plan_count,
			completed_at = excluded.completed_at,
			body = excluded.body`,
		report.ID, report.Target.Name, report.Iterations, len(report.Plans),
		report.CompletedAt.UnixNano(), string(body))
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// Load reads one report
func (s *SQLiteStore) Load(ctx context.Context, id string) (*domain.ResearchReport, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE id = ?`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrReportNotFound, id)
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	return decodeReport([]byte(body))
}

// List returns summaries newest first without decoding report bodies
func (s *SQLiteStore) List(ctx context.Context, opts domain.ListOptions) ([]domain.ReportSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company, iterations, plan_count, completed_at
		FROM reports ORDER BY completed_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var summaries []domain.ReportSummary
	for rows.Next() {
		var (
			sum       domain.ReportSummary
			completed int64
		)
		if err := rows.Scan(&sum.ID, &sum.Company, &sum.Iterations, &sum.PlanCount, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		sum.CompletedAt = time.Unix(0, completed)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Delete removes a report
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
