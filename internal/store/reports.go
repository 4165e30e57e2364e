package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"oracle/internal/research"
)

var ErrNotFound = errors.New("report not found")

// StoredReport is a persisted research report row. List results omit the
// report body.
type StoredReport struct {
	ID             int64    `json:"id"`
	Query          string   `json:"query"`
	Report         string   `json:"report,omitempty"`
	Sources        []string `json:"sources"`
	Confidence     float64  `json:"confidence"`
	QualityScore   *float64 `json:"quality_score,omitempty"`
	IterationCount int      `json:"iteration_count"`
	CreatedAt      string   `json:"created_at"`
}

type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) ReportStore {
	return ReportStore{db: db}
}

func (s ReportStore) SaveReport(ctx context.Context, query string, report research.FinalReport, qualityScore *float64, iterations int) (int64, error) {
	sources, err := json.Marshal(report.Sources)
	if err != nil {
		return 0, fmt.Errorf("encode sources: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
INSERT INTO research_reports (query, report, sources, confidence, quality_score, iteration_count)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id;
`, query, report.Content, string(sources), report.Confidence, qualityScore, iterations).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save report: %w", err)
	}
	return id, nil
}

func (s ReportStore) SaveSearchResults(ctx context.Context, reportID int64, results []research.SearchResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin search result save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO search_results (report_id, title, url, content, score) VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("prepare search result save: %w", err)
	}
	defer stmt.Close()

	for _, result := range results {
		if _, err := stmt.ExecContext(ctx, reportID, result.Title, result.URL, result.Content, result.Score); err != nil {
			return fmt.Errorf("save search result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit search results: %w", err)
	}
	return nil
}

// ListReports returns a page of reports, newest first, without bodies.
func (s ReportStore) ListReports(ctx context.Context, limit, offset int) ([]StoredReport, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, query, sources, confidence, quality_score, iteration_count, created_at
FROM research_reports
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := make([]StoredReport, 0, limit)
	for rows.Next() {
		var report StoredReport
		var sources string
		var quality sql.NullFloat64
		if err := rows.Scan(&report.ID, &report.Query, &sources, &report.Confidence, &quality, &report.IterationCount, &report.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if quality.Valid {
			score := quality.Float64
			report.QualityScore = &score
		}
		if err := json.Unmarshal([]byte(sources), &report.Sources); err != nil {
			report.Sources = []string{}
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

func (s ReportStore) GetReport(ctx context.Context, id int64) (StoredReport, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, query, report, sources, confidence, quality_score, iteration_count, created_at
FROM research_reports
WHERE id = ?
LIMIT 1;
`, id)

	var report StoredReport
	var sources string
	var quality sql.NullFloat64
	err := row.Scan(&report.ID, &report.Query, &report.Report, &sources, &report.Confidence, &quality, &report.IterationCount, &report.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredReport{}, ErrNotFound
	}
	if err != nil {
		return StoredReport{}, fmt.Errorf("get report: %w", err)
	}
	if quality.Valid {
		score := quality.Float64
		report.QualityScore = &score
	}
	if err := json.Unmarshal([]byte(sources), &report.Sources); err != nil {
		report.Sources = []string{}
	}
	return report, nil
}
