package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/models"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string, log logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, log: log}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		source_name TEXT NOT NULL,
		page_count INTEGER NOT NULL,
		figure_count INTEGER NOT NULL,
		model TEXT NOT NULL,
		status TEXT NOT NULL,
		report_path TEXT,
		generated_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveAnalysis records a completed analysis run
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, analysis *models.Analysis) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO analyses (id, source_name, page_count, figure_count, model, status, report_path, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, analysis.ID, analysis.SourceName, analysis.PageCount, analysis.FigureCount,
		analysis.Model, analysis.Status, analysis.ReportPath, analysis.GeneratedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	s.log.Debug("Saved analysis %s (%s, %d pages)", analysis.ID, analysis.SourceName, analysis.PageCount)
	return nil
}

// GetAnalysis retrieves one analysis by run ID
func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*models.Analysis, error) {
	var a models.Analysis
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_name, page_count, figure_count, model, status, report_path, generated_at, created_at
		FROM analyses
		WHERE id = ?
	`, id).Scan(&a.ID, &a.SourceName, &a.PageCount, &a.FigureCount, &a.Model,
		&a.Status, &a.ReportPath, &a.GeneratedAt, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrAnalysisNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis: %w", err)
	}
	return &a, nil
}

// ListAnalyses returns analyses newest first
func (s *SQLiteStore) ListAnalyses(ctx context.Context, limit int) ([]models.Analysis, error) {
	query := `
		SELECT id, source_name, page_count, figure_count, model, status, report_path, generated_at, created_at
		FROM analyses
		ORDER BY created_at DESC, id DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var analyses []models.Analysis
	for rows.Next() {
		var a models.Analysis
		if err := rows.Scan(&a.ID, &a.SourceName, &a.PageCount, &a.FigureCount, &a.Model,
			&a.Status, &a.ReportPath, &a.GeneratedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

// DeleteAnalysis removes the registry row for a run
func (s *SQLiteStore) DeleteAnalysis(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", id, ErrAnalysisNotFound)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ensure interface compliance at compile time
var _ Store = (*SQLiteStore)(nil)
