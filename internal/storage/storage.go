// Package storage keeps the registry of completed analysis runs. The
// artifacts themselves live on disk in the run directories; the registry
// holds the metadata needed to list, fetch, and delete past runs.
package storage

import (
	"context"
	"errors"

	"github.com/gridone/paperlens/models"
)

// ErrAnalysisNotFound is returned when no registry row exists for an ID.
var ErrAnalysisNotFound = errors.New("analysis not found")

// Store defines the interface for the analysis registry.
type Store interface {
	// SaveAnalysis records a completed analysis run.
	SaveAnalysis(ctx context.Context, analysis *models.Analysis) error

	// GetAnalysis retrieves one analysis by run ID.
	GetAnalysis(ctx context.Context, id string) (*models.Analysis, error)

	// ListAnalyses returns analyses newest first, at most limit rows
	// (limit <= 0 means all).
	ListAnalyses(ctx context.Context, limit int) ([]models.Analysis, error)

	// DeleteAnalysis removes the registry row for a run.
	DeleteAnalysis(ctx context.Context, id string) error

	// Close closes the underlying database.
	Close() error
}
