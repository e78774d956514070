// Package operations executes paper analyses end to end and fronts the
// analysis registry. Each analysis resolves its source document, extracts
// pages and figures into a fresh run directory, drives the model
// conversation, assembles the report, and records the run.
package operations

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/documents"
	"github.com/gridone/paperlens/internal/extract"
	"github.com/gridone/paperlens/internal/llm"
	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/report"
	"github.com/gridone/paperlens/internal/runs"
	"github.com/gridone/paperlens/internal/storage"
	"github.com/gridone/paperlens/models"
)

// EmbedBase is the URI prefix under which run files are served; figure
// embeds in reports and the MCP resource templates share it.
const EmbedBase = "paperlens://"

// Service wires the analysis pipeline to the registry and the run
// workspace. It is safe for concurrent use; concurrent analyses are
// isolated by their run directories.
type Service struct {
	cfg   *config.Config
	log   logger.Logger
	store storage.Store
	ws    *runs.Workspace
}

// NewService builds an analysis service over the given registry and
// workspace.
func NewService(cfg *config.Config, log logger.Logger, store storage.Store, ws *runs.Workspace) *Service {
	return &Service{cfg: cfg, log: log, store: store, ws: ws}
}

// AnalyzeRequest names the document to analyze plus per-call overrides.
// Exactly one of the Source fields must be set; zero-valued overrides fall
// back to the service configuration.
type AnalyzeRequest struct {
	Source   documents.Source
	MaxPages int
	Provider string
	Model    string
}

// AnalysisResult pairs a registry row with its report text.
type AnalysisResult struct {
	Analysis   models.Analysis
	ReportText string
}

// AnalyzePaper runs one full analysis: resolve, allocate, extract,
// converse, assemble, persist. Errors are wrapped with the failing stage. A failed
// run leaves its partial artifacts on disk for inspection but writes no
// registry row.
func (s *Service) AnalyzePaper(ctx context.Context, req AnalyzeRequest) (*AnalysisResult, error) {
	cfg, err := s.effectiveConfig(req)
	if err != nil {
		return nil, err
	}

	resolved, err := documents.Resolve(ctx, cfg, req.Source, s.log)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	defer resolved.Cleanup()

	run, err := s.ws.Allocate()
	if err != nil {
		return nil, fmt.Errorf("allocate: %w", err)
	}
	s.log.Info("Starting analysis %s of %s", run.ID, resolved.Name)

	maxPages := cfg.MaxPages
	if req.MaxPages > 0 {
		maxPages = req.MaxPages
	}
	extraction, err := extract.NewPipeline(cfg, s.log).Extract(ctx, resolved.Path, maxPages, run.Dir)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	extraction.Source = resolved.Name

	client, err := llm.NewClient(ctx, cfg, s.log)
	if err != nil {
		return nil, fmt.Errorf("converse: %w", err)
	}
	reportText, err := llm.NewDriver(client, cfg, s.log).Run(ctx, extraction.Pages)
	if err != nil {
		return nil, fmt.Errorf("converse: %w", err)
	}

	artifact, err := models.NewReportArtifact(reportText, resolved.Name, len(extraction.Pages), cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	assembler := report.NewAssembler(EmbedBase, s.log)
	artifact = assembler.InsertFigureLinks(artifact, run.ID, run.Dir)
	artifact, err = assembler.SaveReport(artifact, run.Dir)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	analysis := models.Analysis{
		ID:          run.ID,
		SourceName:  resolved.Name,
		PageCount:   artifact.PageCount,
		FigureCount: extraction.FigureCount(),
		Model:       artifact.Model,
		Status:      models.StatusCompleted,
		ReportPath:  artifact.StoragePath,
		GeneratedAt: artifact.GeneratedAt,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveAnalysis(ctx, &analysis); err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}

	s.log.Info("Analysis %s completed: %d pages, %d figures", run.ID, analysis.PageCount, analysis.FigureCount)
	return &AnalysisResult{Analysis: analysis, ReportText: artifact.ReportText}, nil
}

// GetAnalysis retrieves a registry row together with the stored report
// text. A row whose report file is gone is still returned with the text
// left empty.
func (s *Service) GetAnalysis(ctx context.Context, id string) (*AnalysisResult, error) {
	analysis, err := s.store.GetAnalysis(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &AnalysisResult{Analysis: *analysis}
	if analysis.ReportPath != "" {
		data, err := os.ReadFile(analysis.ReportPath)
		if err != nil {
			s.log.Warn("Report file for analysis %s unreadable: %v", id, err)
		} else {
			result.ReportText = string(data)
		}
	}
	return result, nil
}

// ListAnalyses returns registry rows newest first. limit <= 0 returns all.
func (s *Service) ListAnalyses(ctx context.Context, limit int) ([]models.Analysis, error) {
	return s.store.ListAnalyses(ctx, limit)
}

// DeleteAnalysis removes a run's artifacts and its registry row. The row
// must exist; a missing run directory is not an error.
func (s *Service) DeleteAnalysis(ctx context.Context, id string) error {
	if _, err := s.store.GetAnalysis(ctx, id); err != nil {
		return err
	}
	if err := s.ws.Remove(id); err != nil {
		return fmt.Errorf("removing artifacts of analysis %s: %w", id, err)
	}
	return s.store.DeleteAnalysis(ctx, id)
}

// effectiveConfig applies per-request overrides on a copy of the service
// configuration.
func (s *Service) effectiveConfig(req AnalyzeRequest) (*config.Config, error) {
	cfg := *s.cfg
	if req.Provider != "" {
		cfg.Provider = req.Provider
	}
	if req.Model != "" {
		cfg.Model = req.Model
	}
	if cfg.Provider != config.ProviderGemini && cfg.Provider != config.ProviderOpenAI {
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if req.MaxPages < 0 || req.MaxPages > config.MaxPageCap {
		return nil, fmt.Errorf("max pages must be in 1..%d, got %d", config.MaxPageCap, req.MaxPages)
	}
	return &cfg, nil
}
