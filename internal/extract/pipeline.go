// Package extract turns a document into the ordered sequence of page
// records the conversation driver consumes: rendered page images, page text,
// and figure crops, truncated before any reference section.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/figures"
	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/pdf"
	"github.com/gridone/paperlens/models"
)

var (
	// ErrDocumentNotFound marks an input path with no file behind it.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDocumentEmpty marks a document with zero pages.
	ErrDocumentEmpty = errors.New("document has no pages")
)

// Pipeline composes page rendering, reference-section truncation, and the
// figure-detection cascade for one run. A run that cannot render a page
// fails outright: partial extraction would silently skew the analysis.
type Pipeline struct {
	cfg *config.Config
	log logger.Logger
}

// NewPipeline builds an extraction pipeline with the given configuration.
func NewPipeline(cfg *config.Config, log logger.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log}
}

// Extract processes pages 0..min(maxPages, total)-1 of the document at
// docPath, clamped further to exclude a detected reference section, writing
// page renders and figure crops into outDir. maxPages <= 0 means all pages.
// The document handle is released on every exit path.
func (p *Pipeline) Extract(ctx context.Context, docPath string, maxPages int, outDir string) (*models.ExtractionResult, error) {
	sourceName, err := statSource(docPath)
	if err != nil {
		return nil, err
	}

	doc, err := pdf.Open(docPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", sourceName, err)
	}
	defer doc.Close()

	total := doc.PageCount()
	if total == 0 {
		return nil, fmt.Errorf("%s: %w", sourceName, ErrDocumentEmpty)
	}

	pages := total
	if maxPages > 0 && maxPages < total {
		pages = maxPages
	}

	referencesAt := pdf.FindReferenceSection(doc, pages)
	if referencesAt >= 0 {
		p.log.Info("Reference section detected on page %d, truncating", referencesAt+1)
		pages = referencesAt
	}

	p.log.Info("Extracting %d of %d pages from %s", pages, total, sourceName)
	cascade := figures.NewCascade(ctx, p.cfg, p.log)

	records := make([]models.PageRecord, 0, pages)
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		imagePath, err := doc.SavePagePNG(i, p.cfg.RenderDPI, outDir)
		if err != nil {
			return nil, err
		}
		text, err := doc.PageText(i)
		if err != nil {
			return nil, fmt.Errorf("extracting text of page %d: %w", i+1, err)
		}

		crops := cascade.Detect(ctx, doc, i, outDir)

		record, err := models.NewPageRecord(i+1, text, imagePath, crops)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
		p.log.Debug("Extracted page %d: %d chars, %d figures", i+1, len(text), len(crops))
	}

	return &models.ExtractionResult{
		Source:       sourceName,
		Pages:        records,
		TotalPages:   total,
		ReferencesAt: referencesAt,
	}, nil
}

func statSource(docPath string) (string, error) {
	info, err := os.Stat(docPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", docPath, ErrDocumentNotFound)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory: %w", docPath, ErrDocumentNotFound)
	}
	return info.Name(), nil
}
