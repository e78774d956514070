package models

import (
	"fmt"
	"os"
	"time"
)

// FigureCrop is one extracted figure image from a page. Index is 0-based and
// scoped to its page; together they match the on-disk naming convention
// page_<page>_figure_<index>.<ext>.
type FigureCrop struct {
	Page      int    `json:"page"`
	Index     int    `json:"index"`
	ImagePath string `json:"image_path"`
}

// PageRecord holds everything extracted from a single page: raw text, the
// rendered raster image, and any figure crops detected on it. Records are
// immutable once constructed.
type PageRecord struct {
	PageNumber int          `json:"page_number"`
	Text       string       `json:"text"`
	ImagePath  string       `json:"image_path"`
	Figures    []FigureCrop `json:"figures,omitempty"`
}

// NewPageRecord builds a PageRecord, enforcing that the page number is
// one-based and that the rendered image actually exists on disk.
func NewPageRecord(pageNumber int, text, imagePath string, figures []FigureCrop) (PageRecord, error) {
	if pageNumber < 1 {
		return PageRecord{}, fmt.Errorf("page number must be >= 1, got %d", pageNumber)
	}
	if _, err := os.Stat(imagePath); err != nil {
		return PageRecord{}, fmt.Errorf("rendered image for page %d not found: %w", pageNumber, err)
	}
	return PageRecord{
		PageNumber: pageNumber,
		Text:       text,
		ImagePath:  imagePath,
		Figures:    figures,
	}, nil
}

// ExtractionResult is the ordered sequence of page records produced for one
// document, truncated before any detected reference section.
type ExtractionResult struct {
	Source       string       `json:"source"`
	Pages        []PageRecord `json:"pages"`
	TotalPages   int          `json:"total_pages"`
	ReferencesAt int          `json:"references_at"` // zero-based page index, -1 when none detected
}

// FigureCount returns the total number of figure crops across all pages.
func (r *ExtractionResult) FigureCount() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Figures)
	}
	return n
}

// ReportArtifact is the final output of an analysis run. It is constructed
// once the conversation completes; enriching the text with figure embeds
// produces a revised copy rather than mutating in place.
type ReportArtifact struct {
	ReportText  string    `json:"report_text"`
	SourceName  string    `json:"source_name"`
	PageCount   int       `json:"page_count"`
	GeneratedAt time.Time `json:"generated_at"`
	Model       string    `json:"model"`
	StoragePath string    `json:"storage_path,omitempty"`
}

// NewReportArtifact builds a ReportArtifact, rejecting empty report text and
// non-positive page counts.
func NewReportArtifact(reportText, sourceName string, pageCount int, model string) (ReportArtifact, error) {
	if reportText == "" {
		return ReportArtifact{}, fmt.Errorf("report text is empty")
	}
	if pageCount < 1 {
		return ReportArtifact{}, fmt.Errorf("page count must be >= 1, got %d", pageCount)
	}
	return ReportArtifact{
		ReportText:  reportText,
		SourceName:  sourceName,
		PageCount:   pageCount,
		GeneratedAt: time.Now().UTC(),
		Model:       model,
	}, nil
}

// WithReportText returns a copy of the artifact carrying revised report text.
func (a ReportArtifact) WithReportText(text string) ReportArtifact {
	a.ReportText = text
	return a
}

// Analysis run statuses as stored in the registry.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Analysis is one registry row describing an analysis run.
type Analysis struct {
	ID          string    `json:"analysis_id"`
	SourceName  string    `json:"source_name"`
	PageCount   int       `json:"page_count"`
	FigureCount int       `json:"figure_count"`
	Model       string    `json:"model"`
	Status      string    `json:"status"`
	ReportPath  string    `json:"report_path,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	CreatedAt   time.Time `json:"created_at"`
}
