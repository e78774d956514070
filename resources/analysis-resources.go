package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gridone/paperlens/internal/runs"
	"github.com/gridone/paperlens/internal/storage"
)

// URIScheme is the resource scheme analyses are served under.
const URIScheme = "paperlens://"

// AnalysisResourceHandler serves stored analysis runs: the report as
// markdown and run files (page renders, figure crops) as image blobs.
type AnalysisResourceHandler struct {
	store storage.Store
	ws    *runs.Workspace
}

// NewAnalysisResourceHandler creates a resource handler over the registry
// and the run workspace.
func NewAnalysisResourceHandler(store storage.Store, ws *runs.Workspace) *AnalysisResourceHandler {
	return &AnalysisResourceHandler{store: store, ws: ws}
}

// ListResources returns a resource entry per stored analysis.
func (h *AnalysisResourceHandler) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	analyses, err := h.store.ListAnalyses(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}

	var resources []mcp.Resource
	for _, a := range analyses {
		resources = append(resources, mcp.Resource{
			URI:         fmt.Sprintf("%s%s", URIScheme, a.ID),
			Name:        fmt.Sprintf("%s (Analysis)", a.SourceName),
			Description: fmt.Sprintf("Paper analysis of %s: %d pages, %d figures", a.SourceName, a.PageCount, a.FigureCount),
			MIMEType:    "application/json",
		})
		resources = append(resources, mcp.Resource{
			URI:         fmt.Sprintf("%s%s/report", URIScheme, a.ID),
			Name:        fmt.Sprintf("%s (Report)", a.SourceName),
			Description: "Analysis report with embedded figure references",
			MIMEType:    "text/markdown",
		})
	}

	return resources, nil
}

// ReadResource reads an analysis resource by URI. Supported forms:
// paperlens://{analysisId}, paperlens://{analysisId}/report, and
// paperlens://{analysisId}/files/{filename}.
func (h *AnalysisResourceHandler) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	if !strings.HasPrefix(uri, URIScheme) {
		return nil, fmt.Errorf("invalid URI scheme, expected %s", URIScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, URIScheme), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("invalid URI, missing analysis ID")
	}
	analysisID := parts[0]

	switch {
	case len(parts) == 1:
		return h.readSummary(ctx, uri, analysisID)
	case len(parts) == 2 && parts[1] == "report":
		return h.readReport(ctx, uri, analysisID)
	case len(parts) == 3 && parts[1] == "files":
		return h.readFile(ctx, uri, analysisID, parts[2])
	default:
		return nil, fmt.Errorf("unknown resource path: %s", uri)
	}
}

func (h *AnalysisResourceHandler) readSummary(ctx context.Context, uri, analysisID string) (*mcp.ReadResourceResult, error) {
	analysis, err := h.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}

	summary := map[string]interface{}{
		"analysis": analysis,
		"available_resources": []string{
			fmt.Sprintf("%s%s/report", URIScheme, analysisID),
			fmt.Sprintf("%s%s/files/{filename}", URIScheme, analysisID),
		},
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

func (h *AnalysisResourceHandler) readReport(ctx context.Context, uri, analysisID string) (*mcp.ReadResourceResult, error) {
	analysis, err := h.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if analysis.ReportPath == "" {
		return nil, fmt.Errorf("analysis %s has no stored report", analysisID)
	}

	data, err := os.ReadFile(analysis.ReportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read report of analysis %s: %w", analysisID, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     string(data),
			},
		},
	}, nil
}

func (h *AnalysisResourceHandler) readFile(ctx context.Context, uri, analysisID, filename string) (*mcp.ReadResourceResult, error) {
	// Registry lookup first, so deleted runs are not readable even if
	// their directory lingers.
	if _, err := h.store.GetAnalysis(ctx, analysisID); err != nil {
		return nil, err
	}

	path, err := h.ws.ResolveFile(analysisID, filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: fileMIMEType(filename),
				Blob:     data,
			},
		},
	}, nil
}

func fileMIMEType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".md":
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
