package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gridone/paperlens/internal/documents"
	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/operations"
)

type PaperAnalyzeQuery struct {
	Path      string `json:"path,omitempty"`
	URL       string `json:"url,omitempty"`
	ZoteroKey string `json:"zotero_key,omitempty"`
	MaxPages  int    `json:"max_pages,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
}

type PaperAnalyzeResponse struct {
	AnalysisID  string    `json:"analysis_id"`
	Report      string    `json:"report"`
	SourceName  string    `json:"source_name"`
	PageCount   int       `json:"page_count"`
	FigureCount int       `json:"figure_count"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generated_at"`
}

func PaperAnalyzeTool() *mcp.Tool {
	inputschema, err := jsonschema.For[PaperAnalyzeQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "paper-analyze",
		Description: "Analyze an academic paper with a multimodal model: pages are delivered one by one as text plus rendered images, detected figures are extracted, and the closing analysis report embeds figure references. Provide exactly one of path, url, or zotero_key.",
		InputSchema: inputschema,
	}
}

func PaperAnalyzeToolHandler(ctx context.Context, req *mcp.CallToolRequest, query PaperAnalyzeQuery, service *operations.Service, log logger.Logger) (*mcp.CallToolResult, *PaperAnalyzeResponse, error) {
	result, err := service.AnalyzePaper(ctx, operations.AnalyzeRequest{
		Source: documents.Source{
			Path:      query.Path,
			URL:       query.URL,
			ZoteroKey: query.ZoteroKey,
		},
		MaxPages: query.MaxPages,
		Provider: query.Provider,
		Model:    query.Model,
	})
	if err != nil {
		log.Error("Paper analysis failed: %v", err)
		return nil, nil, err
	}
	analysis := result.Analysis

	toolResult := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Analyzed %s: %d pages, %d figures. Report stored as analysis %s.",
					analysis.SourceName, analysis.PageCount, analysis.FigureCount, analysis.ID),
			},
		},
	}

	responseData := &PaperAnalyzeResponse{
		AnalysisID:  analysis.ID,
		Report:      result.ReportText,
		SourceName:  analysis.SourceName,
		PageCount:   analysis.PageCount,
		FigureCount: analysis.FigureCount,
		Model:       analysis.Model,
		GeneratedAt: analysis.GeneratedAt,
	}

	return toolResult, responseData, nil
}
