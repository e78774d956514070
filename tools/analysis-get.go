package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/operations"
	"github.com/gridone/paperlens/models"
)

type AnalysisGetQuery struct {
	AnalysisID string `json:"analysis_id"`
}

type AnalysisGetResponse struct {
	Analysis models.Analysis `json:"analysis"`
	Report   string          `json:"report,omitempty"`
}

func AnalysisGetTool() *mcp.Tool {
	inputschema, err := jsonschema.For[AnalysisGetQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "analysis-get",
		Description: "Retrieve a stored paper analysis by its ID, including the full report text and run metadata",
		InputSchema: inputschema,
	}
}

func AnalysisGetToolHandler(ctx context.Context, req *mcp.CallToolRequest, query AnalysisGetQuery, service *operations.Service, log logger.Logger) (*mcp.CallToolResult, *AnalysisGetResponse, error) {
	if query.AnalysisID == "" {
		return nil, nil, errors.New("analysis_id is required")
	}

	result, err := service.GetAnalysis(ctx, query.AnalysisID)
	if err != nil {
		return nil, nil, err
	}
	analysis := result.Analysis

	toolResult := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Analysis %s of %s: %d pages, %d figures, status %s.",
					analysis.ID, analysis.SourceName, analysis.PageCount, analysis.FigureCount, analysis.Status),
			},
		},
	}

	responseData := &AnalysisGetResponse{
		Analysis: analysis,
		Report:   result.ReportText,
	}

	return toolResult, responseData, nil
}
