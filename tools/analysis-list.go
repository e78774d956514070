package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/operations"
	"github.com/gridone/paperlens/models"
)

type AnalysisListQuery struct {
	Limit int `json:"limit,omitempty"`
}

type AnalysisListResponse struct {
	Analyses []models.Analysis `json:"analyses"`
	Count    int               `json:"count"`
}

func AnalysisListTool() *mcp.Tool {
	inputschema, err := jsonschema.For[AnalysisListQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "analysis-list",
		Description: "List stored paper analyses, newest first. Limit caps the number of entries returned; omit it to list all.",
		InputSchema: inputschema,
	}
}

func AnalysisListToolHandler(ctx context.Context, req *mcp.CallToolRequest, query AnalysisListQuery, service *operations.Service, log logger.Logger) (*mcp.CallToolResult, *AnalysisListResponse, error) {
	analyses, err := service.ListAnalyses(ctx, query.Limit)
	if err != nil {
		return nil, nil, err
	}

	toolResult := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Found %d stored analyses.", len(analyses)),
			},
		},
	}

	responseData := &AnalysisListResponse{
		Analyses: analyses,
		Count:    len(analyses),
	}

	return toolResult, responseData, nil
}
