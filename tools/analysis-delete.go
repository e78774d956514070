package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/operations"
)

type AnalysisDeleteQuery struct {
	AnalysisID string `json:"analysis_id"`
}

type AnalysisDeleteResponse struct {
	AnalysisID string `json:"analysis_id"`
	Deleted    bool   `json:"deleted"`
}

func AnalysisDeleteTool() *mcp.Tool {
	inputschema, err := jsonschema.For[AnalysisDeleteQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "analysis-delete",
		Description: "Delete a stored paper analysis: removes the report, page renders, and figure crops along with the registry entry",
		InputSchema: inputschema,
	}
}

func AnalysisDeleteToolHandler(ctx context.Context, req *mcp.CallToolRequest, query AnalysisDeleteQuery, service *operations.Service, log logger.Logger) (*mcp.CallToolResult, *AnalysisDeleteResponse, error) {
	if query.AnalysisID == "" {
		return nil, nil, errors.New("analysis_id is required")
	}

	if err := service.DeleteAnalysis(ctx, query.AnalysisID); err != nil {
		return nil, nil, err
	}
	log.Info("Deleted analysis %s", query.AnalysisID)

	toolResult := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Deleted analysis %s and its artifacts.", query.AnalysisID),
			},
		},
	}

	responseData := &AnalysisDeleteResponse{
		AnalysisID: query.AnalysisID,
		Deleted:    true,
	}

	return toolResult, responseData, nil
}
