package server

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/operations"
	"github.com/gridone/paperlens/internal/runs"
	"github.com/gridone/paperlens/internal/storage"
	"github.com/gridone/paperlens/resources"
	"github.com/gridone/paperlens/tools"
)

// CreateServer builds the MCP server with the analysis tools and resource
// templates registered. The returned cleanup function closes the registry.
func CreateServer(cfg *config.Config, log logger.Logger) (*mcp.Server, func(), error) {
	server := mcp.NewServer(&mcp.Implementation{Name: "paperlens", Version: "v0.1.0"}, nil)

	log.Info("Initializing SQLite registry at: %s", cfg.DatabasePath)
	store, err := storage.NewSQLiteStore(cfg.DatabasePath, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create SQLite store: %w", err)
	}

	ws, err := runs.NewWorkspace(cfg.OutputRoot)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to create run workspace: %w", err)
	}

	service := operations.NewService(cfg, log, store, ws)
	resourceHandler := resources.NewAnalysisResourceHandler(store, ws)

	// Register tools with the analysis service and logger dependencies
	mcp.AddTool(server, tools.PaperAnalyzeTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.PaperAnalyzeQuery) (*mcp.CallToolResult, *tools.PaperAnalyzeResponse, error) {
		return tools.PaperAnalyzeToolHandler(ctx, req, query, service, log)
	})

	mcp.AddTool(server, tools.AnalysisGetTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.AnalysisGetQuery) (*mcp.CallToolResult, *tools.AnalysisGetResponse, error) {
		return tools.AnalysisGetToolHandler(ctx, req, query, service, log)
	})

	mcp.AddTool(server, tools.AnalysisListTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.AnalysisListQuery) (*mcp.CallToolResult, *tools.AnalysisListResponse, error) {
		return tools.AnalysisListToolHandler(ctx, req, query, service, log)
	})

	mcp.AddTool(server, tools.AnalysisDeleteTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.AnalysisDeleteQuery) (*mcp.CallToolResult, *tools.AnalysisDeleteResponse, error) {
		return tools.AnalysisDeleteToolHandler(ctx, req, query, service, log)
	})

	// Template for the analysis summary
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "paperlens://{analysisId}",
		Name:        "analysis",
		Description: "Stored paper analysis with run metadata and available sub-resources",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return resourceHandler.ReadResource(ctx, req.Params.URI)
	})

	// Template for the report
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "paperlens://{analysisId}/report",
		Name:        "analysis-report",
		Description: "Analysis report in markdown with embedded figure references",
		MIMEType:    "text/markdown",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return resourceHandler.ReadResource(ctx, req.Params.URI)
	})

	// Template for run files (page renders and figure crops)
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "paperlens://{analysisId}/files/{filename}",
		Name:        "analysis-file",
		Description: "A file from the analysis run directory: a page render or a figure crop",
		MIMEType:    "image/png",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return resourceHandler.ReadResource(ctx, req.Params.URI)
	})

	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close registry: %v", err)
		}
	}
	return server, cleanup, nil
}
