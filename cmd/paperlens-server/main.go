package main

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/server"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		// No logger yet, configuration errors go straight out
		panic(err)
	}

	log, err := logger.NewLogger(logger.LogConfig{
		Output:   cfg.LogOutput,
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
	})
	if err != nil {
		panic(err)
	}

	log.Info("Starting paperlens server")

	srv, cleanup, err := server.CreateServer(cfg, log)
	if err != nil {
		log.Fatal("Failed to create server: %v", err)
	}
	defer cleanup()

	if err := srv.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatal("Server failed: %v", err)
	}
}
