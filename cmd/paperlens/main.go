// Command paperlens analyzes a single academic paper and prints where the
// report landed. The document is given as a positional argument: a local
// path or an http(s) URL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/documents"
	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/operations"
	"github.com/gridone/paperlens/internal/runs"
	"github.com/gridone/paperlens/internal/storage"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "paperlens: %v\n", err)
		os.Exit(1)
	}

	args := pflag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: paperlens [flags] <document path or URL>")
		os.Exit(2)
	}

	if cfg.LogOutput == "" {
		cfg.LogOutput = "stderr"
	}
	log, err := logger.NewLogger(logger.LogConfig{
		Output:   cfg.LogOutput,
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "paperlens: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "paperlens: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger, document string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewSQLiteStore(cfg.DatabasePath, log)
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}
	defer store.Close()

	ws, err := runs.NewWorkspace(cfg.OutputRoot)
	if err != nil {
		return err
	}

	var source documents.Source
	if strings.HasPrefix(document, "http://") || strings.HasPrefix(document, "https://") {
		source.URL = document
	} else {
		source.Path = document
	}

	service := operations.NewService(cfg, log, store, ws)
	result, err := service.AnalyzePaper(ctx, operations.AnalyzeRequest{Source: source})
	if err != nil {
		return err
	}

	analysis := result.Analysis
	fmt.Printf("Analysis %s completed: %d pages, %d figures\n", analysis.ID, analysis.PageCount, analysis.FigureCount)
	fmt.Printf("Report: %s\n", analysis.ReportPath)
	return nil
}
