// Package main provides the MCP server entry point for the telecom assistant.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bull/telecom-rag/internal/assistant"
	"github.com/bull/telecom-rag/internal/config"
	mcpserver "github.com/bull/telecom-rag/internal/mcp"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Stdout carries the stdio transport, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Missing LLM key or index fails here, not on the first query.
	svc, err := assistant.NewService(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to start assistant: %v", err)
	}
	defer svc.Close()

	server := mcpserver.NewServer(&mcpserver.Config{
		Assistant:        svc,
		Retriever:        svc.Retriever,
		Index:            svc.Index,
		IndexDir:         cfg.IndexDir(),
		DefaultK:         cfg.Retrieval.K,
		DefaultThreshold: cfg.Retrieval.Threshold,
		Logger:           logger,
	})

	mux := http.NewServeMux()
	if hc, ok := svc.Index.(mcpserver.HealthChecker); ok {
		mux.HandleFunc("/health", mcpserver.NewHealthHandler(hc))
	}
	mux.Handle("/mcp", server.HTTPHandler(false))
	mux.HandleFunc("/", mcpserver.NewLandingHandler())

	addr := "0.0.0.0:" + cfg.Server.Port

	if cfg.Server.Mode == config.ModeHTTP {
		logger.Info("Starting HTTP server", "addr", addr, "mcp", "/mcp", "health", "/health")
		httpServer := &http.Server{Addr: addr, Handler: mux}
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
		return
	}

	// Stdio mode still serves /health for local checks.
	go func() {
		logger.Info("Starting health server", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("Health server error", "error", err)
		}
	}()

	logger.Info("Starting telecom MCP server (stdio mode)")
	if err := server.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
