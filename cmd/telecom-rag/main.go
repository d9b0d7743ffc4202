// Package main provides the telecom-rag CLI: corpus fetching, the offline
// indexing stages and command-line querying.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/telecom-rag/internal/config"
)

var (
	configPath string
	verbose    bool

	// cfg is loaded once by the root command before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "telecom-rag",
	Short: "Retrieval-augmented assistant for telecom field engineers",
	Long: `CLI for building and querying the telecom document index.

Offline stages run in order: fetch (optional), preprocess, chunk, index.
"sync" runs preprocess, chunk and index in one go.

Environment variables:
  OPENAI_API_KEY   Embedding API key (openai provider)
  LLM_API_KEY      Language model API key (ask command)
  LLM_BASE_URL     Override the language model endpoint
  QDRANT_HOST      Qdrant hostname (qdrant backend)
  QDRANT_PORT      Qdrant gRPC port (qdrant backend)
  GITHUB_TOKEN     GitHub token for higher rate limits (fetch command)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
