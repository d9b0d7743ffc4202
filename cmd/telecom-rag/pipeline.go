package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/telecom-rag/internal/assistant"
	"github.com/bull/telecom-rag/internal/chunker"
	ghclient "github.com/bull/telecom-rag/internal/github"
	"github.com/bull/telecom-rag/internal/indexer"
	"github.com/bull/telecom-rag/internal/loader"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download raw documents from GitHub into the raw directory",
	Long: `Lists the configured repository directory (github.owner, github.repo,
github.path at github.ref) and downloads every file with a supported
extension into paths.raw_dir. Subdirectories are flattened.`,
	RunE: runFetch,
}

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Extract and normalize raw documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), false, (*indexer.Pipeline).Preprocess)
	},
}

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Split processed documents into overlapping passages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), false, (*indexer.Pipeline).Chunk)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed all chunks and rebuild the vector index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), true, (*indexer.Pipeline).BuildIndex)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run preprocess, chunk and index",
	Long: `Runs the offline stages in order and stops at the first failing stage.
An empty corpus aborts before the index is touched.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(fetchCmd, preprocessCmd, chunkCmd, indexCmd, syncCmd)
}

// newPipeline wires a pipeline from cfg. The embedder and index builder are
// only created when withIndex is set, so the text stages need no API key.
func newPipeline(withIndex bool) (*indexer.Pipeline, func() error, error) {
	dirs := indexer.Dirs{
		Raw:       cfg.Paths.RawDir,
		Processed: cfg.Paths.ProcessedDir,
		Chunks:    cfg.Paths.ChunkDir,
		Index:     cfg.IndexDir(),
	}
	chk := chunker.New(cfg.ChunkerOptions()...)

	if !withIndex {
		p := indexer.NewPipeline(dirs, loader.NewRegistry(), chk, nil, nil, cfg.Workers, slog.Default())
		return p, func() error { return nil }, nil
	}

	embedder, err := assistant.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, nil, err
	}
	builder, release, err := assistant.NewBuilder(cfg)
	if err != nil {
		return nil, nil, err
	}

	p := indexer.NewPipeline(dirs, loader.NewRegistry(), chk, embedder, builder, cfg.Workers, slog.Default())
	return p, release, nil
}

func runStage(ctx context.Context, withIndex bool, stage func(*indexer.Pipeline, context.Context) (*indexer.StageResult, error)) error {
	p, release, err := newPipeline(withIndex)
	if err != nil {
		return err
	}
	defer release()

	result, err := stage(p, ctx)
	if result != nil {
		printStage(result)
	}
	if errors.Is(err, indexer.ErrIndexBuildAborted) {
		return fmt.Errorf("%w: run preprocess and chunk first", err)
	}
	return err
}

func runSync(cmd *cobra.Command, args []string) error {
	start := time.Now()

	fmt.Println("Starting sync...")
	fmt.Println()

	p, release, err := newPipeline(true)
	if err != nil {
		return err
	}
	defer release()

	results, err := p.Sync(cmd.Context())
	for _, r := range results {
		printStage(r)
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Println("Sync complete!")
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func printStage(r *indexer.StageResult) {
	fmt.Printf("%s: %d ok, %d skipped, %d failed (%s)\n",
		r.Stage,
		r.Count(indexer.StatusOK),
		r.Count(indexer.StatusSkipped),
		r.Count(indexer.StatusFailed),
		r.Duration.Round(time.Millisecond))
	if r.Stage != "preprocess" {
		fmt.Printf("  Chunks: %d\n", r.Total())
	}

	for _, status := range []indexer.Status{indexer.StatusSkipped, indexer.StatusFailed} {
		for _, o := range r.Items(status) {
			fmt.Printf("  - %s %s: %s\n", status, o.Name, o.Reason)
		}
	}
	fmt.Println()
}

func runFetch(cmd *cobra.Command, args []string) error {
	gh := cfg.GitHub
	if gh.Owner == "" || gh.Repo == "" {
		return errors.New("github.owner and github.repo must be set to fetch")
	}

	client, err := ghclient.NewClient(gh.Token, gh.BaseURL)
	if err != nil {
		return fmt.Errorf("create GitHub client: %w", err)
	}

	registry := loader.NewRegistry()
	fetcher := ghclient.NewFetcher(client, gh.Owner, gh.Repo, gh.Path, gh.Ref, registry.Supports, slog.Default())

	fmt.Printf("Fetching %s/%s/%s into %s...\n", gh.Owner, gh.Repo, gh.Path, cfg.Paths.RawDir)
	result, err := fetcher.FetchAll(cmd.Context(), cfg.Paths.RawDir)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	if err := ghclient.WriteFetchMetadata(cfg.IndexDir(), result); err != nil {
		return err
	}

	fmt.Printf("  Files: %d\n", len(result.Files))
	fmt.Printf("  Commit: %s\n", result.CommitSHA)
	if len(result.Failed) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.Failed {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	return nil
}
