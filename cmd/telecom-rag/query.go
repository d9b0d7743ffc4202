package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/telecom-rag/internal/assistant"
	"github.com/bull/telecom-rag/internal/corpus"
	ghclient "github.com/bull/telecom-rag/internal/github"
	"github.com/bull/telecom-rag/internal/prompt"
	"github.com/bull/telecom-rag/internal/retrieval"
)

var (
	queryK         int
	queryThreshold float64
	askType        string
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Print the indexed passages most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRetrieve,
}

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Answer a telecom question from the indexed documents",
	Long: `Gates the query to the telecom domain, retrieves supporting passages
and asks the language model for an answer structured by --type
(report, sop, summary or default). Requires LLM_API_KEY.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index contents and build metadata",
	RunE:  runStatus,
}

func init() {
	for _, c := range []*cobra.Command{retrieveCmd, askCmd} {
		c.Flags().IntVarP(&queryK, "k", "k", 0, "number of passages to retrieve (default from config)")
		c.Flags().Float64Var(&queryThreshold, "threshold", 0, "minimum similarity in [0, 1] (default from config)")
	}
	askCmd.Flags().StringVarP(&askType, "type", "t", prompt.Report.String(), "answer structure: report, sop, summary or default")

	rootCmd.AddCommand(retrieveCmd, askCmd, statusCmd)
}

// queryParams resolves --k and --threshold against the config defaults.
func queryParams(cmd *cobra.Command) (int, float64, error) {
	k := cfg.Retrieval.K
	if cmd.Flags().Changed("k") {
		k = queryK
	}
	threshold := cfg.Retrieval.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = queryThreshold
	}
	if threshold < 0 || threshold > 1 {
		return 0, 0, fmt.Errorf("threshold %v outside [0, 1]", threshold)
	}
	return k, threshold, nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	k, threshold, err := queryParams(cmd)
	if err != nil {
		return err
	}

	embedder, err := assistant.NewEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	index, err := assistant.OpenIndex(ctx, cfg, embedder.Model())
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer index.Close()

	results, err := retrieval.New(embedder, index, slog.Default()).Retrieve(ctx, strings.Join(args, " "), k, threshold)
	if err != nil {
		return err
	}

	for i, r := range results {
		if r.IsSentinel() {
			fmt.Println(r.Text)
			continue
		}
		fmt.Printf("Result %d:\n", i+1)
		fmt.Printf("Source: %s\n", r.Source)
		fmt.Printf("Similarity: %.4f\n", r.Similarity)
		fmt.Printf("Content: %s\n\n", r.Text)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	k, threshold, err := queryParams(cmd)
	if err != nil {
		return err
	}

	typ, ok := prompt.ParseOutputType(askType)
	if !ok {
		fmt.Printf("Unknown document type '%s', defaulting to generic response.\n", askType)
	}

	svc, err := assistant.NewService(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer svc.Close()

	resp := svc.Ask(ctx, assistant.Query{
		Text:      strings.Join(args, " "),
		Type:      typ,
		K:         k,
		Threshold: &threshold,
	})

	fmt.Println(resp.Text)
	if resp.Source != "" {
		fmt.Println()
		fmt.Printf("Source: %s\n", resp.Source)
	}
	if resp.RawDocument != "" {
		fmt.Printf("Document: %s\n", resp.RawDocument)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	index, err := assistant.OpenIndex(ctx, cfg, "")
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer index.Close()

	stats, err := index.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read index stats: %w", err)
	}

	fmt.Printf("Backend:   %s\n", stats.Backend)
	fmt.Printf("Location:  %s\n", stats.Location)
	fmt.Printf("Entries:   %d\n", stats.Entries)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	fmt.Printf("Model:     %s\n", stats.Model)

	sources := make([]string, 0, len(stats.Sources))
	for s := range stats.Sources {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	fmt.Printf("Sources:   %d\n", len(sources))
	for _, s := range sources {
		fmt.Printf("  - %s: %d\n", s, stats.Sources[s])
	}

	var embedded map[string]int
	err = corpus.ReadJSON(filepath.Join(cfg.IndexDir(), corpus.EmbeddingMetadataFile), &embedded)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read embedding metadata", "error", err)
	}
	if len(embedded) > 0 && len(embedded) != len(sources) {
		fmt.Printf("Warning: embedding metadata lists %d documents, index has %d\n", len(embedded), len(sources))
	}

	fetched, err := ghclient.ReadFetchMetadata(cfg.IndexDir())
	switch {
	case err == nil:
		fmt.Printf("Fetched:   %s@%s (%s)\n", fetched.Repository, fetched.CommitSHA, fetched.FetchedAt.Format("2006-01-02T15:04:05Z07:00"))
	case !errors.Is(err, os.ErrNotExist):
		slog.Warn("Failed to read fetch metadata", "error", err)
	}
	return nil
}
