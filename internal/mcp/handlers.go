package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/telecom-rag/internal/assistant"
	"github.com/bull/telecom-rag/internal/corpus"
	ghclient "github.com/bull/telecom-rag/internal/github"
	"github.com/bull/telecom-rag/internal/prompt"
	"github.com/bull/telecom-rag/internal/retrieval"
)

func (c *Config) threshold(t *float64) float64 {
	if t == nil {
		return c.DefaultThreshold
	}
	return *t
}

func (c *Config) k(k int) int {
	if k <= 0 {
		return c.DefaultK
	}
	return k
}

// makeAskHandler creates the ask_telecom tool handler. Failures inside the
// assistant come back as answer text, so the tool only errors on bad input.
func makeAskHandler(cfg *Config) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		if input.Query == "" {
			return nil, AskOutput{}, errors.New("query is required")
		}
		threshold := cfg.threshold(input.Threshold)
		if threshold < 0 || threshold > 1 {
			return nil, AskOutput{}, fmt.Errorf("threshold %v outside [0, 1]", threshold)
		}

		typ, ok := prompt.ParseOutputType(input.Type)
		var warning string
		if !ok {
			warning = fmt.Sprintf("Unknown document type '%s', defaulting to generic response.", input.Type)
			cfg.Logger.Warn("Unknown output type", "type", input.Type)
		}

		resp := cfg.Assistant.Ask(ctx, assistant.Query{
			Text:      input.Query,
			Type:      typ,
			K:         cfg.k(input.K),
			Threshold: &threshold,
		})

		return nil, AskOutput{
			Answer:      resp.Text,
			Source:      resp.Source,
			RawDocument: resp.RawDocument,
			Type:        resp.Type.String(),
			OutOfScope:  resp.Text == assistant.OutOfScopeMessage,
			TypeWarning: warning,
		}, nil
	}
}

// makeRetrieveHandler creates the retrieve_passages tool handler.
func makeRetrieveHandler(cfg *Config) func(
	context.Context, *mcp.CallToolRequest, RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RetrieveInput) (
		*mcp.CallToolResult, RetrieveOutput, error,
	) {
		if input.Query == "" {
			return nil, RetrieveOutput{}, errors.New("query is required")
		}

		results, err := cfg.Retriever.Retrieve(ctx, input.Query, cfg.k(input.K), cfg.threshold(input.Threshold))
		if err != nil {
			return nil, RetrieveOutput{}, fmt.Errorf("retrieve failed: %w", err)
		}

		if len(results) == 1 && results[0].IsSentinel() {
			return nil, RetrieveOutput{
				Results: []retrieval.Result{},
				Message: retrieval.NoRelevantDocument,
			}, nil
		}

		return nil, RetrieveOutput{Results: results}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler. Missing
// metadata files leave the corresponding fields empty.
func makeStatusHandler(cfg *Config) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		stats, err := cfg.Index.Stats(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("index_error: failed to read stats: %w", err)
		}

		out := StatusOutput{
			Backend:   stats.Backend,
			Location:  stats.Location,
			Entries:   stats.Entries,
			Dimension: stats.Dimension,
			Model:     stats.Model,
			Sources:   stats.Sources,
		}

		if cfg.IndexDir == "" {
			return nil, out, nil
		}

		var embedded map[string]int
		err = corpus.ReadJSON(filepath.Join(cfg.IndexDir, corpus.EmbeddingMetadataFile), &embedded)
		switch {
		case err == nil:
			out.Embedded = embedded
		case !errors.Is(err, os.ErrNotExist):
			cfg.Logger.Warn("Failed to read embedding metadata", "error", err)
		}

		fetched, err := ghclient.ReadFetchMetadata(cfg.IndexDir)
		switch {
		case err == nil:
			out.SourceCommit = fetched.CommitSHA
			out.FetchedAt = &fetched.FetchedAt
		case !errors.Is(err, os.ErrNotExist):
			cfg.Logger.Warn("Failed to read fetch metadata", "error", err)
		}

		return nil, out, nil
	}
}
