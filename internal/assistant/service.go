package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bull/telecom-rag/internal/config"
	"github.com/bull/telecom-rag/internal/embedding"
	"github.com/bull/telecom-rag/internal/gate"
	"github.com/bull/telecom-rag/internal/llm"
	"github.com/bull/telecom-rag/internal/prompt"
	"github.com/bull/telecom-rag/internal/retrieval"
	"github.com/bull/telecom-rag/internal/storage"
)

// Service owns the long-lived query-time resources: embedder, index and
// language model client. Build it once at process start and share it.
type Service struct {
	Assistant *Assistant
	Retriever *retrieval.Retriever
	Index     storage.Index
	Config    *config.Config
}

// NewService wires a Service from configuration. A missing LLM key or an
// unavailable index fails here rather than per query.
func NewService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}

	templates, err := prompt.NewTemplates(cfg.Templates)
	if err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	generator, err := llm.NewClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: &cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)
	if err != nil {
		return nil, err
	}

	index, err := OpenIndex(ctx, cfg, embedder.Model())
	if err != nil {
		return nil, err
	}
	logger.Info("Query service ready",
		"embedding_model", embedder.Model(),
		"llm_model", generator.Model(),
		"backend", cfg.Index.Backend,
	)

	g := gate.Default()
	if len(cfg.Domain) > 0 {
		g = gate.New(cfg.Domain)
	}

	retriever := retrieval.New(embedder, index, logger)
	asst := New(g, templates, retriever, generator, Options{
		GenerationTimeout: cfg.LLM.GenerationTimeout,
		RawDir:            cfg.Paths.RawDir,
	}, logger)

	return &Service{
		Assistant: asst,
		Retriever: retriever,
		Index:     index,
		Config:    cfg,
	}, nil
}

// Ask answers q with the configured defaults filled in for K and Threshold.
func (s *Service) Ask(ctx context.Context, q Query) Response {
	if q.K <= 0 {
		q.K = s.Config.Retrieval.K
	}
	if q.Threshold == nil {
		threshold := s.Config.Retrieval.Threshold
		q.Threshold = &threshold
	}
	return s.Assistant.Ask(ctx, q)
}

// Close releases the index.
func (s *Service) Close() error {
	if s.Index == nil {
		return nil
	}
	return s.Index.Close()
}

// Embedder is an embedding backend that names its model, so indexes can
// record it at build time and check it at query time.
type Embedder interface {
	retrieval.Embedder
	Model() string
}

// NewEmbedder builds the embedder selected by cfg. Index build and query
// paths must use the same settings.
func NewEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderHashing:
		return embedding.NewHashingEmbedder(cfg.Dimension), nil
	case config.ProviderOpenAI, "":
		client, err := embedding.NewClient(embedding.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedding client: %w", err)
		}
		return embedding.NewEmbedder(client, cfg.BatchSize), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// OpenIndex opens the configured index backend for searching. A non-empty
// model must match the embedding model the index was built with.
func OpenIndex(ctx context.Context, cfg *config.Config, model string) (storage.Index, error) {
	var (
		index storage.Index
		err   error
	)
	switch cfg.Index.Backend {
	case config.BackendQdrant:
		q := cfg.Index.Qdrant
		index, err = storage.OpenQdrantIndex(ctx, q.Host, q.Port, q.Collection)
	case config.BackendSQLite, "":
		index, err = storage.OpenSQLiteIndex(ctx, cfg.Paths.IndexPath)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
	if err != nil {
		return nil, err
	}

	if model != "" {
		if err := storage.VerifyModel(ctx, index, model); err != nil {
			index.Close()
			return nil, err
		}
	}
	return index, nil
}

// NewBuilder returns the index builder for the configured backend and a
// function releasing it.
func NewBuilder(cfg *config.Config) (storage.Builder, func() error, error) {
	switch cfg.Index.Backend {
	case config.BackendQdrant:
		q := cfg.Index.Qdrant
		idx, err := storage.NewQdrantIndex(q.Host, q.Port, q.Collection)
		if err != nil {
			return nil, nil, err
		}
		return idx, idx.Close, nil
	case config.BackendSQLite, "":
		return storage.NewSQLiteBuilder(cfg.Paths.IndexPath), func() error { return nil }, nil
	default:
		return nil, nil, errors.New("unknown index backend " + cfg.Index.Backend)
	}
}
