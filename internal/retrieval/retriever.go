// Package retrieval finds the indexed passages most similar to a query.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/telecom-rag/internal/storage"
)

const (
	// DefaultK is the number of neighbours requested when k <= 0.
	DefaultK = 3
	// DefaultThreshold is the minimum similarity a passage needs to be kept.
	DefaultThreshold = 0.7
	// NoRelevantDocument is the text of the result returned when nothing
	// passes the threshold.
	NoRelevantDocument = "No relevant document found."
)

// Result is one retrieved passage.
type Result struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// IsSentinel reports whether r is the "no relevant document" placeholder.
func (r Result) IsSentinel() bool {
	return r.Source == "" && r.Text == NoRelevantDocument
}

// Sentinel returns the placeholder result used when nothing matched.
func Sentinel() Result {
	return Result{Text: NoRelevantDocument}
}

// Embedder turns texts into vectors. It must be the embedder the index was
// built with.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever embeds queries and searches an index.
type Retriever struct {
	embedder Embedder
	index    storage.Index
	logger   *slog.Logger
}

// New creates a retriever. A nil logger uses slog.Default().
func New(embedder Embedder, index storage.Index, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, index: index, logger: logger}
}

// Retrieve returns up to k passages whose similarity to query is at least
// threshold, most similar first. The result is never empty: when nothing
// passes, it holds only the Sentinel result.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, threshold float64) ([]Result, error) {
	if k <= 0 {
		k = DefaultK
	}

	vectors, err := r.embedder.GenerateEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors, expected 1", len(vectors))
	}

	hits, err := r.index.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		similarity := 1 - h.Distance
		if similarity < threshold {
			continue
		}
		results = append(results, Result{
			Text:       h.Entry.Text,
			Source:     h.Entry.Source,
			Similarity: similarity,
		})
	}

	r.logger.Debug("retrieved passages",
		"candidates", len(hits),
		"kept", len(results),
		"k", k,
		"threshold", threshold)

	if len(results) == 0 {
		return []Result{Sentinel()}, nil
	}
	return results, nil
}
