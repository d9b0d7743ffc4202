// Package storage holds the vector index: chunk text, source metadata and
// embedding vectors, searchable by cosine distance.
package storage

import (
	"context"
	"fmt"
)

// Entry is one indexed chunk. Entries are created at build time and never
// mutated; a rebuild replaces all of them.
type Entry struct {
	Seq     int       // Insertion order across the whole index
	Source  string    // Chunk filename the text came from: "tower-report.txt"
	Ordinal int       // Chunk position within its source
	Text    string    // Chunk text
	Vector  []float32 // Embedding, fixed dimension per index
}

// Hit is a search result. Distance is the cosine distance 1 - cos(query, entry),
// so 0 means identical direction.
type Hit struct {
	Entry    Entry
	Distance float64
}

// Stats summarizes the contents of an index.
type Stats struct {
	Backend   string
	Location  string
	Entries   int
	Dimension int
	Model     string         // Embedding model the index was built with
	Sources   map[string]int // Source filename -> entry count
}

// Index is a read-only, searchable vector index.
type Index interface {
	// Search returns up to k entries nearest to vector, nearest first.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Builder replaces the full contents of an index. model names the embedder
// that produced the vectors; queries must use the same one.
type Builder interface {
	Rebuild(ctx context.Context, model string, entries []Entry) error
}

// VerifyModel fails with ErrIndexUnavailable and ErrModelMismatch when idx
// was built by a different embedding model than model.
func VerifyModel(ctx context.Context, idx Index, model string) error {
	stats, err := idx.Stats(ctx)
	if err != nil {
		return fmt.Errorf("%w: read stats: %v", ErrIndexUnavailable, err)
	}
	if stats.Model != model {
		return fmt.Errorf("%w: %w: index built with %q, queries use %q",
			ErrIndexUnavailable, ErrModelMismatch, stats.Model, model)
	}
	return nil
}

// validateEntries checks that entries exist and share one dimension.
// Returns the dimension.
func validateEntries(entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, ErrEmptyIndex
	}
	dim := len(entries[0].Vector)
	if dim == 0 {
		return 0, ErrDimensionMismatch
	}
	for i, e := range entries {
		if len(e.Vector) != dim {
			return 0, fmtDimension(i, len(e.Vector), dim)
		}
	}
	return dim, nil
}
