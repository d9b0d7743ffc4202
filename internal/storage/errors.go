package storage

import "errors"

var (
	ErrIndexUnavailable  = errors.New("vector index unavailable")
	ErrEmptyIndex        = errors.New("no entries to index")
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrModelMismatch     = errors.New("embedding model mismatch")
)
