package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultHashingDimension is the vector size of the offline embedder.
const DefaultHashingDimension = 256

// HashingEmbedder is a deterministic bag-of-words embedder that needs no
// network access. Each lower-cased word increments one hashed bucket, so
// texts sharing vocabulary point in similar directions.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates an offline embedder. dim <= 0 uses
// DefaultHashingDimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultHashingDimension
	}
	return &HashingEmbedder{dim: dim}
}

// Model identifies the embedder in index metadata. The dimension is part of
// the name since it changes the bucket layout.
func (h *HashingEmbedder) Model() string { return fmt.Sprintf("hashing-bow-%d", h.dim) }

// GenerateEmbeddings returns one vector per text, in input order.
func (h *HashingEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, h.dim)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			hash := fnv.New32a()
			hash.Write([]byte(w))
			v[hash.Sum32()%uint32(h.dim)]++
		}
		vectors[i] = v
	}
	return vectors, nil
}
