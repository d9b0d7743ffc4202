// Package embedding turns chunk and query text into vectors through an
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the embedding model used at both index and query time.
	DefaultModel = "text-embedding-3-small"

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	DefaultBatchSize = 500
)

// Embedder splits texts into request-sized batches. Index build and query
// must use the same model, or distances are meaningless.
type Embedder struct {
	client    *Client
	batchSize int
}

// NewEmbedder creates an Embedder. batchSize <= 0 uses DefaultBatchSize.
func NewEmbedder(client *Client, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{
		client:    client,
		batchSize: batchSize,
	}
}

// Model returns the model the vectors come from.
func (e *Embedder) Model() string { return e.client.model }

// ErrInconsistentDimension is returned when the endpoint answers with
// vectors of different lengths, which no index can hold.
var ErrInconsistentDimension = errors.New("embedding dimensions differ")

// GenerateEmbeddings returns one vector per text, in input order. All vectors
// share one dimension.
func (e *Embedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed texts %d-%d: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embed texts %d-%d: got %d vectors", start, end, len(batch))
		}
		vectors = append(vectors, batch...)
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: text %d has %d, text 0 has %d", ErrInconsistentDimension, i, len(v), dim)
		}
	}
	return vectors, nil
}

func retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

// embedBatch sends one request. Only HTTP 429 is retried.
func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.client.model),
	}

	var out [][]float32
	err := backoff.Retry(func() error {
		resp, err := e.client.client.Embeddings.New(ctx, params)
		switch {
		case err == nil:
		case isRateLimitError(err):
			return err
		default:
			return backoff.Permanent(err)
		}

		// The API may answer out of order; Index is authoritative.
		out = make([][]float32, len(resp.Data))
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(out) {
				return backoff.Permanent(fmt.Errorf("embedding index %d out of range", d.Index))
			}
			out[d.Index] = toFloat32(d.Embedding)
		}
		return nil
	}, retryPolicy(ctx))
	return out, err
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// toFloat32 converts the API's float64 vectors to the float32 the index stores.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
