package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/bull/telecom-rag/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (f *fakeEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{f.vector}, nil
}

type fakeIndex struct {
	hits  []storage.Hit
	err   error
	gotK  int
	calls int
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, k int) ([]storage.Hit, error) {
	f.calls++
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeIndex) Stats(context.Context) (*storage.Stats, error) { return &storage.Stats{}, nil }
func (f *fakeIndex) Close() error                                 { return nil }

func hit(seq int, source, text string, distance float64) storage.Hit {
	return storage.Hit{
		Entry:    storage.Entry{Seq: seq, Source: source, Text: text},
		Distance: distance,
	}
}

func TestRetrieve_KeepsPassagesAboveThreshold(t *testing.T) {
	index := &fakeIndex{hits: []storage.Hit{
		hit(0, "tower.txt", "5G tower experienced signal loss", 0.18),
		hit(1, "ups.txt", "UPS maintenance schedule", 0.5),
	}}
	r := New(&fakeEmbedder{vector: []float32{1}}, index, nil)

	results, err := r.Retrieve(context.Background(), "5G tower signal loss", 3, 0.7)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "tower.txt", results[0].Source)
	assert.InDelta(t, 0.82, results[0].Similarity, 1e-9)
	assert.False(t, results[0].IsSentinel())
}

func TestRetrieve_NothingAboveThresholdYieldsSentinel(t *testing.T) {
	index := &fakeIndex{hits: []storage.Hit{hit(0, "tower.txt", "signal loss", 0.5)}}
	r := New(&fakeEmbedder{vector: []float32{1}}, index, nil)

	results, err := r.Retrieve(context.Background(), "query", 3, 0.7)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsSentinel())
	assert.Equal(t, NoRelevantDocument, results[0].Text)
	assert.Equal(t, float64(0), results[0].Similarity)
}

func TestRetrieve_EmptyIndexYieldsSentinel(t *testing.T) {
	r := New(&fakeEmbedder{vector: []float32{1}}, &fakeIndex{}, nil)

	results, err := r.Retrieve(context.Background(), "query", 3, 0.7)
	require.NoError(t, err)
	assert.Equal(t, []Result{Sentinel()}, results)
}

func TestRetrieve_ThresholdZeroKeepsAll(t *testing.T) {
	index := &fakeIndex{hits: []storage.Hit{
		hit(0, "a.txt", "a", 0.1),
		hit(1, "b.txt", "b", 0.9),
	}}
	r := New(&fakeEmbedder{vector: []float32{1}}, index, nil)

	results, err := r.Retrieve(context.Background(), "query", 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
}

func TestRetrieve_DefaultK(t *testing.T) {
	index := &fakeIndex{}
	r := New(&fakeEmbedder{vector: []float32{1}}, index, nil)

	_, err := r.Retrieve(context.Background(), "query", 0, 0.7)
	require.NoError(t, err)
	assert.Equal(t, DefaultK, index.gotK)
}

func TestRetrieve_ResultsNeverExceedK(t *testing.T) {
	index := &fakeIndex{hits: []storage.Hit{
		hit(0, "a.txt", "a", 0.01),
		hit(1, "b.txt", "b", 0.02),
		hit(2, "c.txt", "c", 0.03),
	}}
	r := New(&fakeEmbedder{vector: []float32{1}}, index, nil)

	results, err := r.Retrieve(context.Background(), "query", 2, 0.5)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	boom := errors.New("embedding service down")
	index := &fakeIndex{}
	r := New(&fakeEmbedder{err: boom}, index, nil)

	_, err := r.Retrieve(context.Background(), "query", 3, 0.7)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, index.calls)
}

func TestRetrieve_SearchFailure(t *testing.T) {
	r := New(&fakeEmbedder{vector: []float32{1}}, &fakeIndex{err: storage.ErrDimensionMismatch}, nil)

	_, err := r.Retrieve(context.Background(), "query", 3, 0.7)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}
