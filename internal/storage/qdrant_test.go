//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestIndex connects to a local Qdrant with a throwaway collection.
// Skips the test if Qdrant is not running.
func setupTestIndex(t *testing.T) *QdrantIndex {
	idx, err := NewQdrantIndex("localhost", 6334, "test_"+uuid.New().String()[:8])
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() {
		idx.client.DeleteCollection(context.Background(), idx.collection)
		idx.Close()
	})
	return idx
}

func TestQdrantIndex_RebuildAndSearch(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Rebuild(ctx, testModel, testEntries()))

	hits, err := idx.Search(ctx, []float32{2, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "tower signal loss", hits[0].Entry.Text)
	assert.Equal(t, "tower.txt", hits[0].Entry.Source)
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)
	assert.Equal(t, "antenna tilt", hits[1].Entry.Text)
	assert.Equal(t, 1, hits[1].Entry.Ordinal)
	assert.InDelta(t, 0.2, hits[1].Distance, 1e-5)
}

func TestQdrantIndex_RebuildReplaces(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Rebuild(ctx, testModel, testEntries()))
	require.NoError(t, idx.Rebuild(ctx, testModel, []Entry{
		{Source: "new.txt", Text: "replacement", Vector: []float32{0, 1}},
	}))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "qdrant", stats.Backend)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 2, stats.Dimension)
	assert.Equal(t, testModel, stats.Model)
	assert.Equal(t, map[string]int{"new.txt": 1}, stats.Sources)
}

func TestOpenQdrantIndex_MissingCollection(t *testing.T) {
	idx := setupTestIndex(t)

	_, err := OpenQdrantIndex(context.Background(), idx.host, idx.port, "missing_"+uuid.New().String()[:8])
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestQdrantIndex_Health(t *testing.T) {
	idx := setupTestIndex(t)
	assert.NoError(t, idx.Health(context.Background()))
}
