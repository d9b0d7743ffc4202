package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = "hashing-bow-3"

func testEntries() []Entry {
	return []Entry{
		{Source: "tower.txt", Ordinal: 0, Text: "tower signal loss", Vector: []float32{1, 0, 0}},
		{Source: "tower.txt", Ordinal: 1, Text: "antenna tilt", Vector: []float32{0.8, 0.6, 0}},
		{Source: "ups.txt", Ordinal: 0, Text: "battery backup", Vector: []float32{0, 0, 2}},
	}
}

func buildTestIndex(t *testing.T) (string, *SQLiteIndex) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index", "chunks.db")
	require.NoError(t, BuildSQLiteIndex(context.Background(), path, testModel, testEntries()))

	idx, err := OpenSQLiteIndex(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return path, idx
}

func TestSQLiteIndex_SearchOrdersByDistance(t *testing.T) {
	_, idx := buildTestIndex(t)

	hits, err := idx.Search(context.Background(), []float32{2, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "tower signal loss", hits[0].Entry.Text)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	assert.Equal(t, "antenna tilt", hits[1].Entry.Text)
	assert.InDelta(t, 0.2, hits[1].Distance, 1e-6)
	assert.Equal(t, "ups.txt", hits[2].Entry.Source)
	assert.InDelta(t, 1, hits[2].Distance, 1e-6)
}

func TestSQLiteIndex_SearchLimitsToK(t *testing.T) {
	_, idx := buildTestIndex(t)

	hits, err := idx.Search(context.Background(), []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "battery backup", hits[0].Entry.Text)

	hits, err = idx.Search(context.Background(), []float32{0, 0, 1}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSQLiteIndex_TiesKeepInsertionOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ties.db")
	entries := []Entry{
		{Source: "a.txt", Text: "first", Vector: []float32{1, 0}},
		{Source: "b.txt", Text: "second", Vector: []float32{1, 0}},
	}
	require.NoError(t, BuildSQLiteIndex(context.Background(), path, testModel, entries))

	idx, err := OpenSQLiteIndex(context.Background(), path)
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "first", hits[0].Entry.Text)
	assert.Equal(t, "second", hits[1].Entry.Text)
}

func TestSQLiteIndex_DimensionMismatch(t *testing.T) {
	_, idx := buildTestIndex(t)

	_, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSQLiteIndex_Stats(t *testing.T) {
	path, idx := buildTestIndex(t)

	stats, err := idx.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", stats.Backend)
	assert.Equal(t, path, stats.Location)
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, testModel, stats.Model)
	assert.Equal(t, map[string]int{"tower.txt": 2, "ups.txt": 1}, stats.Sources)
}

func TestVerifyModel(t *testing.T) {
	_, idx := buildTestIndex(t)

	assert.NoError(t, VerifyModel(context.Background(), idx, testModel))

	// Same dimension, different model: searches would run but rank by
	// unrelated geometry.
	err := VerifyModel(context.Background(), idx, "text-embedding-3-small")
	assert.ErrorIs(t, err, ErrModelMismatch)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.Contains(t, err.Error(), testModel)
}

func TestOpenSQLiteIndex_Missing(t *testing.T) {
	_, err := OpenSQLiteIndex(context.Background(), filepath.Join(t.TempDir(), "absent.db"))
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestOpenSQLiteIndex_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0o644))

	_, err := OpenSQLiteIndex(context.Background(), path)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestBuildSQLiteIndex_RejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.db")

	err := BuildSQLiteIndex(context.Background(), path, testModel, nil)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	err = BuildSQLiteIndex(context.Background(), path, testModel, []Entry{
		{Source: "a.txt", Text: "a", Vector: []float32{1, 0}},
		{Source: "b.txt", Text: "b", Vector: []float32{1, 0, 0}},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	assert.False(t, IndexExists(path), "failed builds leave no index behind")
}

func TestBuildSQLiteIndex_ReplacesPrevious(t *testing.T) {
	path, _ := buildTestIndex(t)

	require.NoError(t, BuildSQLiteIndex(context.Background(), path, testModel, []Entry{
		{Source: "new.txt", Text: "replacement", Vector: []float32{0, 1}},
	}))

	idx, err := OpenSQLiteIndex(context.Background(), path)
	require.NoError(t, err)
	stats, err := idx.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 2, stats.Dimension)

	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1, "temporary build files are renamed away")
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	decoded, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNormalize_ZeroVector(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, normalize([]float32{0, 0}))
}
