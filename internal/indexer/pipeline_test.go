package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/telecom-rag/internal/chunker"
	"github.com/bull/telecom-rag/internal/corpus"
	"github.com/bull/telecom-rag/internal/embedding"
	"github.com/bull/telecom-rag/internal/storage"
)

type recordingBuilder struct {
	model   string
	entries []storage.Entry
	calls   int
}

func (b *recordingBuilder) Rebuild(_ context.Context, model string, entries []storage.Entry) error {
	b.calls++
	b.model = model
	b.entries = entries
	return nil
}

type failingEmbedder struct{}

func (failingEmbedder) GenerateEmbeddings(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("quota exceeded")
}

func (failingEmbedder) Model() string { return "failing" }

func listTxt(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	require.NoError(t, err)
	return matches
}

func testDirs(t *testing.T) Dirs {
	t.Helper()
	root := t.TempDir()
	dirs := Dirs{
		Raw:       filepath.Join(root, "raw"),
		Processed: filepath.Join(root, "processed"),
		Chunks:    filepath.Join(root, "chunks"),
		Index:     filepath.Join(root, "index"),
	}
	require.NoError(t, os.MkdirAll(dirs.Raw, 0o755))
	return dirs
}

func writeRaw(t *testing.T, dirs Dirs, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Raw, name), []byte(content), 0o644))
}

func TestPreprocess_OutcomesPerFile(t *testing.T) {
	dirs := testDirs(t)
	writeRaw(t, dirs, "tower.txt", "5G tower\nexperienced signal loss!")
	writeRaw(t, dirs, "notes.md", "# UPS\n\nCheck the *battery* backup.")
	writeRaw(t, dirs, "scan.pdf", "%PDF-1.4")
	writeRaw(t, dirs, "symbols.txt", "### *** ###")
	writeRaw(t, dirs, ".hidden", "ignored")

	p := NewPipeline(dirs, nil, nil, nil, nil, 2, nil)
	result, err := p.Preprocess(context.Background())
	require.NoError(t, err)

	byName := map[string]Outcome{}
	for _, o := range result.Outcomes {
		byName[o.Name] = o
	}
	require.Len(t, byName, 4)
	assert.Equal(t, StatusOK, byName["tower.txt"].Status)
	assert.Equal(t, StatusOK, byName["notes.md"].Status)
	assert.Equal(t, StatusFailed, byName["scan.pdf"].Status)
	assert.Contains(t, byName["scan.pdf"].Reason, "extraction failed")
	assert.Equal(t, StatusSkipped, byName["symbols.txt"].Status)
	assert.Equal(t, ErrEmptyContent.Error(), byName["symbols.txt"].Reason)

	data, err := os.ReadFile(filepath.Join(dirs.Processed, "tower.txt"))
	require.NoError(t, err)
	assert.Equal(t, "5G towerexperienced signal loss!", string(data))

	store, err := corpus.NewProcessedStore(dirs.Processed)
	require.NoError(t, err)
	meta, err := store.ReadMetadata()
	require.NoError(t, err)
	assert.Len(t, meta, 2)
	assert.Equal(t, filepath.Join(dirs.Processed, "notes.txt"), meta["notes.md"])
}

func TestPreprocess_DuplicateStemKeepsResolveOrder(t *testing.T) {
	dirs := testDirs(t)
	writeRaw(t, dirs, "site.txt", "plain text version")
	writeRaw(t, dirs, "site.md", "markdown version")

	p := NewPipeline(dirs, nil, nil, nil, nil, 4, nil)
	result, err := p.Preprocess(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Count(StatusOK))
	assert.Equal(t, 1, result.Count(StatusSkipped))

	data, err := os.ReadFile(filepath.Join(dirs.Processed, "site.txt"))
	require.NoError(t, err)
	assert.Equal(t, "plain text version", string(data), ".txt is resolved before .md")
}

func TestPreprocess_MissingRawDir(t *testing.T) {
	dirs := testDirs(t)
	dirs.Raw = filepath.Join(dirs.Raw, "absent")

	_, err := NewPipeline(dirs, nil, nil, nil, nil, 1, nil).Preprocess(context.Background())
	assert.Error(t, err)
}

func TestChunk_CountsMatchChunkFiles(t *testing.T) {
	dirs := testDirs(t)
	writeRaw(t, dirs, "long.txt", strings.Repeat("The rectifier output dropped. ", 40))
	writeRaw(t, dirs, "short.txt", "Antenna tilt adjusted.")

	chk := chunker.New(chunker.WithChunkSize(100), chunker.WithOverlap(10))
	p := NewPipeline(dirs, nil, chk, nil, nil, 2, nil)

	_, err := p.Preprocess(context.Background())
	require.NoError(t, err)
	result, err := p.Chunk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count(StatusOK))

	store, err := corpus.NewChunkStore(dirs.Chunks)
	require.NoError(t, err)
	counts, err := store.ReadCounts()
	require.NoError(t, err)

	assert.Equal(t, 1, counts["short.txt"])
	assert.Greater(t, counts["long.txt"], 1)
	for name, n := range counts {
		chunks, err := store.Read(name)
		require.NoError(t, err)
		assert.Len(t, chunks, n, name)
		for _, c := range chunks {
			assert.LessOrEqual(t, len([]rune(c.Text)), 100)
		}
	}
}

func TestBuildIndex_EmptyCorpusAborts(t *testing.T) {
	dirs := testDirs(t)
	require.NoError(t, os.MkdirAll(dirs.Chunks, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Chunks, "blank.txt"), []byte("\n\n\n\n"), 0o644))

	builder := &recordingBuilder{}
	p := NewPipeline(dirs, nil, nil, embedding.NewHashingEmbedder(32), builder, 1, nil)

	result, err := p.BuildIndex(context.Background())
	assert.ErrorIs(t, err, ErrIndexBuildAborted)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Count(StatusSkipped))

	assert.Zero(t, builder.calls, "no index is written")
	_, statErr := os.Stat(filepath.Join(dirs.Index, corpus.EmbeddingMetadataFile))
	assert.True(t, os.IsNotExist(statErr), "no metadata is written")
}

func TestBuildIndex_EntriesCarrySourceAndOrder(t *testing.T) {
	dirs := testDirs(t)
	store, err := corpus.NewChunkStore(dirs.Chunks)
	require.NoError(t, err)
	require.NoError(t, store.Write("a.txt", []string{"alpha one", "alpha two"}))
	require.NoError(t, store.Write("b.txt", []string{"beta one"}))

	builder := &recordingBuilder{}
	p := NewPipeline(dirs, nil, nil, embedding.NewHashingEmbedder(32), builder, 1, nil)

	result, err := p.BuildIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total())

	require.Len(t, builder.entries, 3)
	assert.Equal(t, "hashing-bow-32", builder.model)
	assert.Equal(t, "a.txt", builder.entries[0].Source)
	assert.Equal(t, 1, builder.entries[1].Ordinal)
	assert.Equal(t, "beta one", builder.entries[2].Text)
	assert.Equal(t, 2, builder.entries[2].Seq)
	for _, e := range builder.entries {
		assert.Len(t, e.Vector, 32)
	}

	var embedded map[string]int
	require.NoError(t, corpus.ReadJSON(filepath.Join(dirs.Index, corpus.EmbeddingMetadataFile), &embedded))
	assert.Equal(t, map[string]int{"a.txt": 2, "b.txt": 1}, embedded)
}

func TestBuildIndex_EmbeddingFailureWritesNothing(t *testing.T) {
	dirs := testDirs(t)
	store, err := corpus.NewChunkStore(dirs.Chunks)
	require.NoError(t, err)
	require.NoError(t, store.Write("a.txt", []string{"alpha"}))

	builder := &recordingBuilder{}
	p := NewPipeline(dirs, nil, nil, failingEmbedder{}, builder, 1, nil)

	_, err = p.BuildIndex(context.Background())
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Zero(t, builder.calls)
}

func TestSync_BuildsSearchableSQLiteIndex(t *testing.T) {
	dirs := testDirs(t)
	writeRaw(t, dirs, "tower.txt", "5G tower experienced signal loss due to severe weather.")
	writeRaw(t, dirs, "ups.txt", "UPS battery backup failed during a power outage at the site.")

	indexPath := filepath.Join(dirs.Index, "chunks.db")
	embedder := embedding.NewHashingEmbedder(64)
	p := NewPipeline(dirs, nil, nil, embedder, storage.NewSQLiteBuilder(indexPath), 2, nil)

	results, err := p.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	idx, err := storage.OpenSQLiteIndex(context.Background(), indexPath)
	require.NoError(t, err)
	defer idx.Close()

	query, err := embedder.GenerateEmbeddings(context.Background(), []string{"tower signal loss"})
	require.NoError(t, err)
	hits, err := idx.Search(context.Background(), query[0], 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "tower.txt", hits[0].Entry.Source)
}

func TestSync_StopsAtAbortedBuild(t *testing.T) {
	dirs := testDirs(t)
	writeRaw(t, dirs, "empty.txt", "   ")

	p := NewPipeline(dirs, nil, nil, embedding.NewHashingEmbedder(8), &recordingBuilder{}, 1, nil)
	results, err := p.Sync(context.Background())
	assert.ErrorIs(t, err, ErrIndexBuildAborted)
	assert.Len(t, results, 3)
}

func TestSync_EmptiedCorpusDropsStaleArtifacts(t *testing.T) {
	dirs := testDirs(t)
	writeRaw(t, dirs, "tower.txt", "5G tower experienced signal loss during storm")

	builder := &recordingBuilder{}
	p := NewPipeline(dirs, nil, nil, embedding.NewHashingEmbedder(16), builder, 1, nil)

	_, err := p.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, builder.calls)

	require.NoError(t, os.Remove(filepath.Join(dirs.Raw, "tower.txt")))

	_, err = p.Sync(context.Background())
	assert.ErrorIs(t, err, ErrIndexBuildAborted)
	assert.Equal(t, 1, builder.calls, "no index is rebuilt from stale chunks")
	assert.Empty(t, listTxt(t, dirs.Processed))
	assert.Empty(t, listTxt(t, dirs.Chunks))
}

func TestSync_DocumentNowEmptyIsNotReindexed(t *testing.T) {
	dirs := testDirs(t)
	writeRaw(t, dirs, "tower.txt", "Tower alarm raised after storm damage.")
	writeRaw(t, dirs, "ups.txt", "UPS battery replaced at the hub site.")

	builder := &recordingBuilder{}
	p := NewPipeline(dirs, nil, nil, embedding.NewHashingEmbedder(16), builder, 2, nil)

	_, err := p.Sync(context.Background())
	require.NoError(t, err)

	writeRaw(t, dirs, "tower.txt", "   ")
	_, err = p.Sync(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, builder.calls)
	for _, e := range builder.entries {
		assert.Equal(t, "ups.txt", e.Source)
	}
	assert.NoFileExists(t, filepath.Join(dirs.Chunks, "tower.txt"))
}
