package mcp

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/telecom-rag/internal/assistant"
	"github.com/bull/telecom-rag/internal/corpus"
	ghclient "github.com/bull/telecom-rag/internal/github"
	"github.com/bull/telecom-rag/internal/prompt"
	"github.com/bull/telecom-rag/internal/retrieval"
	"github.com/bull/telecom-rag/internal/storage"
)

type fakeAsker struct {
	got  assistant.Query
	resp assistant.Response
}

func (f *fakeAsker) Ask(_ context.Context, q assistant.Query) assistant.Response {
	f.got = q
	resp := f.resp
	resp.Type = q.Type
	return resp
}

type fakeRetriever struct {
	k         int
	threshold float64
	results   []retrieval.Result
	err       error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, k int, threshold float64) ([]retrieval.Result, error) {
	f.k, f.threshold = k, threshold
	return f.results, f.err
}

type fakeIndex struct {
	stats *storage.Stats
}

func (f *fakeIndex) Search(context.Context, []float32, int) ([]storage.Hit, error) { return nil, nil }
func (f *fakeIndex) Stats(context.Context) (*storage.Stats, error)                  { return f.stats, nil }
func (f *fakeIndex) Close() error                                                   { return nil }

func testConfig() (*Config, *fakeAsker, *fakeRetriever) {
	asker := &fakeAsker{resp: assistant.Response{Text: "## Summary\nok", Source: "tower.txt"}}
	retriever := &fakeRetriever{}
	cfg := &Config{
		Assistant:        asker,
		Retriever:        retriever,
		Index:            &fakeIndex{stats: &storage.Stats{Backend: "sqlite", Entries: 2, Dimension: 8, Model: "hashing-bow-8", Sources: map[string]int{"tower.txt": 2}}},
		DefaultK:         3,
		DefaultThreshold: 0.7,
	}
	NewServer(cfg)
	return cfg, asker, retriever
}

func TestAskHandlerAppliesDefaults(t *testing.T) {
	cfg, asker, _ := testConfig()
	handler := makeAskHandler(cfg)

	_, out, err := handler(t.Context(), nil, AskInput{Query: "tower alarm", Type: "sop"})
	require.NoError(t, err)

	assert.Equal(t, 3, asker.got.K)
	require.NotNil(t, asker.got.Threshold)
	assert.Equal(t, 0.7, *asker.got.Threshold)
	assert.Equal(t, prompt.SOP, asker.got.Type)
	assert.Equal(t, "sop", out.Type)
	assert.Equal(t, "tower.txt", out.Source)
	assert.False(t, out.OutOfScope)
	assert.Empty(t, out.TypeWarning)
}

func TestAskHandlerZeroThresholdIsExplicit(t *testing.T) {
	cfg, asker, _ := testConfig()
	zero := 0.0

	_, _, err := makeAskHandler(cfg)(t.Context(), nil, AskInput{Query: "tower alarm", K: 5, Threshold: &zero})
	require.NoError(t, err)
	assert.Equal(t, 5, asker.got.K)
	require.NotNil(t, asker.got.Threshold)
	assert.Equal(t, 0.0, *asker.got.Threshold)
}

func TestAskHandlerUnknownTypeWarns(t *testing.T) {
	cfg, asker, _ := testConfig()

	_, out, err := makeAskHandler(cfg)(t.Context(), nil, AskInput{Query: "tower alarm", Type: "memo"})
	require.NoError(t, err)
	assert.Equal(t, prompt.Default, asker.got.Type)
	assert.Equal(t, "Unknown document type 'memo', defaulting to generic response.", out.TypeWarning)
}

func TestAskHandlerOutOfScope(t *testing.T) {
	cfg, asker, _ := testConfig()
	asker.resp = assistant.Response{Text: assistant.OutOfScopeMessage}

	_, out, err := makeAskHandler(cfg)(t.Context(), nil, AskInput{Query: "best pizza"})
	require.NoError(t, err)
	assert.True(t, out.OutOfScope)
	assert.Empty(t, out.Source)
}

func TestAskHandlerRejectsBadInput(t *testing.T) {
	cfg, _, _ := testConfig()
	handler := makeAskHandler(cfg)

	_, _, err := handler(t.Context(), nil, AskInput{})
	assert.Error(t, err)

	bad := 1.5
	_, _, err = handler(t.Context(), nil, AskInput{Query: "tower", Threshold: &bad})
	assert.Error(t, err)
}

func TestRetrieveHandler(t *testing.T) {
	cfg, _, retriever := testConfig()
	retriever.results = []retrieval.Result{{Text: "alarm", Source: "tower.txt", Similarity: 0.9}}

	_, out, err := makeRetrieveHandler(cfg)(t.Context(), nil, RetrieveInput{Query: "alarm"})
	require.NoError(t, err)
	assert.Equal(t, 3, retriever.k)
	assert.Equal(t, 0.7, retriever.threshold)
	assert.Len(t, out.Results, 1)
	assert.Empty(t, out.Message)
}

func TestRetrieveHandlerSentinel(t *testing.T) {
	cfg, _, retriever := testConfig()
	retriever.results = []retrieval.Result{retrieval.Sentinel()}

	_, out, err := makeRetrieveHandler(cfg)(t.Context(), nil, RetrieveInput{Query: "alarm"})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Equal(t, retrieval.NoRelevantDocument, out.Message)
}

func TestRetrieveHandlerError(t *testing.T) {
	cfg, _, retriever := testConfig()
	retriever.err = errors.New("embedding service down")

	_, _, err := makeRetrieveHandler(cfg)(t.Context(), nil, RetrieveInput{Query: "alarm"})
	assert.ErrorContains(t, err, "embedding service down")
}

func TestStatusHandlerReadsMetadata(t *testing.T) {
	cfg, _, _ := testConfig()
	cfg.IndexDir = t.TempDir()

	require.NoError(t, corpus.WriteJSON(filepath.Join(cfg.IndexDir, corpus.EmbeddingMetadataFile), map[string]int{"tower.txt": 2}))
	fetchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ghclient.WriteFetchMetadata(cfg.IndexDir, &ghclient.FetchResult{CommitSHA: "abc123", FetchedAt: fetchedAt}))

	_, out, err := makeStatusHandler(cfg)(t.Context(), nil, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", out.Backend)
	assert.Equal(t, 2, out.Entries)
	assert.Equal(t, "hashing-bow-8", out.Model)
	assert.Equal(t, map[string]int{"tower.txt": 2}, out.Embedded)
	assert.Equal(t, "abc123", out.SourceCommit)
	require.NotNil(t, out.FetchedAt)
	assert.True(t, fetchedAt.Equal(*out.FetchedAt))
}

func TestStatusHandlerWithoutMetadata(t *testing.T) {
	cfg, _, _ := testConfig()
	cfg.IndexDir = t.TempDir()

	_, out, err := makeStatusHandler(cfg)(t.Context(), nil, StatusInput{})
	require.NoError(t, err)
	assert.Nil(t, out.Embedded)
	assert.Empty(t, out.SourceCommit)
	assert.Nil(t, out.FetchedAt)
}

func TestServerListsTools(t *testing.T) {
	cfg, _, _ := testConfig()
	server := NewServer(cfg)
	ctx := t.Context()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ask_telecom", "retrieve_passages", "get_index_status"}, names)
}
