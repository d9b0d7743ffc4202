// Package indexer runs the offline pipeline: raw documents are normalized,
// split into chunks, embedded and written to the vector index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bull/telecom-rag/internal/chunker"
	"github.com/bull/telecom-rag/internal/corpus"
	"github.com/bull/telecom-rag/internal/loader"
	"github.com/bull/telecom-rag/internal/storage"
	"github.com/bull/telecom-rag/internal/textnorm"
)

// Embedder turns chunk texts into vectors. Model names the embedding model
// and is recorded with the index.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Dirs locates the pipeline's inputs and outputs.
type Dirs struct {
	Raw       string
	Processed string
	Chunks    string
	Index     string // Directory receiving embedding_metadata.json
}

// Pipeline orchestrates the offline stages. Embedder and builder are only
// needed by BuildIndex and may be nil otherwise.
type Pipeline struct {
	dirs     Dirs
	loaders  *loader.Registry
	chunker  *chunker.Chunker
	embedder Embedder
	builder  storage.Builder
	workers  int
	logger   *slog.Logger
}

// NewPipeline creates a pipeline. workers <= 0 runs one file at a time.
func NewPipeline(
	dirs Dirs,
	loaders *loader.Registry,
	chk *chunker.Chunker,
	embedder Embedder,
	builder storage.Builder,
	workers int,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if loaders == nil {
		loaders = loader.NewRegistry()
	}
	if chk == nil {
		chk = chunker.New()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		dirs:     dirs,
		loaders:  loaders,
		chunker:  chk,
		embedder: embedder,
		builder:  builder,
		workers:  workers,
		logger:   logger,
	}
}

// Preprocess extracts and normalizes every raw document and writes
// processed_metadata.json. Unsupported, unreadable and empty documents are
// skipped and reported in the result. Processed files not produced by this
// run are removed, so deleted or now-failing documents drop out of later
// stages.
func (p *Pipeline) Preprocess(ctx context.Context) (*StageResult, error) {
	start := time.Now()
	result := &StageResult{Stage: "preprocess"}

	names, err := listFiles(p.dirs.Raw)
	if err != nil {
		return nil, fmt.Errorf("list raw documents: %w", err)
	}

	store, err := corpus.NewProcessedStore(p.dirs.Processed)
	if err != nil {
		return nil, err
	}

	names = p.orderByResolveOrder(names)
	result.Outcomes = make([]Outcome, len(names))
	claimed := make(map[string]string, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, name := range names {
		target := corpus.ProcessedName(name)
		if first, dup := claimed[target]; dup && p.loaders.Supports(name) {
			result.Outcomes[i] = Outcome{
				Name:   name,
				Status: StatusSkipped,
				Reason: fmt.Sprintf("processed name %s already taken by %s", target, first),
			}
			p.logger.Warn("Skipping document with duplicate stem", "file", name, "kept", first)
			continue
		}
		if p.loaders.Supports(name) {
			claimed[target] = name
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result.Outcomes[i] = p.preprocessOne(store, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	processed := make(map[string]string)
	keep := make(map[string]bool)
	for _, o := range result.Outcomes {
		if o.Status == StatusOK {
			processed[o.Name] = o.Output
			keep[filepath.Base(o.Output)] = true
		}
	}
	removed, err := store.Prune(keep)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		p.logger.Info("Removed stale processed documents", "files", removed)
	}
	if err := store.WriteMetadata(processed); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	p.logStage(result)
	return result, nil
}

func (p *Pipeline) preprocessOne(store *corpus.ProcessedStore, name string) Outcome {
	_, raw, err := p.loaders.Load(filepath.Join(p.dirs.Raw, name))
	if err != nil {
		status := StatusFailed
		if errors.Is(err, loader.ErrUnsupportedFormat) {
			status = StatusSkipped
		}
		p.logger.Warn("Skipping document", "file", name, "error", err)
		return Outcome{Name: name, Status: status, Reason: err.Error()}
	}

	text := textnorm.Normalize(raw)
	if text == "" {
		p.logger.Warn("Skipping document", "file", name, "error", ErrEmptyContent)
		return Outcome{Name: name, Status: StatusSkipped, Reason: ErrEmptyContent.Error()}
	}

	path, err := store.Write(name, text)
	if err != nil {
		p.logger.Warn("Failed to write processed document", "file", name, "error", err)
		return Outcome{Name: name, Status: StatusFailed, Reason: err.Error()}
	}

	p.logger.Debug("Processed document", "file", name, "chars", len(text))
	return Outcome{Name: name, Status: StatusOK, Output: path, Count: 1}
}

// Chunk splits every processed document and writes one chunk file per
// document plus chunk_metadata.json. Chunk files without a freshly chunked
// document are removed.
func (p *Pipeline) Chunk(ctx context.Context) (*StageResult, error) {
	start := time.Now()
	result := &StageResult{Stage: "chunk"}

	processed, err := corpus.NewProcessedStore(p.dirs.Processed)
	if err != nil {
		return nil, err
	}
	chunks, err := corpus.NewChunkStore(p.dirs.Chunks)
	if err != nil {
		return nil, err
	}

	names, err := processed.List()
	if err != nil {
		return nil, fmt.Errorf("list processed documents: %w", err)
	}
	result.Outcomes = make([]Outcome, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result.Outcomes[i] = p.chunkOne(processed, chunks, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	keep := make(map[string]bool)
	for _, o := range result.Outcomes {
		if o.Status == StatusOK {
			counts[o.Name] = o.Count
			keep[o.Name] = true
		}
	}
	removed, err := chunks.Prune(keep)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		p.logger.Info("Removed stale chunk files", "files", removed)
	}
	if err := chunks.WriteCounts(counts); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	p.logStage(result)
	return result, nil
}

func (p *Pipeline) chunkOne(processed *corpus.ProcessedStore, chunks *corpus.ChunkStore, name string) Outcome {
	doc, err := processed.Read(name)
	if err != nil {
		p.logger.Warn("Failed to read processed document", "file", name, "error", err)
		return Outcome{Name: name, Status: StatusFailed, Reason: err.Error()}
	}

	pieces := p.chunker.Split(doc.Text)
	if len(pieces) == 0 {
		p.logger.Warn("Skipping document", "file", name, "error", ErrEmptyContent)
		return Outcome{Name: name, Status: StatusSkipped, Reason: ErrEmptyContent.Error()}
	}

	texts := make([]string, len(pieces))
	for i, c := range pieces {
		texts[i] = c.Text
	}
	if err := chunks.Write(name, texts); err != nil {
		p.logger.Warn("Failed to write chunk file", "file", name, "error", err)
		return Outcome{Name: name, Status: StatusFailed, Reason: err.Error()}
	}

	p.logger.Debug("Chunked document", "file", name, "chunks", len(texts))
	return Outcome{Name: name, Status: StatusOK, Output: filepath.Join(chunks.Dir(), name), Count: len(texts)}
}

// BuildIndex embeds every chunk and replaces the vector index, then writes
// embedding_metadata.json. When no chunk exists it returns
// ErrIndexBuildAborted and writes nothing.
func (p *Pipeline) BuildIndex(ctx context.Context) (*StageResult, error) {
	if p.embedder == nil || p.builder == nil {
		return nil, errors.New("build index: pipeline has no embedder or index builder")
	}

	start := time.Now()
	result := &StageResult{Stage: "index"}

	store, err := corpus.NewChunkStore(p.dirs.Chunks)
	if err != nil {
		return nil, err
	}
	names, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("list chunk files: %w", err)
	}

	var entries []storage.Entry
	for _, name := range names {
		chunks, err := store.Read(name)
		if err != nil {
			p.logger.Warn("Failed to read chunk file", "file", name, "error", err)
			result.Outcomes = append(result.Outcomes, Outcome{Name: name, Status: StatusFailed, Reason: err.Error()})
			continue
		}
		if len(chunks) == 0 {
			p.logger.Warn("Skipping chunk file", "file", name, "error", ErrEmptyContent)
			result.Outcomes = append(result.Outcomes, Outcome{Name: name, Status: StatusSkipped, Reason: ErrEmptyContent.Error()})
			continue
		}

		for _, c := range chunks {
			entries = append(entries, storage.Entry{
				Seq:     len(entries),
				Source:  c.Source,
				Ordinal: c.Index,
				Text:    c.Text,
			})
		}
		result.Outcomes = append(result.Outcomes, Outcome{Name: name, Status: StatusOK, Count: len(chunks)})
	}

	if len(entries) == 0 {
		result.Duration = time.Since(start)
		p.logStage(result)
		return result, ErrIndexBuildAborted
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
	}
	p.logger.Info("Generating embeddings", "chunks", len(texts))

	vectors, err := p.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(entries) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(entries))
	}
	for i := range entries {
		entries[i].Vector = vectors[i]
	}

	if err := p.builder.Rebuild(ctx, p.embedder.Model(), entries); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}

	embedded := make(map[string]int)
	for _, o := range result.Outcomes {
		if o.Status == StatusOK {
			embedded[o.Name] = o.Count
		}
	}
	if p.dirs.Index != "" {
		if err := os.MkdirAll(p.dirs.Index, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		if err := corpus.WriteJSON(filepath.Join(p.dirs.Index, corpus.EmbeddingMetadataFile), embedded); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(start)
	p.logStage(result)
	return result, nil
}

// Sync runs Preprocess, Chunk and BuildIndex in order, stopping at the
// first stage error.
func (p *Pipeline) Sync(ctx context.Context) ([]*StageResult, error) {
	stages := []func(context.Context) (*StageResult, error){p.Preprocess, p.Chunk, p.BuildIndex}

	var results []*StageResult
	for _, stage := range stages {
		res, err := stage(ctx)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (p *Pipeline) logStage(r *StageResult) {
	p.logger.Info("Stage complete",
		"stage", r.Stage,
		"ok", r.Count(StatusOK),
		"skipped", r.Count(StatusSkipped),
		"failed", r.Count(StatusFailed),
		"duration", r.Duration,
	)
}

// orderByResolveOrder sorts names so that, among files sharing a stem, the
// one raw-document resolution would find comes first.
func (p *Pipeline) orderByResolveOrder(names []string) []string {
	rank := func(name string) int {
		ext := filepath.Ext(name)
		if i := slices.Index(corpus.RawExtensions, ext); i >= 0 {
			return i
		}
		return len(corpus.RawExtensions)
	}

	out := slices.Clone(names)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := corpus.ProcessedName(out[i]), corpus.ProcessedName(out[j])
		if si != sj {
			return si < sj
		}
		if ri, rj := rank(out[i]), rank(out[j]); ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

// listFiles returns the regular, non-hidden files in dir, sorted.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
