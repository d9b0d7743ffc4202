// Package corpus persists the intermediate artifacts of the offline pipeline:
// normalized documents, chunk files and their JSON metadata maps.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// ProcessedExt is the extension of normalized document and chunk files.
	ProcessedExt = ".txt"

	// ProcessedMetadataFile maps original filename -> processed file path.
	ProcessedMetadataFile = "processed_metadata.json"
	// ChunkMetadataFile maps document filename -> chunk count.
	ChunkMetadataFile = "chunk_metadata.json"
	// EmbeddingMetadataFile maps document filename -> embedded chunk count.
	EmbeddingMetadataFile = "embedding_metadata.json"

	// chunkDelimiter separates chunks inside a chunk file.
	chunkDelimiter = "\n\n"
)

// ProcessedDocument is the normalized text of one raw document.
type ProcessedDocument struct {
	Name string // Processed filename: "site-survey.txt"
	Text string
}

// Chunk is a passage read back from a chunk file.
type Chunk struct {
	Source string // Chunk filename the passage came from
	Index  int
	Text   string
}

// ProcessedName returns the processed filename for a raw filename.
// "Site Survey.docx" -> "Site Survey.txt"
func ProcessedName(rawName string) string {
	return strings.TrimSuffix(rawName, filepath.Ext(rawName)) + ProcessedExt
}

// ProcessedStore reads and writes normalized documents in a directory.
type ProcessedStore struct {
	dir string
}

// NewProcessedStore creates the directory if needed.
func NewProcessedStore(dir string) (*ProcessedStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create processed dir: %w", err)
	}
	return &ProcessedStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *ProcessedStore) Dir() string { return s.dir }

// Write stores the normalized text of rawName and returns the written path.
func (s *ProcessedStore) Write(rawName, text string) (string, error) {
	path := filepath.Join(s.dir, ProcessedName(rawName))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write processed document: %w", err)
	}
	return path, nil
}

// Read returns a processed document by its processed filename.
func (s *ProcessedStore) Read(name string) (*ProcessedDocument, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("read processed document: %w", err)
	}
	return &ProcessedDocument{Name: name, Text: string(data)}, nil
}

// List returns the processed document filenames, sorted.
func (s *ProcessedStore) List() ([]string, error) {
	return listTextFiles(s.dir)
}

// Prune removes processed documents whose names are not in keep and returns
// the removed names.
func (s *ProcessedStore) Prune(keep map[string]bool) ([]string, error) {
	return pruneTextFiles(s.dir, keep)
}

// WriteMetadata writes processed_metadata.json.
func (s *ProcessedStore) WriteMetadata(m map[string]string) error {
	return WriteJSON(filepath.Join(s.dir, ProcessedMetadataFile), m)
}

// ReadMetadata reads processed_metadata.json.
func (s *ProcessedStore) ReadMetadata() (map[string]string, error) {
	m := map[string]string{}
	err := ReadJSON(filepath.Join(s.dir, ProcessedMetadataFile), &m)
	return m, err
}

// ChunkStore reads and writes chunk files in a directory.
type ChunkStore struct {
	dir string
}

// NewChunkStore creates the directory if needed.
func NewChunkStore(dir string) (*ChunkStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}
	return &ChunkStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *ChunkStore) Dir() string { return s.dir }

// Write stores the chunks of document name, each followed by a blank line.
func (s *ChunkStore) Write(name string, chunks []string) error {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c)
		b.WriteString(chunkDelimiter)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write chunk file: %w", err)
	}
	return nil
}

// Read returns the chunks of a chunk file exactly as written, skipping
// blank parts.
func (s *ChunkStore) Read(name string) ([]Chunk, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("read chunk file: %w", err)
	}

	var chunks []Chunk
	for _, part := range strings.Split(string(data), chunkDelimiter) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, Chunk{Source: name, Index: len(chunks), Text: part})
	}
	return chunks, nil
}

// List returns the chunk filenames, sorted.
func (s *ChunkStore) List() ([]string, error) {
	return listTextFiles(s.dir)
}

// Prune removes chunk files whose names are not in keep and returns the
// removed names.
func (s *ChunkStore) Prune(keep map[string]bool) ([]string, error) {
	return pruneTextFiles(s.dir, keep)
}

// WriteCounts writes chunk_metadata.json.
func (s *ChunkStore) WriteCounts(m map[string]int) error {
	return WriteJSON(filepath.Join(s.dir, ChunkMetadataFile), m)
}

// ReadCounts reads chunk_metadata.json.
func (s *ChunkStore) ReadCounts() (map[string]int, error) {
	m := map[string]int{}
	err := ReadJSON(filepath.Join(s.dir, ChunkMetadataFile), &m)
	return m, err
}

// listTextFiles returns regular *.txt files in dir, sorted by name.
func listTextFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ProcessedExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func pruneTextFiles(dir string, keep map[string]bool) ([]string, error) {
	names, err := listTextFiles(dir)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, name := range names {
		if keep[name] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove stale %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

// WriteJSON writes v as indented JSON, replacing path atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
