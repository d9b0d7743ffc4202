// Package loader extracts plain text from raw corpus files.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for files no loader handles.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtraction wraps failures raised while reading a supported file.
	ErrExtraction = errors.New("text extraction failed")
)

// RawDocument is a corpus file as read from disk.
type RawDocument struct {
	Name    string // Original filename: "site-survey.docx"
	Content []byte
	Format  string // Lower-case extension without dot: "docx"
}

// Loader turns a raw document into plain text.
type Loader interface {
	Extract(doc *RawDocument) (string, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(doc *RawDocument) (string, error)

// Extract calls f(doc).
func (f LoaderFunc) Extract(doc *RawDocument) (string, error) { return f(doc) }

// Registry maps file extensions to loaders.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry returns a registry with the built-in loaders for
// .pdf, .docx, .txt and .md files.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	r.Register("pdf", LoaderFunc(extractPDF))
	r.Register("txt", LoaderFunc(extractPlainText))
	r.Register("md", NewMarkdown())
	r.Register("docx", LoaderFunc(extractDocx))
	return r
}

// Register adds or replaces the loader for an extension ("pdf" or ".pdf").
func (r *Registry) Register(ext string, l Loader) {
	r.loaders[normalizeExt(ext)] = l
}

// Supports reports whether a loader exists for the file's extension.
func (r *Registry) Supports(name string) bool {
	_, ok := r.loaders[normalizeExt(filepath.Ext(name))]
	return ok
}

// Extensions returns the registered extensions, sorted, with leading dots.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, "."+ext)
	}
	sort.Strings(exts)
	return exts
}

// Load reads the file at path and extracts its text.
// Returns ErrUnsupportedFormat or an error wrapping ErrExtraction.
func (r *Registry) Load(path string) (*RawDocument, string, error) {
	name := filepath.Base(path)
	format := normalizeExt(filepath.Ext(name))

	l, ok := r.loaders[format]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %v", ErrExtraction, name, err)
	}

	doc := &RawDocument{Name: name, Content: content, Format: format}
	text, err := l.Extract(doc)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrExtraction, name, err)
	}

	return doc, text, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func extractPlainText(doc *RawDocument) (string, error) {
	return string(doc.Content), nil
}
