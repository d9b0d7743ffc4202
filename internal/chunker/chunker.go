// Package chunker splits normalized document text into bounded, overlapping
// passages, preferring to break at natural boundaries.
package chunker

import "strings"

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 512

	// DefaultChunkOverlap is the number of trailing characters of a chunk
	// repeated at the start of the next one.
	DefaultChunkOverlap = 50
)

// DefaultSeparators lists split points from coarsest to finest: paragraph
// break, line break, sentence terminator, space, then single characters.
var DefaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

// Chunk is one passage of a document.
type Chunk struct {
	Index int    // Position in document (0, 1, 2...)
	Text  string // At most the configured size in characters
}

// Chunker splits text recursively by a separator hierarchy, then merges the
// pieces into overlapping chunks.
type Chunker struct {
	size       int
	overlap    int
	separators [][]rune
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithSeparators replaces the separator hierarchy. The empty separator is
// appended when missing so splitting always terminates.
func WithSeparators(separators []string) Option {
	return func(c *Chunker) {
		if len(separators) > 0 {
			c.separators = toRunes(separators)
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:       DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: toRunes(DefaultSeparators),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Ensure overlap leaves room for new content in every chunk
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}

	if last := c.separators[len(c.separators)-1]; len(last) != 0 {
		c.separators = append(c.separators, nil)
	}

	return c
}

// Size returns the maximum chunk length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunks of text in document order. Whitespace-only text
// yields no chunks and text no longer than the chunk size yields exactly one.
// Every chunk after the first begins with the final Overlap() characters of
// the previous chunk.
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.size {
		return []Chunk{{Index: 0, Text: text}}
	}

	// Pieces must leave room for the overlap carried into each chunk.
	budget := c.size - c.overlap
	pieces := c.split(runes, span{0, len(runes)}, c.separators, budget, nil)

	return c.merge(runes, pieces)
}

// span is a half-open rune range [start, end).
type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// split breaks s into pieces no longer than budget using the coarsest
// separator that occurs in it, recursing with finer separators for pieces
// that are still too long.
func (c *Chunker) split(runes []rune, s span, separators [][]rune, budget int, out []span) []span {
	if s.len() <= budget {
		return append(out, s)
	}

	for i, sep := range separators {
		if len(sep) == 0 {
			for start := s.start; start < s.end; start += budget {
				out = append(out, span{start, min(start+budget, s.end)})
			}
			return out
		}

		parts := cut(runes, s, sep)
		if len(parts) < 2 {
			continue
		}
		for _, p := range parts {
			out = c.split(runes, p, separators[i+1:], budget, out)
		}
		return out
	}

	return append(out, s)
}

// merge packs consecutive pieces into chunks of at most c.size runes.
// Each chunk after the first starts c.overlap runes before the end of the
// previous chunk.
func (c *Chunker) merge(runes []rune, pieces []span) []Chunk {
	var chunks []Chunk

	start := pieces[0].start
	for i := 0; i < len(pieces); {
		// Every piece fits after the overlap, so each chunk takes at least one.
		end := pieces[i].end
		i++
		for i < len(pieces) && pieces[i].end-start <= c.size {
			end = pieces[i].end
			i++
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
		})

		start = end - c.overlap
	}

	return chunks
}

// cut splits s after every occurrence of sep. The separator stays at the end
// of the piece it terminates, so the pieces concatenate back to s.
func cut(runes []rune, s span, sep []rune) []span {
	var parts []span

	last := s.start
	for i := s.start; i+len(sep) <= s.end; {
		if hasPrefixAt(runes, i, sep) {
			parts = append(parts, span{last, i + len(sep)})
			i += len(sep)
			last = i
			continue
		}
		i++
	}
	if last < s.end {
		parts = append(parts, span{last, s.end})
	}

	return parts
}

func hasPrefixAt(runes []rune, at int, sep []rune) bool {
	for j, r := range sep {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}

func toRunes(separators []string) [][]rune {
	out := make([][]rune, len(separators))
	for i, sep := range separators {
		out[i] = []rune(sep)
	}
	return out
}
