// Package assistant answers field-engineer queries: it gates the query to
// the telecom domain, retrieves supporting passages and asks the language
// model for a structured answer.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bull/telecom-rag/internal/corpus"
	"github.com/bull/telecom-rag/internal/gate"
	"github.com/bull/telecom-rag/internal/llm"
	"github.com/bull/telecom-rag/internal/prompt"
	"github.com/bull/telecom-rag/internal/retrieval"
)

// OutOfScopeMessage is returned for queries the domain gate rejects.
const OutOfScopeMessage = "WARNING: This query is outside the scope of telecom-related topics."

// DefaultGenerationTimeout bounds a single language model call.
const DefaultGenerationTimeout = 60 * time.Second

// Query is one user request. K <= 0 uses the retriever default and a nil
// Threshold uses retrieval.DefaultThreshold; 0 keeps every passage.
type Query struct {
	Text      string
	Type      prompt.OutputType
	K         int
	Threshold *float64
}

// Response is the answer to a Query. Source names the chunk file of the
// first passage used, or retrieval.NoRelevantDocument when none passed the
// threshold. It is empty for out-of-scope queries and errors.
type Response struct {
	Text        string            `json:"text"`
	Source      string            `json:"source,omitempty"`
	RawDocument string            `json:"raw_document,omitempty"` // Original file behind Source, when found
	Type        prompt.OutputType `json:"type"`
}

// Retriever finds passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, threshold float64) ([]retrieval.Result, error)
}

// Options tunes an Assistant.
type Options struct {
	GenerationTimeout time.Duration // <= 0 uses DefaultGenerationTimeout
	RawDir            string        // Enables RawDocument resolution when set
	MaxPromptChars    int           // <= 0 uses the language model's default budget
}

// Assistant orchestrates a single query. It holds no per-query state and is
// safe for concurrent use.
type Assistant struct {
	gate      *gate.Gate
	templates *prompt.Templates
	retriever Retriever
	generator llm.Generator
	opts      Options
	logger    *slog.Logger
}

// New creates an assistant. A nil gate uses the default vocabulary, nil
// templates use the built-in ones and a nil logger uses slog.Default().
func New(g *gate.Gate, templates *prompt.Templates, retriever Retriever, generator llm.Generator, opts Options, logger *slog.Logger) *Assistant {
	if g == nil {
		g = gate.Default()
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = DefaultGenerationTimeout
	}
	if opts.MaxPromptChars <= 0 {
		opts.MaxPromptChars = llm.DefaultMaxPromptTokens * llm.CharsPerToken
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		gate:      g,
		templates: templates,
		retriever: retriever,
		generator: generator,
		opts:      opts,
		logger:    logger,
	}
}

// Ask answers q. Failures are reported in the response text as
// "Error: <message>" rather than returned.
func (a *Assistant) Ask(ctx context.Context, q Query) Response {
	if !a.gate.Allows(q.Text) {
		a.logger.Info("Query rejected by domain gate", "type", q.Type.String())
		return Response{Text: OutOfScopeMessage, Type: q.Type}
	}

	resp, err := a.answer(ctx, q)
	if err != nil {
		a.logger.Error("Error generating response", "type", q.Type.String(), "error", err)
		return Response{Text: "Error: " + err.Error(), Type: q.Type}
	}
	return resp
}

func (a *Assistant) answer(ctx context.Context, q Query) (Response, error) {
	threshold := retrieval.DefaultThreshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}
	results, err := a.retriever.Retrieve(ctx, q.Text, q.K, threshold)
	if err != nil {
		return Response{}, fmt.Errorf("retrieve passages: %w", err)
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	rendered := a.templates.Render(q.Type, a.fitContext(q, texts), q.Text)

	genCtx, cancel := context.WithTimeout(ctx, a.opts.GenerationTimeout)
	defer cancel()

	text, err := a.generator.Generate(genCtx, rendered)
	if err != nil {
		return Response{}, fmt.Errorf("generate answer: %w", err)
	}

	resp := Response{Text: text, Source: retrieval.NoRelevantDocument, Type: q.Type}
	for _, r := range results {
		if !r.IsSentinel() {
			resp.Source = r.Source
			break
		}
	}
	if resp.Source != retrieval.NoRelevantDocument && a.opts.RawDir != "" {
		if raw, ok := corpus.ResolveRawDocument(a.opts.RawDir, resp.Source); ok {
			resp.RawDocument = raw
		}
	}

	a.logger.Debug("Answered query",
		"type", q.Type.String(),
		"passages", len(results),
		"source", resp.Source)
	return resp, nil
}

// fitContext joins passages in rank order, dropping the lowest ranked ones
// and then cutting the rest so the rendered prompt stays within
// MaxPromptChars with the question intact.
func (a *Assistant) fitContext(q Query, texts []string) string {
	joined := strings.Join(texts, "\n\n")
	overhead := len(a.templates.Render(q.Type, "", q.Text))
	uses := max(strings.Count(a.templates.Template(q.Type), prompt.ContextPlaceholder), 1)
	budget := (a.opts.MaxPromptChars - overhead) / uses
	if len(joined) <= budget {
		return joined
	}

	var b strings.Builder
	kept := 0
	for _, text := range texts {
		sep := 0
		if kept > 0 {
			sep = 2
		}
		if b.Len()+sep+len(text) > budget {
			break
		}
		if sep > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		kept++
	}
	if kept == 0 && budget > 0 {
		cut := min(budget, len(texts[0]))
		for cut > 0 && !utf8.RuneStart(texts[0][cut]) {
			cut--
		}
		b.WriteString(texts[0][:cut])
		kept = 1
	}

	a.logger.Warn("Context trimmed to fit prompt budget",
		"passages", len(texts),
		"kept", kept,
		"from_chars", len(joined),
		"to_chars", b.Len())
	return b.String()
}
