// Package mcp exposes the telecom assistant as Model Context Protocol tools.
package mcp

import (
	"time"

	"github.com/bull/telecom-rag/internal/retrieval"
)

// AskInput defines the input parameters for the ask_telecom tool.
type AskInput struct {
	// Query is the field engineer's question.
	Query string `json:"query" jsonschema:"The telecom question to answer"`
	// Type selects the answer structure.
	Type string `json:"type,omitempty" jsonschema:"Answer structure: report, sop, summary or default"`
	// K is the number of passages to retrieve.
	K int `json:"k,omitempty" jsonschema:"Number of passages to retrieve (default from server config)"`
	// Threshold is the minimum similarity a passage needs. Nil uses the server default.
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"Minimum similarity between 0 and 1"`
}

// AskOutput contains the generated answer.
type AskOutput struct {
	Answer string `json:"answer"`
	// Source is the chunk file of the first passage used.
	Source      string `json:"source,omitempty"`
	RawDocument string `json:"raw_document,omitempty"`
	Type        string `json:"type"`
	// OutOfScope is set when the query was rejected before retrieval.
	OutOfScope bool `json:"out_of_scope"`
	// TypeWarning reports an unrecognized Type that fell back to default.
	TypeWarning string `json:"type_warning,omitempty"`
}

// RetrieveInput defines the input parameters for the retrieve_passages tool.
type RetrieveInput struct {
	Query     string   `json:"query" jsonschema:"Text to search the index for"`
	K         int      `json:"k,omitempty" jsonschema:"Maximum number of passages"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"Minimum similarity between 0 and 1"`
}

// RetrieveOutput contains the passages that passed the threshold.
type RetrieveOutput struct {
	Results []retrieval.Result `json:"results"`
	Message string             `json:"message,omitempty"`
}

// StatusInput defines the input parameters for the get_index_status tool.
// This tool takes no parameters.
type StatusInput struct{}

// StatusOutput describes the loaded index.
type StatusOutput struct {
	Backend   string         `json:"backend"`
	Location  string         `json:"location"`
	Entries   int            `json:"entries"`
	Dimension int            `json:"dimension"`
	Model     string         `json:"embedding_model,omitempty"`
	Sources   map[string]int `json:"sources"`
	// Embedded is the per-document chunk count recorded by the last build.
	Embedded map[string]int `json:"embedded,omitempty"`
	// SourceCommit and FetchedAt describe the last GitHub fetch, if any.
	SourceCommit string     `json:"source_commit,omitempty"`
	FetchedAt    *time.Time `json:"fetched_at,omitempty"`
}
