package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/telecom-rag/internal/assistant"
	"github.com/bull/telecom-rag/internal/retrieval"
	"github.com/bull/telecom-rag/internal/storage"
)

// Asker answers a full query.
type Asker interface {
	Ask(ctx context.Context, q assistant.Query) assistant.Response
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	cfg    *Config
}

// Config holds server dependencies.
type Config struct {
	Assistant Asker
	Retriever assistant.Retriever
	Index     storage.Index
	// IndexDir holds embedding_metadata.json and fetch_metadata.json.
	IndexDir string

	DefaultK         int
	DefaultThreshold float64
	Logger           *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = retrieval.DefaultK
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	impl := &mcp.Implementation{
		Name:    "telecom-rag-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_telecom",
		Description: "Answer a telecom field-engineering question from the indexed manuals and reports. Off-topic questions are rejected. Type selects report, sop, summary or default structure.",
	}, makeAskHandler(cfg))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "retrieve_passages",
		Description: "Return the indexed passages most similar to a query with their source file and similarity score, without generating an answer.",
	}, makeRetrieveHandler(cfg))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the current status of the telecom document index: backend, entry count, per-source counts and the last fetched commit.",
	}, makeStatusHandler(cfg))

	return &Server{
		server: server,
		cfg:    cfg,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// HTTPHandler serves the tools over Streamable HTTP for mounting at /mcp.
// All sessions share this server and with it the loaded index. Stateless
// mode drops session tracking; the tools never call back into the client.
func (s *Server) HTTPHandler(stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{Stateless: stateless})
}
