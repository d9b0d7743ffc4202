package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Telecom RAG MCP Server</title>
<style>
  body { font-family: system-ui, sans-serif; max-width: 40rem; margin: 3rem auto; padding: 0 1rem; color: #1f2933; }
  h1 { font-size: 1.5rem; }
  code { background: #eef2f6; padding: 0.1rem 0.3rem; border-radius: 4px; }
  dt { font-weight: 600; margin-top: 0.75rem; }
  dd { margin-left: 1rem; color: #52606d; }
</style>
</head>
<body>
<h1>Telecom RAG MCP Server</h1>
<p>Answers for field engineers from indexed site reports, SOPs and equipment manuals.</p>

<h2>Tools</h2>
<dl>
  <dt><code>ask_telecom</code></dt><dd>Structured answer as a report, SOP or summary</dd>
  <dt><code>retrieve_passages</code></dt><dd>Matching passages with source and similarity</dd>
  <dt><code>get_index_status</code></dt><dd>Index contents and source commit</dd>
</dl>

<h2>Endpoints</h2>
<dl>
  <dt><a href="/mcp"><code>/mcp</code></a></dt><dd>MCP Streamable HTTP</dd>
  <dt><a href="/health"><code>/health</code></a></dt><dd>Index health check</dd>
</dl>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingHTML))
	}
}
