package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const healthTimeout = 3 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Index     string `json:"index"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker is implemented by both index backends.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler reports 200 while the index is available and 503
// otherwise.
func NewHealthHandler(index HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		code := http.StatusOK
		resp := HealthResponse{
			Status:    "healthy",
			Index:     "available",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := index.Health(ctx); err != nil {
			code = http.StatusServiceUnavailable
			resp.Status = "unhealthy"
			resp.Index = "unavailable"
			resp.Error = err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(resp)
	}
}
