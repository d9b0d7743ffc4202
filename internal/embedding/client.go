package embedding

import (
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrMissingAPIKey is returned when no embedding API key is configured.
var ErrMissingAPIKey = errors.New("embedding API key not set")

// Config selects the embedding endpoint and model.
type Config struct {
	APIKey  string
	BaseURL string // Empty uses the OpenAI default
	Model   string // Empty uses DefaultModel
}

// Client wraps the OpenAI client for embedding generation.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates an OpenAI-compatible embeddings client.
// Retries are left to the Embedder so that only rate limits are retried.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{client: &client, model: cfg.Model}, nil
}

// Model returns the embedding model name.
func (c *Client) Model() string { return c.model }
