// Package llm generates answers from a chat model behind an
// OpenAI-compatible endpoint (Mistral by default).
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultBaseURL     = "https://api.mistral.ai/v1"
	DefaultModel       = "open-mistral-7b"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 2048

	// DefaultMaxPromptTokens bounds the prompt before it is sent.
	DefaultMaxPromptTokens = 28000
	// CharsPerToken is the rough estimate used to turn token budgets into
	// byte budgets.
	CharsPerToken = 4
)

var (
	ErrMissingAPIKey = errors.New("language model API key not set")
	ErrEmptyResponse = errors.New("language model returned no choices")
)

// Generator produces text from a rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config selects the endpoint and sampling settings. A nil Temperature uses
// DefaultTemperature; 0 is sent as is.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     *float64
	MaxTokens       int
	MaxPromptTokens int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxPromptTokens <= 0 {
		c.MaxPromptTokens = DefaultMaxPromptTokens
	}
}

// Client calls the chat completions endpoint. Safe for concurrent use.
type Client struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a chat client. A nil logger uses slog.Default().
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	)

	return &Client{client: &client, cfg: cfg, logger: logger}, nil
}

// Model returns the chat model name.
func (c *Client) Model() string { return c.cfg.Model }

// Generate sends prompt as a single user message and returns the first
// choice. Rate limits are retried with exponential backoff; other errors
// fail immediately.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = c.truncatePrompt(prompt)

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(c.cfg.Model),
		Temperature: openai.Float(*c.cfg.Temperature),
		MaxTokens:   openai.Int(int64(c.cfg.MaxTokens)),
	}

	var text string
	operation := func() error {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				c.logger.Warn("language model rate limited, retrying", "model", c.cfg.Model)
				return err
			}
			return backoff.Permanent(fmt.Errorf("chat completion failed: %w", err))
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(ErrEmptyResponse)
		}
		text = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return text, nil
}

// truncatePrompt cuts prompt to the configured token budget. Callers that
// need the end of the prompt kept must fit it to the budget first.
func (c *Client) truncatePrompt(prompt string) string {
	maxChars := c.cfg.MaxPromptTokens * CharsPerToken
	if len(prompt) <= maxChars {
		return prompt
	}

	c.logger.Warn("truncating prompt",
		"from_chars", len(prompt),
		"to_chars", maxChars,
		"max_tokens", c.cfg.MaxPromptTokens)

	// Back up to a rune boundary.
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(prompt[cut]) {
		cut--
	}
	return prompt[:cut]
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
