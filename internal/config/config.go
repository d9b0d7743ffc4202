// Package config loads the YAML configuration file and applies environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bull/telecom-rag/internal/chunker"
	"github.com/bull/telecom-rag/internal/embedding"
	"github.com/bull/telecom-rag/internal/llm"
	"github.com/bull/telecom-rag/internal/prompt"
	"github.com/bull/telecom-rag/internal/retrieval"
	"github.com/bull/telecom-rag/internal/storage"
)

// ErrMissingAPIKey is returned by RequireLLM when the language model key
// environment variable is empty.
var ErrMissingAPIKey = errors.New("LLM_API_KEY not set")

// Index backends.
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// PathsConfig locates the corpus directories and the index file.
type PathsConfig struct {
	RawDir       string `yaml:"raw_dir"`
	ProcessedDir string `yaml:"processed_dir"`
	ChunkDir     string `yaml:"chunk_dir"`
	IndexPath    string `yaml:"index_path"`
}

// ChunkerConfig configures passage splitting.
type ChunkerConfig struct {
	Size       int      `yaml:"size"`
	Overlap    int      `yaml:"overlap"`
	Separators []string `yaml:"separators,omitempty"`
}

// RetrievalConfig holds the query-time defaults.
type RetrievalConfig struct {
	K         int     `yaml:"k"`
	Threshold float64 `yaml:"threshold"`
}

// Embedding providers.
const (
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// EmbeddingConfig selects the embedding endpoint.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Dimension int    `yaml:"dimension,omitempty"` // Hashing provider only
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	APIKeyEnv string `yaml:"api_key_env"`

	APIKey string `yaml:"-"`
}

// LLMConfig selects the chat model.
type LLMConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	APIKeyEnv         string        `yaml:"api_key_env"`

	APIKey string `yaml:"-"`
}

// QdrantConfig contains connection details for the Qdrant backend.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend string       `yaml:"backend"`
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// GitHubConfig points the fetch command at a repository directory of raw
// documents.
type GitHubConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	Path  string `yaml:"path"`
	Ref   string `yaml:"ref"`

	// BaseURL targets a GitHub Enterprise API; empty uses github.com.
	BaseURL string `yaml:"base_url,omitempty"`

	Token string `yaml:"-"`
}

// Server transport modes.
const (
	ModeStdio = "stdio"
	ModeHTTP  = "http"
)

// ServerConfig configures the MCP server process.
type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // ModeStdio or ModeHTTP
}

// Config is the root configuration.
type Config struct {
	Paths     PathsConfig       `yaml:"paths"`
	Chunker   ChunkerConfig     `yaml:"chunker"`
	Retrieval RetrievalConfig   `yaml:"retrieval"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	LLM       LLMConfig         `yaml:"llm"`
	Index     IndexConfig       `yaml:"index"`
	Templates map[string]string `yaml:"templates,omitempty"`
	Domain    []string          `yaml:"domain_terms,omitempty"`
	Workers   int               `yaml:"workers"`
	GitHub    GitHubConfig      `yaml:"github"`
	Server    ServerConfig      `yaml:"server"`
}

// Load reads the config at path over the defaults, then applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyConfigDefaults(cfg)
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			RawDir:       "data/raw",
			ProcessedDir: "data/processed",
			ChunkDir:     "data/chunks",
			IndexPath:    "data/index/chunks.db",
		},
		Chunker: ChunkerConfig{
			Size:    chunker.DefaultChunkSize,
			Overlap: chunker.DefaultChunkOverlap,
		},
		Retrieval: RetrievalConfig{
			K:         retrieval.DefaultK,
			Threshold: retrieval.DefaultThreshold,
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderOpenAI,
			Model:     embedding.DefaultModel,
			BatchSize: embedding.DefaultBatchSize,
			APIKeyEnv: "OPENAI_API_KEY",
		},
		LLM: LLMConfig{
			BaseURL:           llm.DefaultBaseURL,
			Model:             llm.DefaultModel,
			Temperature:       llm.DefaultTemperature,
			MaxTokens:         llm.DefaultMaxTokens,
			GenerationTimeout: 60 * time.Second,
			APIKeyEnv:         "LLM_API_KEY",
		},
		Index: IndexConfig{
			Backend: BackendSQLite,
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: storage.DefaultCollection,
			},
		},
		Workers: 4,
		GitHub: GitHubConfig{
			Ref: "main",
		},
		Server: ServerConfig{
			Port: "8080",
			Mode: ModeStdio,
		},
	}
}

// applyConfigDefaults fills zero values a partial config file may leave.
func applyConfigDefaults(cfg *Config) {
	d := Default()
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = d.Chunker.Size
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = d.Retrieval.K
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = d.Embedding.Provider
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = d.Embedding.Model
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = d.Embedding.BatchSize
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = d.Embedding.APIKeyEnv
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = d.LLM.BaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = d.LLM.Model
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if cfg.LLM.GenerationTimeout == 0 {
		cfg.LLM.GenerationTimeout = d.LLM.GenerationTimeout
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = d.LLM.APIKeyEnv
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = d.Index.Backend
	}
	if cfg.Index.Qdrant.Collection == "" {
		cfg.Index.Qdrant.Collection = d.Index.Qdrant.Collection
	}
	if cfg.Workers == 0 {
		cfg.Workers = d.Workers
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = d.Server.Mode
	}
}

// applyEnv resolves secrets and the deployment overrides.
func applyEnv(cfg *Config) {
	cfg.Embedding.APIKey = os.Getenv(cfg.Embedding.APIKeyEnv)
	cfg.LLM.APIKey = os.Getenv(cfg.LLM.APIKeyEnv)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")

	cfg.Index.Qdrant.Host = getEnv("QDRANT_HOST", cfg.Index.Qdrant.Host)
	cfg.Index.Qdrant.Port = getEnvInt("QDRANT_PORT", cfg.Index.Qdrant.Port)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	if getEnv("SERVER_MODE", "false") == "true" {
		cfg.Server.Mode = ModeHTTP
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Chunker.Size <= 0 {
		return fmt.Errorf("chunker.size must be positive, got %d", c.Chunker.Size)
	}
	if c.Chunker.Overlap < 0 {
		return fmt.Errorf("chunker.overlap must not be negative, got %d", c.Chunker.Overlap)
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be within [0, 1], got %g", c.Retrieval.Threshold)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.LLM.GenerationTimeout < 0 {
		return fmt.Errorf("llm.generation_timeout must not be negative, got %s", c.LLM.GenerationTimeout)
	}
	switch c.Index.Backend {
	case BackendSQLite, BackendQdrant:
	default:
		return fmt.Errorf("index.backend must be %q or %q, got %q", BackendSQLite, BackendQdrant, c.Index.Backend)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderHashing:
	default:
		return fmt.Errorf("embedding.provider must be %q or %q, got %q", ProviderOpenAI, ProviderHashing, c.Embedding.Provider)
	}
	switch c.Server.Mode {
	case ModeStdio, ModeHTTP:
	default:
		return fmt.Errorf("server.mode must be %q or %q, got %q", ModeStdio, ModeHTTP, c.Server.Mode)
	}
	if _, err := prompt.NewTemplates(c.Templates); err != nil {
		return err
	}
	return nil
}

// RequireLLM fails when the language model key is missing. Commands that
// answer queries call it at startup.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w (set %s)", ErrMissingAPIKey, c.LLM.APIKeyEnv)
	}
	return nil
}

// IndexDir is the directory holding the index file and the build metadata.
func (c *Config) IndexDir() string {
	return filepath.Dir(c.Paths.IndexPath)
}

// ChunkerOptions converts the chunker settings.
func (c *Config) ChunkerOptions() []chunker.Option {
	opts := []chunker.Option{
		chunker.WithChunkSize(c.Chunker.Size),
		chunker.WithOverlap(c.Chunker.Overlap),
	}
	if len(c.Chunker.Separators) > 0 {
		opts = append(opts, chunker.WithSeparators(c.Chunker.Separators))
	}
	return opts
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
