// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (COURSECHAT_* plus GEMINI_API_KEY)
//  2. Config file (./coursechat.yaml or ~/.coursechat/config.yaml)
//  3. Default values
//
// Validation is fail-fast: Load returns an error built from the sentinel
// errors below, so callers can test with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidChunkSize indicates chunk_size is not a positive integer.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidChunkOverlap indicates chunk_overlap is negative or not
	// smaller than chunk_size.
	ErrInvalidChunkOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidMaxResults indicates max_results is not a positive integer.
	ErrInvalidMaxResults = errors.New("invalid max results")

	// ErrInvalidMaxHistory indicates max_history is negative.
	ErrInvalidMaxHistory = errors.New("invalid max history")

	// ErrInvalidMaxToolRounds indicates max_tool_rounds is not positive.
	ErrInvalidMaxToolRounds = errors.New("invalid max tool rounds")

	// ErrInvalidModelName indicates a model identifier is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidChromaURL indicates the ChromaDB base URL is empty.
	ErrInvalidChromaURL = errors.New("invalid chroma url")

	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Defaults mirrored by setDefaults. Exported so other packages and tests
// reference one source of truth.
const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 800

	// DefaultChunkOverlap is the number of trailing characters carried into
	// the next chunk to preserve local context across boundaries.
	DefaultChunkOverlap = 100

	// DefaultMaxResults caps the number of search results per tool call.
	DefaultMaxResults = 5

	// DefaultMaxHistory is the number of complete exchanges (user turn +
	// assistant turn) kept per session.
	DefaultMaxHistory = 2

	// DefaultMaxToolRounds bounds sequential tool-calling rounds per query.
	DefaultMaxToolRounds = 2

	// DefaultModelName is the generation model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbeddingModel is the embedding model.
	DefaultEmbeddingModel = "gemini-embedding-001"
)

// Config stores application configuration.
type Config struct {
	// Document processing
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	// Retrieval
	MaxResults int    `mapstructure:"max_results"`
	ChromaURL  string `mapstructure:"chroma_url"`
	DocsDir    string `mapstructure:"docs_dir"`

	// Generation
	ModelName      string `mapstructure:"model_name"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	MaxToolRounds  int    `mapstructure:"max_tool_rounds"`
	GeminiAPIKey   string `mapstructure:"gemini_api_key"`

	// Conversation memory
	MaxHistory int `mapstructure:"max_history"`

	// HTTP server
	Addr      string `mapstructure:"addr"`
	RateBurst int    `mapstructure:"rate_burst"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("coursechat")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".coursechat"))
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"config_name", "coursechat.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config populated with default values only.
// Useful for tests that need a valid configuration without touching the
// environment.
func Default() *Config {
	return &Config{
		ChunkSize:      DefaultChunkSize,
		ChunkOverlap:   DefaultChunkOverlap,
		MaxResults:     DefaultMaxResults,
		MaxHistory:     DefaultMaxHistory,
		MaxToolRounds:  DefaultMaxToolRounds,
		ModelName:      DefaultModelName,
		EmbeddingModel: DefaultEmbeddingModel,
		ChromaURL:      "http://localhost:8000",
		DocsDir:        "docs",
		Addr:           "127.0.0.1:8080",
		RateBurst:      60,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("max_results", DefaultMaxResults)
	v.SetDefault("max_history", DefaultMaxHistory)
	v.SetDefault("max_tool_rounds", DefaultMaxToolRounds)
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedding_model", DefaultEmbeddingModel)
	v.SetDefault("chroma_url", "http://localhost:8000")
	v.SetDefault("docs_dir", "docs")
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("rate_burst", 60)
}

// bindEnvVariables binds environment variables.
// Every option accepts a COURSECHAT_ prefixed variable; the API key is also
// read from the conventional GEMINI_API_KEY.
func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("COURSECHAT")
	v.AutomaticEnv()

	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	if err := v.BindEnv("gemini_api_key", "GEMINI_API_KEY", "COURSECHAT_GEMINI_API_KEY"); err != nil {
		panic(fmt.Sprintf("BUG: binding gemini_api_key: %v", err))
	}
}

// Validate checks configuration ranges. It does not require an API key;
// commands that reach the generation or embedding service call RequireAPIKey.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration is nil")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d", ErrInvalidChunkOverlap, c.ChunkOverlap)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("%w: max_results must be positive, got %d", ErrInvalidMaxResults, c.MaxResults)
	}
	if c.MaxHistory < 0 {
		return fmt.Errorf("%w: max_history must be >= 0, got %d", ErrInvalidMaxHistory, c.MaxHistory)
	}
	if c.MaxToolRounds <= 0 {
		return fmt.Errorf("%w: max_tool_rounds must be positive, got %d", ErrInvalidMaxToolRounds, c.MaxToolRounds)
	}
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name is empty", ErrInvalidModelName)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding_model is empty", ErrInvalidModelName)
	}
	if c.ChromaURL == "" {
		return fmt.Errorf("%w: chroma_url is empty", ErrInvalidChromaURL)
	}
	return nil
}

// RequireAPIKey verifies that a Gemini API key is configured.
func (c *Config) RequireAPIKey() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}
