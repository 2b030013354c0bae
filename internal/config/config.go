// Package config provides configuration loading and structs for the Compendium server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogLevel  string          `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Provider  ProviderConfig  `yaml:"provider"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadBytes caps multipart uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// StorageConfig selects the document store and holds paths for local state.
type StorageConfig struct {
	Backend         string `yaml:"backend"`
	DatabasePath    string `yaml:"database_path"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	UploadDir       string `yaml:"upload_dir"`
}

// ProviderConfig holds connection settings for the OpenAI-compatible API
// used for both embeddings and completions.
type ProviderConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// APIKey returns the provider API key from the configured environment variable.
func (p *ProviderConfig) APIKey() string {
	return os.Getenv(p.APIKeyEnv)
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	// Provider is "openai" or "mock".
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	CacheSize   int    `yaml:"cache_size"`
}

// ChunkingConfig holds the recursive splitter settings. MaxRecursion bounds
// how many times a chunk is halved before it is truncated: zero selects the
// default of 5 and a negative value truncates without splitting.
type ChunkingConfig struct {
	MaxTokens        int      `yaml:"max_tokens"`
	MaxRecursion     int      `yaml:"max_recursion"`
	Delimiters       []string `yaml:"delimiters"`
	SectionDelimiter string   `yaml:"section_delimiter"`
	// TokenizerModel names the model whose vocabulary measures chunk size.
	// Defaults to the answering model.
	TokenizerModel string `yaml:"tokenizer_model"`
}

// RetrievalConfig holds ranking, prompt and completion settings.
type RetrievalConfig struct {
	AnsweringModel    string `yaml:"answering_model"`
	TopK              int    `yaml:"top_k"`
	TokenBudget       int    `yaml:"token_budget"`
	SystemPrompt      string `yaml:"system_prompt"`
	Preamble          string `yaml:"preamble"`
	UncertainSentinel string `yaml:"uncertain_sentinel"`
	FallbackMessage   string `yaml:"fallback_message"`
}

// WatchConfig holds inbox directory settings. Files dropped into these
// directories are ingested automatically.
type WatchConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Directories  []string `yaml:"directories"`
	Extensions   []string `yaml:"extensions"`
	DeleteSource bool     `yaml:"delete_source"`
	// Recursive also watches subdirectories.
	Recursive bool `yaml:"recursive"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

const envMongoURI = "COMPENDIUM_MONGO_URI"

func applyEnv(cfg *Config) {
	if uri := os.Getenv(envMongoURI); uri != "" {
		cfg.Storage.MongoURI = uri
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
