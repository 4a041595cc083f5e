package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// S3Config holds connection details for datasets stored in an S3-compatible
// object store. Credentials are read from the named environment variables.
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region,omitempty"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// DatasetConfig locates the placement CSV.
type DatasetConfig struct {
	Path  string    `yaml:"path"`
	Watch bool      `yaml:"watch"`
	S3    *S3Config `yaml:"s3,omitempty"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size"`
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// ModelConfig selects the backend behind one logical model name.
type ModelConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// EmbeddingConfig maps logical model names to backends.
type EmbeddingConfig struct {
	Models           map[string]ModelConfig `yaml:"models"`
	LoadTimeoutSecs  int                    `yaml:"load_timeout_secs"`
	QueryTimeoutSecs int                    `yaml:"query_timeout_secs"`
}

// LoadTimeout returns the model load timeout.
func (c EmbeddingConfig) LoadTimeout() time.Duration {
	return time.Duration(c.LoadTimeoutSecs) * time.Second
}

// QueryTimeout returns the semantic search timeout.
func (c EmbeddingConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSecs) * time.Second
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorCacheConfig controls the on-disk passage vector cache.
type VectorCacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Codec   string `yaml:"codec"`
}

// RankerConfig tunes semantic search.
type RankerConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Dataset     DatasetConfig     `yaml:"dataset"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	VectorCache VectorCacheConfig `yaml:"vector_cache"`
	Ranker      RankerConfig      `yaml:"ranker"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/placementqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/placementqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports settings no component can work with.
func (c *AppConfig) Validate() error {
	if _, ok := c.Embedding.Models["fast"]; !ok {
		return errors.New("embedding.models: \"fast\" is required")
	}
	for name, m := range c.Embedding.Models {
		switch m.Type {
		case "tfidf", "openai":
		default:
			return fmt.Errorf("embedding.models.%s: unknown type %q", name, m.Type)
		}
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return errors.New("vector_store.qdrant.url is required")
		}
	default:
		return fmt.Errorf("vector_store: unknown type %q", c.VectorStore.Type)
	}
	if c.Ranker.MinScore < 0 || c.Ranker.MinScore > 1 {
		return fmt.Errorf("ranker.min_score %v out of range [0, 1]", c.Ranker.MinScore)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "placementqa", "config.yaml"), nil
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".cache", "placementqa")
	}
	return filepath.Join(dir, "placementqa")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Dataset: DatasetConfig{Path: filepath.Join("data", "job_placement.csv")},
		Embedding: EmbeddingConfig{
			Models: map[string]ModelConfig{
				"fast":     {Type: "tfidf"},
				"accurate": {Type: "openai", OpenAI: &OpenAIEmbedderConfig{}},
			},
		},
		VectorStore: VectorStoreConfig{Type: "memory"},
		VectorCache: VectorCacheConfig{Enabled: true},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Dataset.Path == "" {
		cfg.Dataset.Path = filepath.Join("data", "job_placement.csv")
	}
	if cfg.Embedding.Models == nil {
		cfg.Embedding.Models = map[string]ModelConfig{"fast": {Type: "tfidf"}}
	}
	for name, m := range cfg.Embedding.Models {
		if m.Type == "openai" {
			if m.OpenAI == nil {
				m.OpenAI = &OpenAIEmbedderConfig{}
			}
			applyOpenAIDefaults(m.OpenAI)
			cfg.Embedding.Models[name] = m
		}
	}
	if cfg.Embedding.LoadTimeoutSecs == 0 {
		cfg.Embedding.LoadTimeoutSecs = 30
	}
	if cfg.Embedding.QueryTimeoutSecs == 0 {
		cfg.Embedding.QueryTimeoutSecs = 60
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "placement_passages"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 30
		}
	}
	if cfg.VectorCache.Dir == "" {
		cfg.VectorCache.Dir = defaultCacheDir()
	}
	if cfg.VectorCache.Codec == "" {
		cfg.VectorCache.Codec = "zstd"
	}
	if cfg.Ranker.TopK == 0 {
		cfg.Ranker.TopK = 3
	}
	if cfg.Ranker.MinScore == 0 {
		cfg.Ranker.MinScore = 0.3
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Dataset.S3 != nil {
		if cfg.Dataset.S3.AccessKeyEnv == "" {
			cfg.Dataset.S3.AccessKeyEnv = "AWS_ACCESS_KEY_ID"
		}
		if cfg.Dataset.S3.SecretKeyEnv == "" {
			cfg.Dataset.S3.SecretKeyEnv = "AWS_SECRET_ACCESS_KEY"
		}
	}
}

func applyOpenAIDefaults(c *OpenAIEmbedderConfig) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
}
