package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Lifecycle policies.
const (
	PolicyEager = "eager"
	PolicyLazy  = "lazy"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host                string          `yaml:"host"`
	Port                int             `yaml:"port"`
	Debug               bool            `yaml:"debug"`
	CORSOrigins         []string        `yaml:"cors_origins"`
	ShutdownTimeoutSecs int             `yaml:"shutdown_timeout_secs"`
	RateLimit           RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles API requests per client IP.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// LifecycleConfig selects when heavy resources get loaded.
type LifecycleConfig struct {
	Policy string `yaml:"policy"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector index implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Path   string        `yaml:"path"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PassagesConfig points at the passage text file.
type PassagesConfig struct {
	Path string `yaml:"path"`
}

// GeminiConfig configures the hosted Gemini generator.
type GeminiConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type        string        `yaml:"type"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	Gemini      *GeminiConfig `yaml:"gemini,omitempty"`
}

// PromptConfig controls the answer instruction.
type PromptConfig struct {
	Language       string `yaml:"language"`
	FallbackPhrase string `yaml:"fallback_phrase"`
}

// RetrievalConfig bounds the retrieval step.
type RetrievalConfig struct {
	DefaultTopK     int `yaml:"default_top_k"`
	MaxTopK         int `yaml:"max_top_k"`
	MaxContextChars int `yaml:"max_context_chars"`
	TimeoutSecs     int `yaml:"timeout_secs"`
}

// CacheConfig configures the retrieval result cache.
type CacheConfig struct {
	Type     string `yaml:"type"`
	Size     int    `yaml:"size"`
	TTLSecs  int    `yaml:"ttl_secs"`
	RedisURL string `yaml:"redis_url"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	Environment string `yaml:"environment"`
}

// ChunkerConfig configures how the offline indexer splits documents.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Passages    PassagesConfig    `yaml:"passages"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Cache       CacheConfig       `yaml:"cache"`
	Logging     LoggingConfig     `yaml:"logging"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragqa/config.yaml and returns them.
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
	applyEnvOverrides(cfg)
	return cfg, userPath, cfg.Validate()
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

// Validate rejects configurations the service cannot start with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Lifecycle.Policy {
	case PolicyEager, PolicyLazy:
	default:
		return fmt.Errorf("unknown lifecycle policy: %q", c.Lifecycle.Policy)
	}
	if c.Retrieval.DefaultTopK <= 0 {
		return fmt.Errorf("retrieval.default_top_k must be positive")
	}
	if c.Retrieval.MaxTopK < c.Retrieval.DefaultTopK {
		return fmt.Errorf("retrieval.max_top_k (%d) below default_top_k (%d)", c.Retrieval.MaxTopK, c.Retrieval.DefaultTopK)
	}
	if c.Passages.Path == "" {
		return fmt.Errorf("passages.path is required")
	}
	if c.VectorStore.Type == "qdrant" && c.VectorStore.Qdrant == nil {
		return fmt.Errorf("qdrant config missing")
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_minute must be positive when enabled")
	}
	return nil
}

// Addr returns the listen address.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *AppConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSecs) * time.Second
}

// RetrievalTimeout bounds the embed+search step.
func (c *AppConfig) RetrievalTimeout() time.Duration {
	return time.Duration(c.Retrieval.TimeoutSecs) * time.Second
}

// GeneratorTimeout bounds a single generation call.
func (c *AppConfig) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSecs) * time.Second
}

// CacheTTL is how long a cached retrieval stays valid.
func (c *AppConfig) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSecs) * time.Second
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                5000,
			CORSOrigins:         []string{"*"},
			ShutdownTimeoutSecs: 10,
			RateLimit:           RateLimitConfig{RequestsPerMinute: 10, Burst: 5},
		},
		Lifecycle:   LifecycleConfig{Policy: PolicyEager},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "file", Path: filepath.Join("data", "index.vec")},
		Passages:    PassagesConfig{Path: filepath.Join("data", "passages.json")},
		Generator:   GeneratorConfig{Type: "gemini", TimeoutSecs: 60},
		Prompt: PromptConfig{
			Language:       "नेपाली",
			FallbackPhrase: "सन्दर्भमा जानकारी उपलब्ध छैन।",
		},
		Retrieval: RetrievalConfig{DefaultTopK: 5, MaxTopK: 50, MaxContextChars: 0, TimeoutSecs: 30},
		Cache:     CacheConfig{Type: "none", Size: 256, TTLSecs: 600},
		Logging:   LoggingConfig{Level: "info", File: "rag_system.log", Environment: "development"},
		Chunker:   ChunkerConfig{Type: "sentence", SentencesPerChunk: 5, OverlapSentences: 1},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 10
	}
	if cfg.Server.RateLimit.Burst <= 0 {
		cfg.Server.RateLimit.Burst = 1
	}
	if cfg.Lifecycle.Policy == "" {
		cfg.Lifecycle.Policy = PolicyEager
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 5
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 50
	}
	if cfg.Retrieval.TimeoutSecs == 0 {
		cfg.Retrieval.TimeoutSecs = 30
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 256
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 3
		}
	}
	if cfg.Generator.Type == "gemini" || cfg.Generator.Type == "" {
		cfg.Generator.Type = "gemini"
		if cfg.Generator.Gemini == nil {
			cfg.Generator.Gemini = &GeminiConfig{}
		}
		if cfg.Generator.Gemini.BaseURL == "" {
			cfg.Generator.Gemini.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
		if cfg.Generator.Gemini.APIKeyEnv == "" {
			cfg.Generator.Gemini.APIKeyEnv = "GOOGLE_API_KEY"
		}
		if cfg.Generator.Gemini.Model == "" {
			cfg.Generator.Gemini.Model = "gemini-2.0-flash"
		}
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
		if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
			cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
		}
	}
}

// applyEnvOverrides lets deployments adjust a file-based config without editing it.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("RAGQA_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := getEnvAsInt("RAGQA_PORT", 0); v != 0 {
		cfg.Server.Port = v
	}
	if v, ok := getEnvAsBool("RAGQA_DEBUG"); ok {
		cfg.Server.Debug = v
	}
	if v := os.Getenv("RAGQA_LIFECYCLE_POLICY"); v != "" {
		cfg.Lifecycle.Policy = strings.ToLower(v)
	}
	if dir := os.Getenv("RAGQA_DATA_DIR"); dir != "" {
		cfg.Passages.Path = filepath.Join(dir, filepath.Base(cfg.Passages.Path))
		if cfg.VectorStore.Path != "" {
			cfg.VectorStore.Path = filepath.Join(dir, filepath.Base(cfg.VectorStore.Path))
		}
	}
	if v := os.Getenv("RAGQA_REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Logging.Environment = v
	}
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string) (bool, bool) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return false, false
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, false
	}
	return value, true
}
