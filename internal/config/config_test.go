package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"RAGQA_HOST", "RAGQA_PORT", "RAGQA_DEBUG", "RAGQA_LIFECYCLE_POLICY", "RAGQA_DATA_DIR", "RAGQA_REDIS_URL", "LOG_LEVEL", "APP_ENV"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, PolicyEager, cfg.Lifecycle.Policy)
	assert.Equal(t, 5, cfg.Retrieval.DefaultTopK)
	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, "GOOGLE_API_KEY", cfg.Generator.Gemini.APIKeyEnv)
	assert.Equal(t, "rag_system.log", cfg.Logging.File)
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
	assert.Equal(t, 60*time.Second, cfg.GeneratorTimeout())
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
lifecycle:
  policy: lazy
embedder:
  type: openai
  openai:
    base_url: http://localhost:11434/v1
    model: bge-m3
vector_store:
  type: qdrant
  qdrant:
    url: http://localhost:6333
    collection: nepali
retrieval:
  max_context_chars: 4000
cache:
  type: memory
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, PolicyLazy, cfg.Lifecycle.Policy)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 3, cfg.Embedder.OpenAI.MaxRetries)
	assert.Equal(t, "QDRANT_API_KEY", cfg.VectorStore.Qdrant.APIKeyEnv)
	assert.Equal(t, 15, cfg.VectorStore.Qdrant.TimeoutSecs)
	assert.Equal(t, 4000, cfg.Retrieval.MaxContextChars)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 256, cfg.Cache.Size)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGQA_PORT", "9000")
	t.Setenv("RAGQA_HOST", "127.0.0.1")
	t.Setenv("RAGQA_DEBUG", "true")
	t.Setenv("RAGQA_LIFECYCLE_POLICY", "LAZY")
	t.Setenv("RAGQA_DATA_DIR", "/srv/rag")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, PolicyLazy, cfg.Lifecycle.Policy)
	assert.Equal(t, filepath.Join("/srv/rag", "passages.json"), cfg.Passages.Path)
	assert.Equal(t, filepath.Join("/srv/rag", "index.vec"), cfg.VectorStore.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestInvalidPortEnvIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAGQA_PORT", "not-a-port")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cases := map[string]func(*AppConfig){
		"bad policy":    func(c *AppConfig) { c.Lifecycle.Policy = "sometimes" },
		"bad port":      func(c *AppConfig) { c.Server.Port = 70000 },
		"max below def": func(c *AppConfig) { c.Retrieval.MaxTopK = 2 },
		"no passages":   func(c *AppConfig) { c.Passages.Path = "" },
		"qdrant no cfg": func(c *AppConfig) { c.VectorStore.Type = "qdrant" },
		"rate limit":    func(c *AppConfig) { c.Server.RateLimit = RateLimitConfig{Enabled: true} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, defaultConfig().Validate())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Server.Port = 7000
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
