package lifecycle

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragqa/internal/config"
	"ragqa/internal/embedding"
	"ragqa/internal/embedding/openai"
	"ragqa/internal/embedding/tfidf"
	"ragqa/internal/generator"
	"ragqa/internal/generator/gemini"
	"ragqa/internal/passages"
	"ragqa/internal/vectorstore"
	"ragqa/internal/vectorstore/memory"
	"ragqa/internal/vectorstore/qdrant"
)

// LoadersFromConfig builds the resource loaders selected by cfg.
func LoadersFromConfig(cfg *config.AppConfig, log *zap.Logger) Loaders {
	if log == nil {
		log = zap.NewNop()
	}
	return Loaders{
		Embedder:  func(ctx context.Context) (embedding.Embedder, error) { return NewEmbedder(ctx, cfg, log) },
		Index:     func(ctx context.Context) (vectorstore.Index, error) { return openIndex(ctx, cfg) },
		Passages:  func(context.Context) (*passages.Store, error) { return passages.Load(cfg.Passages.Path) },
		Generator: func(context.Context) (generator.Generator, error) { return newGenerator(cfg) },
	}
}

// NewEmbedder constructs the configured embedder. A TF-IDF embedder is fitted on
// the passage file so that its vocabulary matches the one used at index time.
func NewEmbedder(_ context.Context, cfg *config.AppConfig, log *zap.Logger) (embedding.Embedder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Embedder.Type {
	case "tfidf", "":
		store, err := passages.Load(cfg.Passages.Path)
		if err != nil {
			return nil, err
		}
		emb := tfidf.NewEmbedder()
		if err := emb.Prepare(store.Texts()); err != nil {
			return nil, fmt.Errorf("fit tfidf vocabulary: %w", err)
		}
		log.Info("tfidf embedder fitted", zap.Int("dimension", emb.Dimension()), zap.Int("passages", store.Len()))
		return emb, nil
	case "openai":
		oc := cfg.Embedder.OpenAI
		if oc == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:     oc.BaseURL,
			APIKeyEnv:   oc.APIKeyEnv,
			Model:       oc.Model,
			Timeout:     time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries:  oc.MaxRetries,
			KeyOptional: !strings.Contains(oc.BaseURL, "api.openai.com"),
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func openIndex(ctx context.Context, cfg *config.AppConfig) (vectorstore.Index, error) {
	switch cfg.VectorStore.Type {
	case "file", "memory", "":
		return memory.Load(cfg.VectorStore.Path)
	case "qdrant":
		return qdrant.Open(ctx, QdrantConfig(cfg))
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

// QdrantConfig maps the YAML section to a client config, reading the key from the environment.
func QdrantConfig(cfg *config.AppConfig) qdrant.Config {
	q := cfg.VectorStore.Qdrant
	if q == nil {
		return qdrant.Config{}
	}
	return qdrant.Config{
		URL:        q.URL,
		APIKey:     os.Getenv(q.APIKeyEnv),
		Collection: q.Collection,
		Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
	}
}

func newGenerator(cfg *config.AppConfig) (generator.Generator, error) {
	switch cfg.Generator.Type {
	case "gemini", "":
		g := cfg.Generator.Gemini
		if g == nil {
			return nil, fmt.Errorf("gemini generator config missing")
		}
		return gemini.NewClient(gemini.Config{BaseURL: g.BaseURL, APIKeyEnv: g.APIKeyEnv, Model: g.Model})
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}
}
