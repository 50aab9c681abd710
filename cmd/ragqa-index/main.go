package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragqa/internal/chunker"
	"ragqa/internal/config"
	"ragqa/internal/domain"
	"ragqa/internal/embedding"
	"ragqa/internal/embedding/tfidf"
	"ragqa/internal/indexer"
	"ragqa/internal/lifecycle"
	"ragqa/internal/logger"
	"ragqa/internal/passages"
	"ragqa/internal/vectorstore"
	"ragqa/internal/vectorstore/memory"
	"ragqa/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath string
		workers int
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional)")
	flag.IntVar(&workers, "workers", 4, "Concurrent embedding requests")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: ragqa-index [--config=config.yaml] [--workers=4] file1.txt [dir/*.txt ...]")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg := logger.New(logger.Options{Level: cfg.Logging.Level})
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, inputs, workers, lg); err != nil {
		lg.Error("indexing failed", zap.Error(err))
		_ = lg.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, inputs []string, workers int, lg *zap.Logger) error {
	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "sentence", "":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	default:
		return fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	docs, err := indexer.Collect(inputs)
	if err != nil {
		return err
	}

	// Build fits TF-IDF on the chunks; the server refits it on the saved passages
	// and ends up with the same vocabulary.
	var emb embedding.Embedder
	if cfg.Embedder.Type == "tfidf" || cfg.Embedder.Type == "" {
		emb = tfidf.NewEmbedder()
	} else if emb, err = lifecycle.NewEmbedder(ctx, cfg, lg); err != nil {
		return err
	}

	var (
		writer vectorstore.Writer
		mem    *memory.Storage
	)
	switch cfg.VectorStore.Type {
	case "file", "memory", "":
		mem = memory.NewStorage()
		writer = mem
	case "qdrant":
		writer = qdrant.NewStorage(lifecycle.QdrantConfig(cfg))
	default:
		return fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	ix, err := indexer.New(indexer.Options{
		Chunker:          ch,
		Embedder:         emb,
		Writer:           writer,
		Workers:          workers,
		SummarySentences: 3,
		Logger:           lg,
	})
	if err != nil {
		return err
	}
	rep, err := ix.Build(ctx, docs)
	if err != nil {
		return err
	}

	if err := writePassages(cfg.Passages.Path, rep.Passages); err != nil {
		return err
	}
	if mem != nil {
		if err := os.MkdirAll(filepath.Dir(cfg.VectorStore.Path), 0o755); err != nil {
			return err
		}
		if err := mem.Save(cfg.VectorStore.Path); err != nil {
			return fmt.Errorf("save index: %w", err)
		}
	}

	fmt.Printf("Indexed %d documents into %d passages (dimension %d)\n", rep.Documents, len(rep.Passages), rep.Dimension)
	fmt.Printf("Passages: %s\n", cfg.Passages.Path)
	if mem != nil {
		fmt.Printf("Vectors:  %s\n", cfg.VectorStore.Path)
	}
	fmt.Printf("\nCorpus summary:\n%s\n", rep.Summary)
	return nil
}

func writePassages(path string, texts []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := passages.Save(path, texts); err != nil {
		return fmt.Errorf("save passages: %w", err)
	}
	return nil
}
