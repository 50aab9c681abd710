// Package indexer builds the passage store and vector index offline from text files.
package indexer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragqa/internal/domain"
	"ragqa/internal/embedding"
	"ragqa/internal/summarizer"
	"ragqa/internal/vectorstore"
)

// Options wires the indexing pipeline.
type Options struct {
	Chunker  domain.Chunker
	Embedder embedding.Embedder
	Writer   vectorstore.Writer
	// Workers bounds concurrent Embed calls. Remote embedders benefit from more than one.
	Workers          int
	BatchSize        int
	SummarySentences int
	Logger           *zap.Logger
}

// Report describes a finished build.
type Report struct {
	Documents int
	Passages  []string
	Dimension int
	Summary   string
}

type Indexer struct {
	opts Options
	sum  *summarizer.Frequency
	log  *zap.Logger
}

func New(opts Options) (*Indexer, error) {
	if opts.Chunker == nil || opts.Embedder == nil || opts.Writer == nil {
		return nil, errors.New("indexer needs a chunker, an embedder and a writer")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Indexer{opts: opts, sum: summarizer.NewFrequency(), log: log}, nil
}

// Collect expands glob patterns and reads every .txt file they match.
func Collect(patterns []string) ([]domain.Document, error) {
	var docs []domain.Document
	seen := map[string]struct{}{}
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !strings.HasSuffix(strings.ToLower(m), ".txt") {
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, err
			}
			docs = append(docs, domain.Document{ID: hashString(m), Path: m, Content: string(data)})
		}
	}
	if len(docs) == 0 {
		return nil, errors.New("no .txt documents found")
	}
	return docs, nil
}

// Build chunks docs, fits the embedder, embeds every chunk and writes the vectors
// under their positional ids. Passage i in the report matches vector id i.
func (ix *Indexer) Build(ctx context.Context, docs []domain.Document) (Report, error) {
	var texts []string
	var all strings.Builder
	for _, d := range docs {
		chunks, err := ix.opts.Chunker.Chunk(d)
		if err != nil {
			return Report{}, fmt.Errorf("chunk %s: %w", d.Path, err)
		}
		for _, ch := range chunks {
			texts = append(texts, ch.Text)
		}
		all.WriteString(d.Content)
		all.WriteString("\n")
	}
	if len(texts) == 0 {
		return Report{}, errors.New("documents produced no passages")
	}
	ix.log.Info("chunked documents", zap.Int("documents", len(docs)), zap.Int("passages", len(texts)))

	if err := ix.opts.Embedder.Prepare(texts); err != nil {
		return Report{}, fmt.Errorf("prepare embedder: %w", err)
	}
	vectors, err := ix.embedAll(ctx, texts)
	if err != nil {
		return Report{}, err
	}

	dim := len(vectors[0])
	if err := ix.opts.Writer.Init(ctx, dim); err != nil {
		return Report{}, fmt.Errorf("init index: %w", err)
	}
	for start := 0; start < len(vectors); start += ix.opts.BatchSize {
		end := min(start+ix.opts.BatchSize, len(vectors))
		ids := make([]int, end-start)
		for i := range ids {
			ids[i] = start + i
		}
		if err := ix.opts.Writer.Upsert(ctx, ids, vectors[start:end]); err != nil {
			return Report{}, fmt.Errorf("upsert %d-%d: %w", start, end-1, err)
		}
	}
	ix.log.Info("index written", zap.Int("vectors", len(vectors)), zap.Int("dimension", dim))

	return Report{
		Documents: len(docs),
		Passages:  texts,
		Dimension: dim,
		Summary:   ix.sum.Summarize(all.String(), ix.opts.SummarySentences),
	}, nil
}

func (ix *Indexer) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)
	for i, text := range texts {
		g.Go(func() error {
			v, err := ix.opts.Embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed passage %d: %w", i, err)
			}
			if embedding.IsZero(v) {
				ix.log.Debug("passage has no known terms", zap.Int("id", i))
			}
			vectors[i] = embedding.Normalize(v)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("embedder returned empty vectors")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("passage %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return vectors, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}
