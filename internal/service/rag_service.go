package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"ragqa/internal/cache"
	"ragqa/internal/domain"
	"ragqa/internal/embedding"
	"ragqa/internal/generator"
	"ragqa/internal/passages"
	"ragqa/internal/prompt"
	"ragqa/internal/vectorstore"
)

// ContextSeparator joins retrieved passages into one context string.
// SplitContext reverses the join only while no passage contains the separator itself.
const ContextSeparator = "\n\n"

// ErrorMarker prefixes generation failures that are returned as answer text.
const ErrorMarker = "⚠️ Error: "

// Resources gives the pipeline access to the loaded components.
// Accessors return nil while a resource is not ready.
type Resources interface {
	Embedder() embedding.Embedder
	Index() vectorstore.Index
	Passages() *passages.Store
	Generator() generator.Generator
}

// Options tunes the pipeline. Zero values fall back to sensible defaults.
type Options struct {
	DefaultTopK       int
	MaxTopK           int
	MaxContextChars   int
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
	Prompt            *prompt.Builder
	Cache             cache.Cache
	Logger            *zap.Logger
}

// RAGService retrieves passages for a question and asks the generator to answer from them.
type RAGService struct {
	res  Resources
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

func NewRAGService(res Resources, opts Options) *RAGService {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = domain.DefaultTopK
	}
	if opts.MaxTopK < opts.DefaultTopK {
		opts.MaxTopK = opts.DefaultTopK
	}
	if opts.Prompt == nil {
		opts.Prompt = prompt.NewBuilder("", "")
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &RAGService{res: res, opts: opts, log: log, now: time.Now}
}

// DefaultTopK is the result count used when a request does not set one.
func (s *RAGService) DefaultTopK() int { return s.opts.DefaultTopK }

// MaxTopK is the largest accepted result count.
func (s *RAGService) MaxTopK() int { return s.opts.MaxTopK }

// Retrieve embeds the query, searches the index and resolves the hits to passages.
//
// The result is always usable: on any embedder or index failure it is empty and
// the error wraps domain.ErrCapabilityUnavailable. An empty but healthy lookup
// returns domain.ErrNoResults.
func (s *RAGService) Retrieve(ctx context.Context, query string, topK int) (domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.RetrievalResult{}, domain.ErrInvalidQuery
	}
	topK = s.clampTopK(topK)

	key := cache.Key(query, topK)
	if r, ok := s.opts.Cache.Get(ctx, key); ok {
		s.log.Debug("retrieval cache hit", zap.Int("top_k", topK))
		return r, nil
	}

	hits, err := s.search(ctx, query, topK)
	if err != nil {
		s.log.Error("error retrieving context", zap.Error(err))
		return domain.RetrievalResult{}, fmt.Errorf("%w: %w", domain.ErrCapabilityUnavailable, err)
	}

	r := s.assemble(hits)
	if r.Empty() {
		return r, domain.ErrNoResults
	}
	s.opts.Cache.Set(ctx, key, r)
	return r, nil
}

func (s *RAGService) search(ctx context.Context, query string, topK int) ([]domain.Hit, error) {
	emb, idx := s.res.Embedder(), s.res.Index()
	if emb == nil || idx == nil || s.res.Passages() == nil {
		return nil, domain.ErrNotReady
	}
	if s.opts.RetrievalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RetrievalTimeout)
		defer cancel()
	}

	vec, err := emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("embedder returned an empty vector")
	}
	vec = embedding.Normalize(append([]float64(nil), vec...))

	hits, err := idx.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// assemble keeps index order, drops ids with no passage and applies the context budget.
// Scores and IDs always mirror the hits, even for passages that were left out.
func (s *RAGService) assemble(hits []domain.Hit) domain.RetrievalResult {
	store := s.res.Passages()
	r := domain.RetrievalResult{
		Scores: make([]float64, 0, len(hits)),
		IDs:    make([]int, 0, len(hits)),
	}
	used := 0
	for _, h := range hits {
		r.Scores = append(r.Scores, h.Score)
		r.IDs = append(r.IDs, h.ID)
		p, ok := store.Get(h.ID)
		if !ok {
			continue
		}
		if limit := s.opts.MaxContextChars; limit > 0 && len(r.Passages) > 0 {
			if used+utf8.RuneCountInString(ContextSeparator)+utf8.RuneCountInString(p.Text) > limit {
				continue
			}
		}
		if len(r.Passages) > 0 {
			used += utf8.RuneCountInString(ContextSeparator)
		}
		used += utf8.RuneCountInString(p.Text)
		r.Passages = append(r.Passages, p)
	}
	r.Context = JoinPassages(r.Texts())
	return r
}

// Generate asks the generator to answer question from contextText.
// Failures come back as answer text starting with ErrorMarker.
func (s *RAGService) Generate(ctx context.Context, question, contextText string) string {
	gen := s.res.Generator()
	if gen == nil {
		s.log.Error("error generating answer", zap.Error(domain.ErrNotReady))
		return ErrorMarker + domain.ErrNotReady.Error()
	}
	if s.opts.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.GenerationTimeout)
		defer cancel()
	}
	out, err := gen.Generate(ctx, s.opts.Prompt.Build(question, contextText))
	if err != nil {
		s.log.Error("error generating answer", zap.String("generator", gen.Name()), zap.Error(err))
		return ErrorMarker + err.Error()
	}
	return strings.TrimSpace(out)
}

// Ask runs retrieval and generation. An empty context is an error; a generation
// failure is not (it is carried in the answer text).
func (s *RAGService) Ask(ctx context.Context, question string, topK int) (domain.AnswerResult, error) {
	question = strings.TrimSpace(question)
	r, err := s.Retrieve(ctx, question, topK)
	if r.Empty() {
		if err == nil {
			err = domain.ErrNoResults
		}
		return domain.AnswerResult{}, fmt.Errorf("%w: %w", domain.ErrEmptyContext, err)
	}
	answer := s.Generate(ctx, question, r.Context)
	return domain.AnswerResult{
		Question:     question,
		Answer:       answer,
		Context:      r.Context,
		Scores:       r.Scores,
		RetrievedIDs: r.IDs,
		Timestamp:    s.now().UTC(),
	}, nil
}

func (s *RAGService) clampTopK(topK int) int {
	if topK <= 0 {
		return s.opts.DefaultTopK
	}
	if topK > s.opts.MaxTopK {
		return s.opts.MaxTopK
	}
	return topK
}

// JoinPassages builds a context string from passage texts.
func JoinPassages(texts []string) string {
	return strings.Join(texts, ContextSeparator)
}

// SplitContext splits a joined context back into passages. An empty context yields none.
func SplitContext(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ContextSeparator)
}
