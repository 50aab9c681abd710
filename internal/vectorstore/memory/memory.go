package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ragqa/internal/domain"
)

// Storage is a simple in-memory vector index using brute-force inner product.
// Vectors are expected to be L2-normalized, which makes the score a cosine similarity.
// Vector i is stored under id i unless Upsert says otherwise.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	ids       []int
	vectors   [][]float64
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.ids = nil
	s.vectors = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, ids []int, vectors [][]float64) error {
	if len(ids) != len(vectors) {
		return errors.New("ids and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("vector %d dimension mismatch: got %d want %d", ids[i], len(v), s.dimension)
		}
	}
	s.ids = append(s.ids, ids...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Search returns at most topK hits ordered by descending score. Ties keep insertion order.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return nil, errors.New("index not initialized")
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: got %d want %d", len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = dot(s.vectors[i], vector)
	}
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	hits := make([]domain.Hit, 0, topK)
	for _, j := range idxs[:topK] {
		hits = append(hits, domain.Hit{ID: s.ids[j], Score: scores[j]})
	}
	return hits, nil
}

// Count returns the number of stored vectors.
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Dimension returns the vector width the index was initialized with.
func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}
