// Package cache stores successful retrieval results keyed on (query, top_k).
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"

	"ragqa/internal/domain"
)

const keyPrefix = "ragqa:retrieve:"

// Cache is a best-effort result cache. Implementations treat backend errors as misses.
type Cache interface {
	Get(ctx context.Context, key string) (domain.RetrievalResult, bool)
	Set(ctx context.Context, key string, r domain.RetrievalResult)
}

// Key derives the cache key for a query and result count.
func Key(query string, topK int) string {
	h := sha1.Sum([]byte(strings.TrimSpace(query)))
	return keyPrefix + hex.EncodeToString(h[:]) + ":" + strconv.Itoa(topK)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (domain.RetrievalResult, bool) {
	return domain.RetrievalResult{}, false
}

func (Nop) Set(context.Context, string, domain.RetrievalResult) {}

// entry is the serialized form shared by the backends.
type entry struct {
	IDs      []int     `json:"ids"`
	Scores   []float64 `json:"scores"`
	Passages []int     `json:"passages"`
	Texts    []string  `json:"texts"`
	Context  string    `json:"context"`
}

func toEntry(r domain.RetrievalResult) entry {
	e := entry{
		IDs:      append([]int(nil), r.IDs...),
		Scores:   append([]float64(nil), r.Scores...),
		Passages: make([]int, len(r.Passages)),
		Texts:    make([]string, len(r.Passages)),
		Context:  r.Context,
	}
	for i, p := range r.Passages {
		e.Passages[i] = p.ID
		e.Texts[i] = p.Text
	}
	return e
}

// valid reports whether the parallel slices line up. Entries written by an
// older build or edited by hand may not.
func (e entry) valid() bool {
	return len(e.Passages) == len(e.Texts) && len(e.IDs) == len(e.Scores)
}

func (e entry) result() domain.RetrievalResult {
	r := domain.RetrievalResult{
		IDs:      append([]int(nil), e.IDs...),
		Scores:   append([]float64(nil), e.Scores...),
		Passages: make([]domain.Passage, len(e.Passages)),
		Context:  e.Context,
	}
	for i := range e.Passages {
		r.Passages[i] = domain.Passage{ID: e.Passages[i], Text: e.Texts[i]}
	}
	return r
}
