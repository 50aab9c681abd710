package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"ragqa/internal/domain"
)

type lruItem struct {
	e       entry
	expires time.Time
}

// LRU is an in-process cache bounded by entry count. A zero TTL never expires.
type LRU struct {
	c   *lru.Cache[string, lruItem]
	ttl time.Duration
	now func() time.Time
}

func NewLRU(size int, ttl time.Duration) (*LRU, error) {
	c, err := lru.New[string, lruItem](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c, ttl: ttl, now: time.Now}, nil
}

func (l *LRU) Get(_ context.Context, key string) (domain.RetrievalResult, bool) {
	it, ok := l.c.Get(key)
	if !ok {
		return domain.RetrievalResult{}, false
	}
	if !it.expires.IsZero() && l.now().After(it.expires) {
		l.c.Remove(key)
		return domain.RetrievalResult{}, false
	}
	return it.e.result(), true
}

func (l *LRU) Set(_ context.Context, key string, r domain.RetrievalResult) {
	it := lruItem{e: toEntry(r)}
	if l.ttl > 0 {
		it.expires = l.now().Add(l.ttl)
	}
	l.c.Add(key, it)
}

// Len returns the number of cached entries.
func (l *LRU) Len() int { return l.c.Len() }
