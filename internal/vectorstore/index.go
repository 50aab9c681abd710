package vectorstore

import (
	"context"

	"ragqa/internal/domain"
)

// Index answers nearest-neighbor queries over precomputed vectors.
// Hit IDs are passage positions; results are ordered by descending score.
type Index interface {
	Search(ctx context.Context, vector []float64, topK int) ([]domain.Hit, error)
	Count() int
}

// Writer stores vectors under positional ids. Used by the offline indexer.
type Writer interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, ids []int, vectors [][]float64) error
}
