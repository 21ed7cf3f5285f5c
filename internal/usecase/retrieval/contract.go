package retrieval

import (
	"context"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// Repository defines the internal store contract for hybrid retrieval.
type Repository interface {
	// SearchLexical runs a BM25-style keyword ranking and returns up to k
	// hits with 1-based ranks and provider-native scores.
	SearchLexical(ctx context.Context, query string, k int) ([]domain.SearchHit, error)

	// SearchDense runs a nearest-neighbor ranking over the query vector.
	SearchDense(ctx context.Context, vector []float32, k int) ([]domain.SearchHit, error)
}

// Embedder vectorizes query text for dense retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
