package domain

import (
	"context"
	"math"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the unit-normalized vector and token usage
// through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// normEpsilon is the tolerance below which a vector counts as zero-norm.
const normEpsilon = 1e-10

// Normalize scales v to unit L2 norm in place.
// Returns ErrNoEmbedding for zero-norm vectors; they must never be indexed.
func Normalize(v []float32) error {
	n := Norm(v)
	if n < normEpsilon {
		return ErrNoEmbedding
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return nil
}

// Norm returns the L2 norm of v, accumulated in float64.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
