// Package index implements a flat inner-product similarity index over
// unit-normalized vectors, with an on-disk snapshot per knowledge
// directory. Search is exhaustive; there is no approximate structure.
package index

import (
	"fmt"
	"sort"

	"github.com/questor-ai/questor/internal/domain"
)

// Index holds N vectors and N passages in parallel. The two slices grow
// and shrink together; a mutation to one without the other is a
// corruption bug.
type Index struct {
	dim      int
	vectors  [][]float32
	passages []domain.Passage
}

// New creates an empty index with a fixed dimension.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}
	return &Index{dim: dim}, nil
}

// Dim returns the fixed vector dimension.
func (ix *Index) Dim() int { return ix.dim }

// Len returns the number of indexed passages.
func (ix *Index) Len() int { return len(ix.passages) }

// Add appends vectors with their passages. All-or-nothing: every vector
// is dimension-checked before any row is committed.
func (ix *Index) Add(vectors [][]float32, passages []domain.Passage) error {
	if len(vectors) != len(passages) {
		return fmt.Errorf("got %d vectors for %d passages: %w",
			len(vectors), len(passages), domain.ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("vector %d has dimension %d, index expects %d: %w",
				i, len(v), ix.dim, domain.ErrDimensionMismatch)
		}
	}
	ix.vectors = append(ix.vectors, vectors...)
	ix.passages = append(ix.passages, passages...)
	return nil
}

// Search returns the k highest-scoring passages by inner product, sorted
// descending. Ties keep insertion order. Fewer than k rows returns all
// rows. Results are deterministic for a fixed index and query.
func (ix *Index) Search(query []float32, k int) ([]domain.ScoredPassage, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d: %w",
			len(query), ix.dim, domain.ErrDimensionMismatch)
	}
	if k <= 0 || ix.Len() == 0 {
		return nil, nil
	}

	scores := make([]float64, len(ix.vectors))
	for i, v := range ix.vectors {
		scores[i] = dot(v, query)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	results := make([]domain.ScoredPassage, k)
	for i := 0; i < k; i++ {
		j := order[i]
		results[i] = domain.ScoredPassage{Passage: ix.passages[j], Score: scores[j]}
	}
	return results, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
