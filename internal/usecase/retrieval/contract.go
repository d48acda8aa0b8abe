package retrieval

import (
	"context"

	"github.com/questor-ai/questor/internal/domain"
	"github.com/questor-ai/questor/internal/usecase/ingest"
)

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Ingester builds a snapshot for a knowledge directory.
type Ingester interface {
	Ingest(ctx context.Context, dir string) (ingest.Result, error)
}
