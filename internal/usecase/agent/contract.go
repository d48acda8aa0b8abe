package agent

import (
	"context"

	"github.com/questor-ai/questor/internal/domain"
)

// Completer issues a single chat completion.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}

// Retriever answers similarity queries over a knowledge directory.
type Retriever interface {
	Query(ctx context.Context, dir, text string, topK int, threshold float64) ([]domain.ScoredPassage, error)
}
