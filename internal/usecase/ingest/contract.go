package ingest

import (
	"context"

	"github.com/questor-ai/questor/internal/domain"
)

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Extractor turns a document file into plain text.
type Extractor interface {
	Extract(path string) (string, error)
}

// Splitter cuts plain text into overlapping chunks.
type Splitter interface {
	Split(text string) []string
}
