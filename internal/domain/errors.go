package domain

import "errors"

var (
	// ErrNotFound signals a missing resource (no index snapshot, unknown template).
	ErrNotFound = errors.New("not found")
	// ErrAgentNotFound signals an unknown agent name.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrAgentAlreadyExists signals a duplicate agent registration.
	ErrAgentAlreadyExists = errors.New("agent already exists")
	// ErrEmptyInput signals an empty query or message.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidRecord signals an agent record that failed validation.
	ErrInvalidRecord = errors.New("invalid agent record")
	// ErrNoEmbedding signals that no embedding could be produced for the input
	// (blank text, or the provider returned a zero-norm vector).
	ErrNoEmbedding = errors.New("no embedding")
	// ErrDimensionMismatch signals a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrIndexCorrupted signals a snapshot that is present but unreadable or inconsistent.
	// Never auto-repaired; the caller must re-run ingestion.
	ErrIndexCorrupted = errors.New("index corrupted")
	// ErrNoValidVectors signals an ingestion run that produced zero usable vectors.
	ErrNoValidVectors = errors.New("no valid vectors produced")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrCompletionProviderError signals a completion provider failure.
	ErrCompletionProviderError = errors.New("completion provider error")
	// ErrUnsupportedFormat signals a source file format without an extractor.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)
