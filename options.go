package questor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EmbeddingResult is the public embedding result type.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Embedder is the public embedding provider interface. Implement it to
// plug a custom provider into the client instead of the OpenAI transport.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// CompletionRequest is the public chat completion request type.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
}

// Completer is the public completion provider interface.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type clientConfig struct {
	apiKey          string
	baseURL         string
	embeddingModel  string
	dimensions      int
	completionModel string

	embedder  Embedder
	completer Completer

	cacheAddrs    []string
	cachePassword string

	chunkSize    int
	chunkOverlap int
	batchSize    int
	batchPause   time.Duration

	topK      int
	threshold float64
	maxRounds int

	templatesDir string
	logger       *zap.Logger
}

// Option configures the client.
type Option func(*clientConfig)

// WithOpenAI sets the API key (and optional base URL) used for both
// embeddings and completions. baseURL may be empty for the default.
func WithOpenAI(apiKey, baseURL string) Option {
	return func(c *clientConfig) {
		c.apiKey = apiKey
		c.baseURL = baseURL
	}
}

// WithEmbeddingModel overrides the embedding model. dimensions may be 0
// for the provider default.
func WithEmbeddingModel(model string, dimensions int) Option {
	return func(c *clientConfig) {
		c.embeddingModel = model
		c.dimensions = dimensions
	}
}

// WithCompletionModel overrides the chat completion model.
func WithCompletionModel(model string) Option {
	return func(c *clientConfig) { c.completionModel = model }
}

// WithEmbedder plugs a custom embedding provider.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) { c.embedder = e }
}

// WithCompleter plugs a custom completion provider.
func WithCompleter(comp Completer) Option {
	return func(c *clientConfig) { c.completer = comp }
}

// WithRedisCache enables the Redis embedding cache.
func WithRedisCache(addrs []string, password string) Option {
	return func(c *clientConfig) {
		c.cacheAddrs = addrs
		c.cachePassword = password
	}
}

// WithChunking overrides chunk size and overlap (runes).
func WithChunking(size, overlap int) Option {
	return func(c *clientConfig) {
		c.chunkSize = size
		c.chunkOverlap = overlap
	}
}

// WithIngestBatching overrides the embedding batch size and the pause
// between batches.
func WithIngestBatching(size int, pause time.Duration) Option {
	return func(c *clientConfig) {
		c.batchSize = size
		c.batchPause = pause
	}
}

// WithRetrievalDefaults sets top-k and score threshold applied to agents
// that do not carry their own parameters.
func WithRetrievalDefaults(topK int, threshold float64) Option {
	return func(c *clientConfig) {
		c.topK = topK
		c.threshold = threshold
	}
}

// WithMaxRounds caps hand-off rounds per chat session.
func WithMaxRounds(n int) Option {
	return func(c *clientConfig) { c.maxRounds = n }
}

// WithTemplatesDir persists agent records as JSON files under dir. Without
// it agents live in memory only.
func WithTemplatesDir(dir string) Option {
	return func(c *clientConfig) { c.templatesDir = dir }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}
