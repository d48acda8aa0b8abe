package domain

import "context"

type tokenUsageKey struct{}

// TokenUsage collects token usage for a single request. The handler puts a
// mutable pointer into the context before calling the service; services
// write after provider calls; the handler reads it for response headers.
type TokenUsage struct {
	EmbeddingTokens  int
	CompletionTokens int
	Used             bool // true if a provider was called, even on a cache hit with 0 tokens
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *TokenUsage) {
	u := &TokenUsage{}
	return context.WithValue(ctx, tokenUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *TokenUsage {
	u, _ := ctx.Value(tokenUsageKey{}).(*TokenUsage)
	return u
}

// AddEmbeddingTokens records tokens consumed by embedding calls.
func (u *TokenUsage) AddEmbeddingTokens(n int) {
	if u != nil {
		u.EmbeddingTokens += n
		u.Used = true
	}
}

// AddCompletionTokens records tokens consumed by completion calls.
func (u *TokenUsage) AddCompletionTokens(n int) {
	if u != nil {
		u.CompletionTokens += n
		u.Used = true
	}
}
