package domain

import "context"

// Completer is the shared text generation contract between layers.
// Failures are fatal to the current step; callers do not retry here.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// CompletionRequest describes one chat completion call.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
}

// CompletionResult carries the generated text and token usage.
type CompletionResult struct {
	Text         string
	PromptTokens int
	TotalTokens  int
}
