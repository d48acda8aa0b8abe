package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/domain"
)

const historyWindow = 5

// Process handles one message and returns the generated output.
// Completion failures propagate so callers see that generation failed
// instead of receiving empty text. Retrieval failures degrade to an
// answer without knowledge context.
func (a *Agent) Process(ctx context.Context, message string, shared *domain.SharedContext) (string, error) {
	switch a.kind {
	case domain.KindQuestionBased:
		return a.processQuestionBased(ctx, message)
	case domain.KindResearch:
		return a.processResearch(ctx, message, shared)
	default:
		return a.processDynamic(ctx, message, shared)
	}
}

// processDynamic retrieves knowledge for the message and answers in a
// single completion pass.
func (a *Agent) processDynamic(ctx context.Context, message string, shared *domain.SharedContext) (string, error) {
	passages := a.retrieve(ctx, message, a.topK)

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", message)
	a.writeHistory(&b, shared)
	a.writePassages(&b, passages)

	result, err := a.completer.Complete(ctx, domain.CompletionRequest{
		System:      a.rec.BasePrompt,
		User:        b.String(),
		Temperature: a.pickTemperature(shared),
	})
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", a.rec.Name, err)
	}
	return result.Text, nil
}

// processResearch folds the rolling conversation window into the prompt
// so follow-up messages stay anchored to the ongoing discussion.
func (a *Agent) processResearch(ctx context.Context, message string, shared *domain.SharedContext) (string, error) {
	passages := a.retrieve(ctx, message, a.topK)

	var b strings.Builder
	if shared != nil && len(shared.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, msg := range tailHistory(shared.History) {
			fmt.Fprintf(&b, "%s: %s\n", msg.Sender, msg.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Current request: %s\n", message)
	a.writePassages(&b, passages)

	result, err := a.completer.Complete(ctx, domain.CompletionRequest{
		System:      a.rec.BasePrompt,
		User:        b.String(),
		Temperature: a.pickTemperature(shared),
	})
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", a.rec.Name, err)
	}
	return result.Text, nil
}

// retrieve queries the agent's knowledge directory, treating failures as
// an empty result set.
func (a *Agent) retrieve(ctx context.Context, query string, k int) []domain.ScoredPassage {
	results, err := a.retriever.Query(ctx, a.rec.KnowledgeDir, query, k, a.threshold)
	if err != nil {
		a.logger.Warn("Knowledge query failed", zap.Error(err))
		return nil
	}
	return results
}

func (a *Agent) writeHistory(b *strings.Builder, shared *domain.SharedContext) {
	if shared == nil || len(shared.History) == 0 {
		return
	}
	b.WriteString("\nRecent history:\n")
	for _, msg := range tailHistory(shared.History) {
		fmt.Fprintf(b, "- %s: %s\n", msg.Sender, msg.Content)
	}
}

func (a *Agent) writePassages(b *strings.Builder, passages []domain.ScoredPassage) {
	if len(passages) == 0 {
		return
	}
	b.WriteString("\nRelevant knowledge:\n")
	for _, p := range passages {
		fmt.Fprintf(b, "- %s\n", p.Passage.Text)
		if a.includeSources {
			fmt.Fprintf(b, "  Source: %s", p.Passage.Source)
			if a.includeScores {
				fmt.Fprintf(b, " (similarity: %.4f)", p.Score)
			}
			b.WriteString("\n")
		} else if a.includeScores {
			fmt.Fprintf(b, "  Similarity: %.4f\n", p.Score)
		}
	}
}

func (a *Agent) pickTemperature(shared *domain.SharedContext) float32 {
	if shared != nil && shared.Temperature != nil {
		return float32(*shared.Temperature)
	}
	return float32(a.temperature)
}

func tailHistory(history []domain.HistoryMessage) []domain.HistoryMessage {
	if len(history) > historyWindow {
		return history[len(history)-historyWindow:]
	}
	return history
}
