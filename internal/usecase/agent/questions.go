package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/questor-ai/questor/internal/domain"
)

const (
	questionCount     = 4
	questionTopK      = 3
	maxPassageExcerpt = 500
)

var questionLineRe = regexp.MustCompile(`(?m)^\s*Question\s+\d+\s*:\s*(.+?)\s*$`)

// processQuestionBased turns the message into research questions, gathers
// knowledge for each, and synthesizes a plan. Finding no knowledge is
// fine; the plan is then built from the questions alone.
func (a *Agent) processQuestionBased(ctx context.Context, message string) (string, error) {
	questions, err := a.generateQuestions(ctx, message)
	if err != nil {
		return "", fmt.Errorf("agent %s: generate questions: %w", a.rec.Name, err)
	}

	parsed := parseQuestions(questions)
	if len(parsed) == 0 {
		a.logger.Warn("No parseable questions in reply, planning without knowledge lookup")
	}

	knowledge := make(map[string][]domain.ScoredPassage, len(parsed))
	for _, q := range parsed {
		if results := a.retrieve(ctx, q, questionTopK); len(results) > 0 {
			knowledge[q] = results
		}
	}

	return a.synthesizePlan(ctx, message, questions, parsed, knowledge)
}

// generateQuestions issues one completion asking for numbered questions
// in a fixed parseable format.
func (a *Agent) generateQuestions(ctx context.Context, topic string) (string, error) {
	prompt := fmt.Sprintf(`Generate exactly %d specific research questions for the following research area.

Research area: %s

Format each line as:
Question 1: ...?
Question 2: ...?

Rules:
1. Every line must start with "Question N:"
2. Every question must end with a question mark
3. Cover background, methodology, experimental design, and practical value`,
		questionCount, topic)

	result, err := a.completer.Complete(ctx, domain.CompletionRequest{
		System:      a.rec.BasePrompt,
		User:        prompt,
		Temperature: float32(a.temperature),
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// parseQuestions extracts the question text from "Question N:" lines.
func parseQuestions(text string) []string {
	var questions []string
	for _, m := range questionLineRe.FindAllStringSubmatch(text, -1) {
		q := strings.TrimSpace(m[1])
		if q != "" {
			questions = append(questions, q)
		}
	}
	return questions
}

// synthesizePlan builds the final plan prompt from questions and the
// per-question knowledge found for them.
func (a *Agent) synthesizePlan(
	ctx context.Context, topic, rawQuestions string,
	parsed []string, knowledge map[string][]domain.ScoredPassage,
) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a complete research plan for: %s\n\nResearch questions:\n%s\n", topic, rawQuestions)

	if len(knowledge) > 0 {
		b.WriteString("\nRelated knowledge:\n")
		// Iterate parsed order, not map order, so the prompt is stable.
		for _, q := range parsed {
			results, ok := knowledge[q]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "\nOn %q:\n", q)
			for _, p := range results {
				fmt.Fprintf(&b, "- %s\n", excerpt(p.Passage.Text))
				if a.includeSources {
					fmt.Fprintf(&b, "  (source: %s, similarity: %.4f)\n", p.Passage.Source, p.Score)
				}
			}
		}
	}

	b.WriteString(`
Structure the plan with:
1. Background and motivation
2. Objectives
3. Methodology and steps
4. Expected outcomes and practical value
5. Novelty and contribution

Cite the related knowledge where it applies.`)

	result, err := a.completer.Complete(ctx, domain.CompletionRequest{
		System:      a.rec.BasePrompt,
		User:        b.String(),
		Temperature: float32(a.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("agent %s: synthesize plan: %w", a.rec.Name, err)
	}
	return result.Text, nil
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= maxPassageExcerpt {
		return text
	}
	return string(runes[:maxPassageExcerpt]) + "..."
}
