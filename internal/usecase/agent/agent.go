package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/domain"
)

// Default values for agent parameters not present in the record.
const (
	defaultTopK        = 3
	defaultThreshold   = 0.0
	defaultTemperature = 0.7
)

const (
	evalTemperature     = 0.3
	decisionTemperature = 0.1
)

// Agent is a named processing unit: a system prompt, tuning parameters,
// and a knowledge directory, driven by an external completion provider.
// Behavior varies by kind (dynamic, question_based, research).
type Agent struct {
	rec       domain.AgentRecord
	kind      domain.AgentKind
	completer Completer
	retriever Retriever
	logger    *zap.Logger

	topK           int
	threshold      float64
	temperature    float64
	includeSources bool
	includeScores  bool
}

// New builds an agent from its record. The record's kind string selects
// the processing behavior; unknown kinds are rejected here, not at
// process time.
func New(rec domain.AgentRecord, completer Completer, retriever Retriever, logger *zap.Logger) (*Agent, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	kind, err := domain.ParseAgentKind(rec.Kind)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Agent{
		rec:            rec,
		kind:           kind,
		completer:      completer,
		retriever:      retriever,
		logger:         logger.With(zap.String("agent", rec.Name)),
		topK:           rec.IntParam("max_knowledge_items", defaultTopK),
		threshold:      rec.FloatParam("similarity_threshold", defaultThreshold),
		temperature:    rec.FloatParam("temperature", defaultTemperature),
		includeSources: rec.BoolParam("include_sources", true),
		includeScores:  rec.BoolParam("include_scores", true),
	}, nil
}

// Name returns the agent's unique name.
func (a *Agent) Name() string { return a.rec.Name }

// Description returns the agent's human-readable description.
func (a *Agent) Description() string { return a.rec.Description }

// Kind returns the agent's behavior kind.
func (a *Agent) Kind() domain.AgentKind { return a.kind }

// Record returns the configuration the agent was built from.
func (a *Agent) Record() domain.AgentRecord { return a.rec }

// EvaluateCapability asks the model to self-rate its fitness for the
// message. The first line of the reply is parsed as a float and clamped
// to [0,1]; a non-numeric first line scores 0 with the whole reply kept
// as the reason. Never returns an error: a provider failure scores 0.
func (a *Agent) EvaluateCapability(ctx context.Context, message string) domain.Evaluation {
	knowledgeScore := a.peekKnowledgeScore(ctx, message)

	prompt := fmt.Sprintf(`Rate your ability to handle the following message.

Message: %s

Knowledge base relevance: %.2f

Consider:
1. The type and complexity of the message
2. Your specialty: %s
3. Related information available in your knowledge base

Answer with a single number between 0 and 1 on the first line, then give your reasoning on the following lines.`,
		message, knowledgeScore, a.rec.Description)

	result, err := a.completer.Complete(ctx, domain.CompletionRequest{
		System:      a.rec.BasePrompt,
		User:        prompt,
		Temperature: evalTemperature,
	})
	if err != nil {
		a.logger.Warn("Capability evaluation failed", zap.Error(err))
		return domain.Evaluation{Score: 0, Reason: fmt.Sprintf("evaluation failed: %v", err)}
	}

	return parseEvaluation(result.Text)
}

// MakeDecision asks whether the agent should process the message further.
// Any failure or unclear answer defaults to "no": stopping the chain is
// always safer than looping.
func (a *Agent) MakeDecision(ctx context.Context, message string) string {
	prompt := fmt.Sprintf(`Decide whether you should process the following message further.

Message: %s

Consider:
1. Whether the message has already been handled completely
2. Whether further processing would add value
3. Whether your knowledge base has anything left to contribute

Answer 'yes' or 'no' only.`, message)

	result, err := a.completer.Complete(ctx, domain.CompletionRequest{
		System:      a.rec.BasePrompt,
		User:        prompt,
		Temperature: decisionTemperature,
	})
	if err != nil {
		a.logger.Warn("Decision call failed, declining", zap.Error(err))
		return "no"
	}

	answer := strings.ToLower(strings.TrimSpace(result.Text))
	if strings.HasPrefix(answer, "yes") {
		return "yes"
	}
	return "no"
}

// peekKnowledgeScore returns the best similarity for the message, used as
// a hint inside the capability prompt. Retrieval failures are worth 0,
// not an error.
func (a *Agent) peekKnowledgeScore(ctx context.Context, message string) float64 {
	results, err := a.retriever.Query(ctx, a.rec.KnowledgeDir, message, 1, 0)
	if err != nil || len(results) == 0 {
		return 0
	}
	return results[0].Score
}

// parseEvaluation extracts a clamped score from the first line of a reply.
func parseEvaluation(text string) domain.Evaluation {
	lines := strings.SplitN(strings.TrimSpace(text), "\n", 2)

	score, err := strconv.ParseFloat(strings.TrimSpace(lines[0]), 64)
	if err != nil {
		return domain.Evaluation{Score: 0, Reason: strings.TrimSpace(text)}
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	reason := ""
	if len(lines) == 2 {
		reason = strings.TrimSpace(lines[1])
	}
	return domain.Evaluation{Score: score, Reason: reason}
}
