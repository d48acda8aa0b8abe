package questor

import (
	"time"

	"github.com/questor-ai/questor/internal/domain"
	"github.com/questor-ai/questor/internal/usecase/ingest"
)

// AgentConfig describes one agent. Kind is "dynamic", "question_based"
// or "research".
type AgentConfig struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	BasePrompt     string         `json:"base_prompt"`
	Kind           string         `json:"type"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	KnowledgeDir   string         `json:"knowledge_dir"`
	QueryTemplates []string       `json:"query_templates,omitempty"`
}

// Passage is one retrieved knowledge fragment with its cosine score.
type Passage struct {
	Text     string
	Source   string
	Sequence int
	Score    float64
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Files   int
	Chunks  int
	Indexed int
	Failed  int
}

// Message is one entry of conversation history handed to Chat.
type Message struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// ChatOptions carries optional per-session state.
type ChatOptions struct {
	History     []Message
	Temperature *float64
}

// ChatStep is one trail entry of a chat session.
type ChatStep struct {
	Agent        string
	Input        string
	Output       string
	Timestamp    time.Time
	NextAgent    string
	Reason       string
	HandoffError string
}

// ChatResult is the outcome of one chat session.
type ChatResult struct {
	SessionID   string
	Status      string
	FinalOutput string
	Trail       []ChatStep
	Processed   []string
	Unused      []string
	Error       string
}

func recordFromConfig(cfg AgentConfig) domain.AgentRecord {
	return domain.AgentRecord{
		Name:           cfg.Name,
		Description:    cfg.Description,
		BasePrompt:     cfg.BasePrompt,
		Kind:           cfg.Kind,
		Parameters:     cfg.Parameters,
		KnowledgeDir:   cfg.KnowledgeDir,
		QueryTemplates: cfg.QueryTemplates,
	}
}

func configFromRecord(rec domain.AgentRecord) AgentConfig {
	return AgentConfig{
		Name:           rec.Name,
		Description:    rec.Description,
		BasePrompt:     rec.BasePrompt,
		Kind:           rec.Kind,
		Parameters:     rec.Parameters,
		KnowledgeDir:   rec.KnowledgeDir,
		QueryTemplates: rec.QueryTemplates,
	}
}

func statsFromResult(r ingest.Result) IngestStats {
	return IngestStats{Files: r.Files, Chunks: r.Chunks, Indexed: r.Indexed, Failed: r.Failed}
}

func passagesFromScored(scored []domain.ScoredPassage) []Passage {
	out := make([]Passage, len(scored))
	for i, sp := range scored {
		out[i] = Passage{
			Text:     sp.Passage.Text,
			Source:   sp.Passage.Source,
			Sequence: sp.Passage.Sequence,
			Score:    sp.Score,
		}
	}
	return out
}

func sharedFromOptions(opts *ChatOptions) *domain.SharedContext {
	if opts == nil {
		return nil
	}
	shared := &domain.SharedContext{Temperature: opts.Temperature}
	for _, m := range opts.History {
		shared.History = append(shared.History, domain.HistoryMessage{
			Sender:  m.Sender,
			Content: m.Content,
		})
	}
	return shared
}

func chatFromRoute(r domain.RouteResult) ChatResult {
	out := ChatResult{
		SessionID:   r.SessionID,
		Status:      string(r.Status),
		FinalOutput: r.FinalOutput,
		Processed:   r.Processed,
		Unused:      r.Unused,
		Error:       r.Error,
	}
	for _, step := range r.Trail {
		out.Trail = append(out.Trail, ChatStep{
			Agent:        step.Agent,
			Input:        step.Input,
			Output:       step.Output,
			Timestamp:    step.Timestamp,
			NextAgent:    step.NextAgent,
			Reason:       step.Reason,
			HandoffError: step.NextAgentError,
		})
	}
	return out
}
