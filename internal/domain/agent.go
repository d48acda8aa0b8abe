package domain

import (
	"fmt"
	"strings"
)

// AgentKind is the closed set of agent behaviors, dispatched through one
// factory keyed on the stored kind string.
type AgentKind string

const (
	// KindDynamic retrieves knowledge and answers in a single pass.
	KindDynamic AgentKind = "dynamic"
	// KindQuestionBased generates research questions, retrieves knowledge
	// per question, and synthesizes a plan.
	KindQuestionBased AgentKind = "question_based"
	// KindResearch folds a rolling conversation window into the prompt.
	KindResearch AgentKind = "research"
)

// ParseAgentKind validates a stored kind string.
func ParseAgentKind(s string) (AgentKind, error) {
	switch k := AgentKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindDynamic, KindQuestionBased, KindResearch:
		return k, nil
	default:
		return "", fmt.Errorf("unknown agent kind %q", s)
	}
}

// AgentRecord is the configuration an agent is constructed from. It is the
// minimal contract the router and agent constructors require; persistence
// of the record itself lives at the edge.
type AgentRecord struct {
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description" yaml:"description"`
	BasePrompt     string         `json:"base_prompt" yaml:"base_prompt"`
	Kind           string         `json:"type" yaml:"type"`
	Parameters     map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	KnowledgeDir   string         `json:"knowledge_dir" yaml:"knowledge_dir"`
	QueryTemplates []string       `json:"query_templates,omitempty" yaml:"query_templates,omitempty"`
}

// Validate checks the fields every constructor depends on.
func (r *AgentRecord) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: agent name is required", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.BasePrompt) == "" {
		return fmt.Errorf("%w: agent %q: base prompt is required", ErrInvalidRecord, r.Name)
	}
	if strings.TrimSpace(r.KnowledgeDir) == "" {
		return fmt.Errorf("%w: agent %q: knowledge dir is required", ErrInvalidRecord, r.Name)
	}
	if _, err := ParseAgentKind(r.Kind); err != nil {
		return fmt.Errorf("%w: agent %q: %v", ErrInvalidRecord, r.Name, err)
	}
	return nil
}

// FloatParam reads a float parameter with a fallback. JSON round-trips hand
// us float64; YAML may hand us int.
func (r *AgentRecord) FloatParam(key string, def float64) float64 {
	switch v := r.Parameters[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

// IntParam reads an integer parameter with a fallback.
func (r *AgentRecord) IntParam(key string, def int) int {
	switch v := r.Parameters[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

// BoolParam reads a boolean parameter with a fallback.
func (r *AgentRecord) BoolParam(key string, def bool) bool {
	if v, ok := r.Parameters[key].(bool); ok {
		return v
	}
	return def
}
