package domain

import "time"

// RouteStatus is the top-level outcome of one routing session.
type RouteStatus string

const (
	RouteSuccess RouteStatus = "success"
	RouteError   RouteStatus = "error"
)

// ProcessingStep is one trail entry: which agent processed what, in what
// order. Append-only; never mutated after being appended, with the single
// exception of recording a failed hand-off on the last good step.
type ProcessingStep struct {
	Agent          string    `json:"agent"`
	Input          string    `json:"input"`
	Output         string    `json:"output"`
	Timestamp      time.Time `json:"timestamp"`
	NextAgent      string    `json:"next_agent,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	NextAgentError string    `json:"next_agent_error,omitempty"`
}

// HistoryMessage is one entry of shared conversation history handed to a
// routing session by the caller.
type HistoryMessage struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// SharedContext carries caller-supplied state through one routing session.
type SharedContext struct {
	History     []HistoryMessage `json:"history,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// RouteResult is the aggregate outcome of one router invocation.
type RouteResult struct {
	SessionID   string           `json:"session_id"`
	Status      RouteStatus      `json:"status"`
	FinalOutput string           `json:"final_output"`
	Trail       []ProcessingStep `json:"trail"`
	Processed   []string         `json:"processed_agents"`
	Unused      []string         `json:"unused_agents"`
	Error       string           `json:"error,omitempty"`
}

// Evaluation is an agent's self-rated fitness for a message.
type Evaluation struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}
