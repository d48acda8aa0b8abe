package agent

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/domain"
)

// mockCompleter replies from a script, one entry per call, and records
// every request it sees.
type mockCompleter struct {
	replies  []string
	err      error
	requests []domain.CompletionRequest
}

func (m *mockCompleter) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return domain.CompletionResult{}, m.err
	}
	reply := "ok"
	if len(m.replies) > 0 {
		reply = m.replies[0]
		m.replies = m.replies[1:]
	}
	return domain.CompletionResult{Text: reply}, nil
}

// mockRetriever returns canned passages and records queries.
type mockRetriever struct {
	results []domain.ScoredPassage
	err     error
	queries []string
}

func (m *mockRetriever) Query(_ context.Context, _, text string, _ int, _ float64) ([]domain.ScoredPassage, error) {
	m.queries = append(m.queries, text)
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func testRecord(kind string) domain.AgentRecord {
	return domain.AgentRecord{
		Name:         "helper",
		Description:  "general purpose test agent",
		BasePrompt:   "You are a helpful assistant.",
		Kind:         kind,
		KnowledgeDir: "/tmp/knowledge",
	}
}

func newTestAgent(t *testing.T, kind string, c Completer, r Retriever) *Agent {
	t.Helper()
	a, err := New(testRecord(kind), c, r, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}
