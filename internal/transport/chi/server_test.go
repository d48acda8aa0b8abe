package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	gochi "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/domain"
	"github.com/questor-ai/questor/internal/usecase/ingest"
)

type mockRouter struct {
	result           domain.RouteResult
	err              error
	completionTokens int

	message string
	agent   string
	shared  *domain.SharedContext
}

func (m *mockRouter) Route(
	ctx context.Context, message, agent string, shared *domain.SharedContext,
) (domain.RouteResult, error) {
	m.message = message
	m.agent = agent
	m.shared = shared
	if m.completionTokens > 0 {
		domain.UsageFromContext(ctx).AddCompletionTokens(m.completionTokens)
	}
	return m.result, m.err
}

type mockManager struct {
	records map[string]domain.AgentRecord
	err     error
}

func (m *mockManager) Create(rec domain.AgentRecord) (domain.AgentRecord, error) {
	if m.err != nil {
		return domain.AgentRecord{}, m.err
	}
	if err := rec.Validate(); err != nil {
		return domain.AgentRecord{}, err
	}
	if _, ok := m.records[rec.Name]; ok {
		return domain.AgentRecord{}, domain.ErrAgentAlreadyExists
	}
	m.records[rec.Name] = rec
	return rec, nil
}

func (m *mockManager) Update(name string, upd domain.AgentRecord) (domain.AgentRecord, error) {
	if m.err != nil {
		return domain.AgentRecord{}, m.err
	}
	rec, ok := m.records[name]
	if !ok {
		return domain.AgentRecord{}, domain.ErrNotFound
	}
	if upd.Description != "" {
		rec.Description = upd.Description
	}
	m.records[name] = rec
	return rec, nil
}

func (m *mockManager) Delete(name string) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.records[name]; !ok {
		return domain.ErrNotFound
	}
	delete(m.records, name)
	return nil
}

func (m *mockManager) Record(name string) (domain.AgentRecord, error) {
	if m.err != nil {
		return domain.AgentRecord{}, m.err
	}
	rec, ok := m.records[name]
	if !ok {
		return domain.AgentRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *mockManager) Records() ([]domain.AgentRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.AgentRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

type mockIngester struct {
	result ingest.Result
	err    error
	dir    string
}

func (m *mockIngester) Ingest(_ context.Context, dir string) (ingest.Result, error) {
	m.dir = dir
	return m.result, m.err
}

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func agentRecord(name string) domain.AgentRecord {
	return domain.AgentRecord{
		Name:         name,
		Description:  "test agent",
		BasePrompt:   "You are a test agent.",
		Kind:         "dynamic",
		KnowledgeDir: "knowledge/" + name,
	}
}

type testServer struct {
	handler  http.Handler
	router   *mockRouter
	manager  *mockManager
	ingester *mockIngester
}

func newTestServer(t *testing.T, db Pinger) *testServer {
	t.Helper()
	ts := &testServer{
		router:   &mockRouter{},
		manager:  &mockManager{records: map[string]domain.AgentRecord{}},
		ingester: &mockIngester{},
	}
	srv := NewServer(ts.router, ts.manager, ts.ingester, db, zap.NewNop())
	r := gochi.NewRouter()
	srv.Mount(r)
	ts.handler = r
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func TestChat(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.router.result = domain.RouteResult{
		SessionID:   "s1",
		Status:      domain.RouteSuccess,
		FinalOutput: "answer",
		Trail:       []domain.ProcessingStep{{Agent: "helper", Input: "hi", Output: "answer"}},
	}

	rr := ts.do(t, "POST", "/v1/chat", ChatRequest{Message: "hi", Agent: "helper"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}

	var result domain.RouteResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.FinalOutput != "answer" || len(result.Trail) != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if ts.router.message != "hi" || ts.router.agent != "helper" {
		t.Errorf("router called with message=%q agent=%q", ts.router.message, ts.router.agent)
	}
}

func TestChat_PassesSharedContext(t *testing.T) {
	ts := newTestServer(t, nil)

	temp := 0.2
	req := ChatRequest{
		Message: "hi",
		Agent:   "helper",
		Context: &domain.SharedContext{
			History:     []domain.HistoryMessage{{Sender: "user", Content: "earlier"}},
			Temperature: &temp,
		},
	}
	if rr := ts.do(t, "POST", "/v1/chat", req); rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	if ts.router.shared == nil || len(ts.router.shared.History) != 1 {
		t.Fatalf("shared context not forwarded: %+v", ts.router.shared)
	}
	if ts.router.shared.Temperature == nil || *ts.router.shared.Temperature != 0.2 {
		t.Error("temperature override not forwarded")
	}
}

func TestChat_UsageHeaders(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.router.result = domain.RouteResult{SessionID: "s1", Status: domain.RouteSuccess}
	ts.router.completionTokens = 42

	rr := ts.do(t, "POST", "/v1/chat", ChatRequest{Message: "hi", Agent: "helper"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("X-Completion-Tokens"); got != "42" {
		t.Errorf("X-Completion-Tokens = %q, want 42", got)
	}
	if got := rr.Header().Get("X-Embedding-Tokens"); got != "0" {
		t.Errorf("X-Embedding-Tokens = %q, want 0", got)
	}
}

func TestChat_Validation(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		req  ChatRequest
	}{
		{"empty message", ChatRequest{Agent: "helper"}},
		{"whitespace message", ChatRequest{Message: "   ", Agent: "helper"}},
		{"missing agent", ChatRequest{Message: "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, "POST", "/v1/chat", tt.req)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestChat_UnknownAgent(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.router.err = domain.ErrAgentNotFound

	rr := ts.do(t, "POST", "/v1/chat", ChatRequest{Message: "hi", Agent: "ghost"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestChat_FailedSessionCarriesPartialTrail(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.router.result = domain.RouteResult{
		SessionID: "s1",
		Status:    domain.RouteError,
		Error:     "completion provider error",
		Trail:     []domain.ProcessingStep{{Agent: "helper", Input: "hi"}},
	}
	ts.router.err = fmt.Errorf("process: %w", domain.ErrCompletionProviderError)

	rr := ts.do(t, "POST", "/v1/chat", ChatRequest{Message: "hi", Agent: "helper"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}

	var result domain.RouteResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Status != domain.RouteError || len(result.Trail) != 1 {
		t.Errorf("partial trail missing: %+v", result)
	}
}

func TestAgentCRUD(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, "POST", "/v1/agents", agentRecord("helper"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body)
	}

	rr = ts.do(t, "GET", "/v1/agents/helper", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var rec domain.AgentRecord
	if err := json.NewDecoder(rr.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.Name != "helper" {
		t.Errorf("Name = %q", rec.Name)
	}

	rr = ts.do(t, "PUT", "/v1/agents/helper", domain.AgentRecord{Description: "updated"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d", rr.Code)
	}

	rr = ts.do(t, "GET", "/v1/agents", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var list AgentListResponse
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.Items[0].Description != "updated" {
		t.Errorf("unexpected list: %+v", list)
	}

	rr = ts.do(t, "DELETE", "/v1/agents/helper", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = ts.do(t, "GET", "/v1/agents/helper", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rr.Code)
	}
}

func TestCreateAgent_Invalid(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := agentRecord("broken")
	rec.BasePrompt = ""
	rr := ts.do(t, "POST", "/v1/agents", rec)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatal(err)
	}
	if errResp.Code != CodeValidationFailed {
		t.Errorf("code = %s, want %s", errResp.Code, CodeValidationFailed)
	}
}

func TestCreateAgent_Duplicate(t *testing.T) {
	ts := newTestServer(t, nil)

	if rr := ts.do(t, "POST", "/v1/agents", agentRecord("helper")); rr.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rr.Code)
	}
	rr := ts.do(t, "POST", "/v1/agents", agentRecord("helper"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
}

func TestIngestAgent(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.manager.records["helper"] = agentRecord("helper")
	ts.ingester.result = ingest.Result{Files: 2, Chunks: 10, Indexed: 10}

	rr := ts.do(t, "POST", "/v1/agents/helper/ingest", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}

	if ts.ingester.dir != "knowledge/helper" {
		t.Errorf("ingested dir = %q", ts.ingester.dir)
	}
	var result ingest.Result
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Indexed != 10 {
		t.Errorf("Indexed = %d", result.Indexed)
	}
}

func TestIngestAgent_ProviderFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.manager.records["helper"] = agentRecord("helper")
	ts.ingester.err = fmt.Errorf("embed: %w", domain.ErrNoValidVectors)

	rr := ts.do(t, "POST", "/v1/agents/helper/ingest", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestIngestAgent_UnknownAgent(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(t, "POST", "/v1/agents/ghost/ingest", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name      string
		db        Pinger
		wantCache string
	}{
		{"no cache configured", nil, ""},
		{"cache ok", &mockPinger{}, "ok"},
		{"cache down", &mockPinger{err: errors.New("refused")}, "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.db)

			rr := ts.do(t, "GET", "/healthz", nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != "ok" || resp.Cache != tt.wantCache {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrAgentNotFound, http.StatusNotFound},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrAgentAlreadyExists, http.StatusConflict},
		{domain.ErrInvalidRecord, http.StatusBadRequest},
		{domain.ErrEmptyInput, http.StatusBadRequest},
		{domain.ErrEmbeddingProviderError, http.StatusBadGateway},
		{domain.ErrCompletionProviderError, http.StatusBadGateway},
		{errors.New("opaque failure"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.manager.err = tt.err

			rr := ts.do(t, "GET", "/v1/agents", nil)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
