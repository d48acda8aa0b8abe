// Package chi is the HTTP edge: routing, request decoding, and the
// domain-error to status-code mapping.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/domain"
	"github.com/questor-ai/questor/internal/usecase/ingest"
	"github.com/questor-ai/questor/internal/version"
)

const healthPingTimeout = 2 * time.Second

// ErrorCode is the machine-readable error discriminator in error bodies.
type ErrorCode string

const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeNotFound         ErrorCode = "not_found"
	CodeAlreadyExists    ErrorCode = "already_exists"
	CodeProviderError    ErrorCode = "provider_error"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Router runs one message through the agent chain.
type Router interface {
	Route(ctx context.Context, message, startAgent string, shared *domain.SharedContext) (domain.RouteResult, error)
}

// AgentManager is the agent lifecycle surface the API exposes.
type AgentManager interface {
	Create(rec domain.AgentRecord) (domain.AgentRecord, error)
	Update(name string, upd domain.AgentRecord) (domain.AgentRecord, error)
	Delete(name string) error
	Record(name string) (domain.AgentRecord, error)
	Records() ([]domain.AgentRecord, error)
}

// Ingester rebuilds the snapshot for one knowledge directory.
type Ingester interface {
	Ingest(ctx context.Context, dir string) (ingest.Result, error)
}

// Pinger is the readiness probe of an optional backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the use case services behind the HTTP API.
type Server struct {
	router        Router
	agents        AgentManager
	ingester      Ingester
	db            Pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. db may be nil when no cache store
// is configured.
func NewServer(router Router, agents AgentManager, ingester Ingester, db Pinger, logger *zap.Logger) *Server {
	s := &Server{
		router:   router,
		agents:   agents,
		ingester: ingester,
		db:       db,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrAgentNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrAgentAlreadyExists, http.StatusConflict, CodeAlreadyExists),
		sentinelHandler(domain.ErrInvalidRecord, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrEmptyInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrNoEmbedding, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrCompletionProviderError, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrNoValidVectors, http.StatusBadGateway, CodeProviderError),
	}
	return s
}

// Mount registers all routes on the given router.
func (s *Server) Mount(r chi.Router) {
	r.Get("/healthz", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.Chat)
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.ListAgents)
			r.Post("/", s.CreateAgent)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.GetAgent)
				r.Put("/", s.UpdateAgent)
				r.Delete("/", s.DeleteAgent)
				r.Post("/ingest", s.IngestAgent)
			})
		})
	})
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Message string                `json:"message"`
	Agent   string                `json:"agent"`
	Context *domain.SharedContext `json:"context,omitempty"`
}

// Chat handles POST /v1/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "message is required")
		return
	}
	if req.Agent == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "agent is required")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())

	result, err := s.router.Route(ctx, req.Message, req.Agent, req.Context)
	setUsageHeaders(w, usage)
	if err != nil {
		// A session that started before failing carries its partial trail.
		if result.SessionID != "" {
			s.logger.Warn("Routing session failed", zap.Error(err),
				zap.String("session_id", result.SessionID))
			writeJSON(w, statusFor(err), result)
			return
		}
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// AgentListResponse is the body of GET /v1/agents.
type AgentListResponse struct {
	Items []domain.AgentRecord `json:"items"`
}

// ListAgents handles GET /v1/agents.
func (s *Server) ListAgents(w http.ResponseWriter, r *http.Request) {
	records, err := s.agents.Records()
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AgentListResponse{Items: records})
}

// CreateAgent handles POST /v1/agents.
func (s *Server) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var rec domain.AgentRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	created, err := s.agents.Create(rec)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetAgent handles GET /v1/agents/{name}.
func (s *Server) GetAgent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.agents.Record(chi.URLParam(r, "name"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateAgent handles PUT /v1/agents/{name}.
func (s *Server) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	var upd domain.AgentRecord
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	rec, err := s.agents.Update(chi.URLParam(r, "name"), upd)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteAgent handles DELETE /v1/agents/{name}.
func (s *Server) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.agents.Delete(chi.URLParam(r, "name")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IngestAgent handles POST /v1/agents/{name}/ingest. It rebuilds the
// snapshot of the agent's knowledge directory synchronously.
func (s *Server) IngestAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := s.agents.Record(name)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())

	result, err := s.ingester.Ingest(ctx, rec.KnowledgeDir)
	setUsageHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Cache   string `json:"cache,omitempty"`
}

// Health handles GET /healthz. A failing cache store degrades the report
// but keeps the service healthy; the cache is optional.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: version.Version}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			resp.Cache = "unreachable"
		} else {
			resp.Cache = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.TokenUsage) {
	if usage == nil || !usage.Used {
		return
	}
	w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.EmbeddingTokens))
	w.Header().Set("X-Completion-Tokens", strconv.Itoa(usage.CompletionTokens))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrAgentNotFound,
		domain.ErrNotFound,
		domain.ErrAgentAlreadyExists,
		domain.ErrInvalidRecord,
		domain.ErrEmptyInput,
		domain.ErrNoEmbedding,
		domain.ErrUnsupportedFormat,
		domain.ErrEmbeddingProviderError,
		domain.ErrCompletionProviderError,
		domain.ErrNoValidVectors,
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

// statusFor maps an error to the status of a chat response that still
// carries a partial result body.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrCompletionProviderError),
		errors.Is(err, domain.ErrEmbeddingProviderError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
