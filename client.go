// Package questor embeds the knowledge-backed multi-agent assistant core
// as a library: ingestion, retrieval, and capability-routed chat over a
// set of configured agents, without the HTTP layer.
package questor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/chunk"
	dbRedis "github.com/questor-ai/questor/internal/db/redis"
	"github.com/questor-ai/questor/internal/domain"
	"github.com/questor-ai/questor/internal/extract"
	"github.com/questor-ai/questor/internal/metrics"
	"github.com/questor-ai/questor/internal/repository/embcache"
	"github.com/questor-ai/questor/internal/repository/templates"
	"github.com/questor-ai/questor/internal/retry"
	openaiTransport "github.com/questor-ai/questor/internal/transport/openai"
	agentuc "github.com/questor-ai/questor/internal/usecase/agent"
	ingestuc "github.com/questor-ai/questor/internal/usecase/ingest"
	retrievaluc "github.com/questor-ai/questor/internal/usecase/retrieval"
	routeruc "github.com/questor-ai/questor/internal/usecase/router"
)

const defaultCacheReadiness = 10 * time.Second

// Client is the questor SDK entry point.
type Client struct {
	store     *dbRedis.Store
	ingest    *ingestuc.Service
	retrieval *retrievaluc.Service
	manager   *agentuc.Manager
	router    *routeruc.Service
}

// New creates a questor Client. Either WithOpenAI or both WithEmbedder and
// WithCompleter must be set.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		embeddingModel:  "text-embedding-3-small",
		completionModel: "gpt-4o-mini",
		chunkSize:       1000,
		chunkOverlap:    200,
		batchSize:       5,
		maxRounds:       5,
		logger:          zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	embedder, completer, err := buildProviders(cfg)
	if err != nil {
		return nil, err
	}

	var store *dbRedis.Store
	if len(cfg.cacheAddrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.cacheAddrs,
			Password: cfg.cachePassword,
		})
		if err != nil {
			return nil, fmt.Errorf("questor: create cache store: %w", err)
		}
		if err := store.WaitForReady(context.Background(), defaultCacheReadiness); err != nil {
			store.Close()
			return nil, fmt.Errorf("questor: cache store not ready: %w", err)
		}
		embedder = embcache.New(embedder, store, metrics.EmbeddingCacheTotal, cfg.logger)
	}

	splitter := chunk.NewSplitter(cfg.chunkSize, cfg.chunkOverlap)
	ingestSvc := ingestuc.New(embedder, extract.New(), splitter, ingestuc.Config{
		BatchSize:  cfg.batchSize,
		BatchPause: cfg.batchPause,
	}, cfg.logger)
	retrievalSvc := retrievaluc.New(embedder, ingestSvc, cfg.logger)

	var templateStore agentuc.TemplateStore
	if cfg.templatesDir != "" {
		templateStore, err = templates.New(cfg.templatesDir, cfg.logger)
		if err != nil {
			if store != nil {
				store.Close()
			}
			return nil, fmt.Errorf("questor: open template store: %w", err)
		}
	} else {
		templateStore = newMemTemplateStore()
	}

	registry := agentuc.NewRegistry()
	factory := agentuc.NewFactory(completer, retrievalSvc, cfg.logger).
		WithRetrievalDefaults(cfg.topK, cfg.threshold)
	manager := agentuc.NewManager(registry, templateStore, factory, cfg.logger)
	if err := manager.LoadAll(); err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("questor: load agents: %w", err)
	}

	return &Client{
		store:     store,
		ingest:    ingestSvc,
		retrieval: retrievalSvc,
		manager:   manager,
		router:    routeruc.New(routeruc.WrapRegistry(registry), cfg.maxRounds, cfg.logger),
	}, nil
}

func buildProviders(cfg *clientConfig) (domain.Embedder, agentuc.Completer, error) {
	var embedder domain.Embedder
	switch {
	case cfg.embedder != nil:
		embedder = &embedderAdapter{inner: cfg.embedder}
	case cfg.apiKey != "":
		embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:     cfg.apiKey,
			BaseURL:    cfg.baseURL,
			Model:      cfg.embeddingModel,
			Dimensions: cfg.dimensions,
			Provider:   "openai",
			Retry:      retry.DefaultPolicy(),
			Logger:     cfg.logger,
		})
	default:
		return nil, nil, errors.New("questor: embedding provider required (use WithOpenAI or WithEmbedder)")
	}

	var completer agentuc.Completer
	switch {
	case cfg.completer != nil:
		completer = &completerAdapter{inner: cfg.completer}
	case cfg.apiKey != "":
		completer = openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
			APIKey:   cfg.apiKey,
			BaseURL:  cfg.baseURL,
			Model:    cfg.completionModel,
			Provider: "openai",
			Logger:   cfg.logger,
		})
	default:
		return nil, nil, errors.New("questor: completion provider required (use WithOpenAI or WithCompleter)")
	}

	return embedder, completer, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks cache store connectivity. Without a cache it is a no-op.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Ingest builds (or rebuilds) the snapshot for a knowledge directory.
func (c *Client) Ingest(ctx context.Context, dir string) (IngestStats, error) {
	result, err := c.ingest.Ingest(ctx, dir)
	if err != nil {
		return IngestStats{}, err
	}
	return statsFromResult(result), nil
}

// Query retrieves the top-k passages for a text from a knowledge
// directory. threshold 0 keeps every result.
func (c *Client) Query(
	ctx context.Context, dir, text string, topK int, threshold float64,
) ([]Passage, error) {
	scored, err := c.retrieval.Query(ctx, dir, text, topK, threshold)
	if err != nil {
		return nil, err
	}
	return passagesFromScored(scored), nil
}

// Chat runs one routed session starting at the named agent.
func (c *Client) Chat(
	ctx context.Context, message, agent string, opts *ChatOptions,
) (ChatResult, error) {
	result, err := c.router.Route(ctx, message, agent, sharedFromOptions(opts))
	if err != nil {
		return chatFromRoute(result), err
	}
	return chatFromRoute(result), nil
}

// Agents returns the agent management service.
func (c *Client) Agents() *AgentService {
	return &AgentService{manager: c.manager}
}

// AgentService manages the agent registry.
type AgentService struct {
	manager *agentuc.Manager
}

// Create registers a new agent.
func (s *AgentService) Create(cfg AgentConfig) (AgentConfig, error) {
	rec, err := s.manager.Create(recordFromConfig(cfg))
	if err != nil {
		return AgentConfig{}, err
	}
	return configFromRecord(rec), nil
}

// Update merges non-empty fields into an existing agent.
func (s *AgentService) Update(name string, cfg AgentConfig) (AgentConfig, error) {
	rec, err := s.manager.Update(name, recordFromConfig(cfg))
	if err != nil {
		return AgentConfig{}, err
	}
	return configFromRecord(rec), nil
}

// Delete removes an agent.
func (s *AgentService) Delete(name string) error {
	return s.manager.Delete(name)
}

// Get returns one agent's configuration.
func (s *AgentService) Get(name string) (AgentConfig, error) {
	rec, err := s.manager.Record(name)
	if err != nil {
		return AgentConfig{}, err
	}
	return configFromRecord(rec), nil
}

// List returns every agent configuration.
func (s *AgentService) List() ([]AgentConfig, error) {
	records, err := s.manager.Records()
	if err != nil {
		return nil, err
	}
	out := make([]AgentConfig, len(records))
	for i, rec := range records {
		out[i] = configFromRecord(rec)
	}
	return out, nil
}

// embedderAdapter wraps the public Embedder to satisfy domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// completerAdapter wraps the public Completer to satisfy the internal contract.
type completerAdapter struct {
	inner Completer
}

func (a *completerAdapter) Complete(
	ctx context.Context, req domain.CompletionRequest,
) (domain.CompletionResult, error) {
	text, err := a.inner.Complete(ctx, CompletionRequest{
		System:      req.System,
		User:        req.User,
		Temperature: req.Temperature,
	})
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("complete: %w", err)
	}
	return domain.CompletionResult{Text: text}, nil
}

// memTemplateStore keeps agent records in memory when no templates
// directory is configured.
type memTemplateStore struct {
	mu      sync.Mutex
	records map[string]domain.AgentRecord
}

func newMemTemplateStore() *memTemplateStore {
	return &memTemplateStore{records: map[string]domain.AgentRecord{}}
}

func (s *memTemplateStore) Load(name string) (domain.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	if !ok {
		return domain.AgentRecord{}, fmt.Errorf("template %s: %w", name, domain.ErrNotFound)
	}
	return rec, nil
}

func (s *memTemplateStore) List() ([]domain.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AgentRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memTemplateStore) Save(rec domain.AgentRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Name] = rec
	return nil
}

func (s *memTemplateStore) Update(name string, upd domain.AgentRecord) (domain.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	if !ok {
		return domain.AgentRecord{}, fmt.Errorf("template %s: %w", name, domain.ErrNotFound)
	}
	if upd.Description != "" {
		rec.Description = upd.Description
	}
	if upd.BasePrompt != "" {
		rec.BasePrompt = upd.BasePrompt
	}
	if upd.Kind != "" {
		rec.Kind = upd.Kind
	}
	if upd.KnowledgeDir != "" {
		rec.KnowledgeDir = upd.KnowledgeDir
	}
	if upd.QueryTemplates != nil {
		rec.QueryTemplates = upd.QueryTemplates
	}
	for k, v := range upd.Parameters {
		if rec.Parameters == nil {
			rec.Parameters = map[string]any{}
		}
		rec.Parameters[k] = v
	}
	if err := rec.Validate(); err != nil {
		return domain.AgentRecord{}, err
	}
	s.records[name] = rec
	return rec, nil
}

func (s *memTemplateStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name]; !ok {
		return fmt.Errorf("template %s: %w", name, domain.ErrNotFound)
	}
	delete(s.records, name)
	return nil
}

func (s *memTemplateStore) Exists(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[name]
	return ok, nil
}
