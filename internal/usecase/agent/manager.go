package agent

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/domain"
)

// TemplateStore persists agent records between restarts.
type TemplateStore interface {
	Load(name string) (domain.AgentRecord, error)
	List() ([]domain.AgentRecord, error)
	Save(rec domain.AgentRecord) error
	Update(name string, upd domain.AgentRecord) (domain.AgentRecord, error)
	Delete(name string) error
	Exists(name string) (bool, error)
}

// Factory builds agents from records with a fixed set of providers.
type Factory struct {
	completer Completer
	retriever Retriever
	logger    *zap.Logger
	topK      int
	threshold float64
}

// NewFactory creates an agent factory.
func NewFactory(completer Completer, retriever Retriever, logger *zap.Logger) *Factory {
	return &Factory{completer: completer, retriever: retriever, logger: logger}
}

// WithRetrievalDefaults sets retrieval parameters applied to records that
// do not carry their own.
func (f *Factory) WithRetrievalDefaults(topK int, threshold float64) *Factory {
	f.topK = topK
	f.threshold = threshold
	return f
}

// Build constructs an agent from a record.
func (f *Factory) Build(rec domain.AgentRecord) (*Agent, error) {
	if f.topK > 0 || f.threshold > 0 {
		params := make(map[string]any, len(rec.Parameters)+2)
		for k, v := range rec.Parameters {
			params[k] = v
		}
		if f.topK > 0 {
			if _, ok := params["max_knowledge_items"]; !ok {
				params["max_knowledge_items"] = f.topK
			}
		}
		if f.threshold > 0 {
			if _, ok := params["similarity_threshold"]; !ok {
				params["similarity_threshold"] = f.threshold
			}
		}
		rec.Parameters = params
	}
	return New(rec, f.completer, f.retriever, f.logger)
}

// Manager keeps the live registry and the template store in step: every
// mutation persists first, then updates the registry.
type Manager struct {
	reg     *Registry
	store   TemplateStore
	factory *Factory
	logger  *zap.Logger
}

// NewManager creates an agent manager.
func NewManager(reg *Registry, store TemplateStore, factory *Factory, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{reg: reg, store: store, factory: factory, logger: logger}
}

// LoadAll registers an agent for every stored record. Records that fail to
// build are logged and skipped so one bad template never blocks startup.
func (m *Manager) LoadAll() error {
	records, err := m.store.List()
	if err != nil {
		return fmt.Errorf("list agent templates: %w", err)
	}
	for _, rec := range records {
		a, err := m.factory.Build(rec)
		if err != nil {
			m.logger.Warn("Skipping agent template",
				zap.String("agent", rec.Name),
				zap.Error(err),
			)
			continue
		}
		if err := m.reg.Register(a); err != nil {
			m.logger.Warn("Skipping duplicate agent template",
				zap.String("agent", rec.Name),
				zap.Error(err),
			)
		}
	}
	m.logger.Info("Agents loaded", zap.Int("count", m.reg.Len()))
	return nil
}

// Create persists a new record and registers its agent.
func (m *Manager) Create(rec domain.AgentRecord) (domain.AgentRecord, error) {
	a, err := m.factory.Build(rec)
	if err != nil {
		return domain.AgentRecord{}, err
	}

	exists, err := m.store.Exists(rec.Name)
	if err != nil {
		return domain.AgentRecord{}, err
	}
	if exists {
		return domain.AgentRecord{}, fmt.Errorf("agent %s: %w", rec.Name, domain.ErrAgentAlreadyExists)
	}
	if err := m.store.Save(rec); err != nil {
		return domain.AgentRecord{}, err
	}

	if err := m.reg.Register(a); err != nil {
		return domain.AgentRecord{}, err
	}
	m.logger.Info("Agent created", zap.String("agent", rec.Name), zap.String("kind", rec.Kind))
	return rec, nil
}

// Update merges the given fields into the stored record and swaps the live
// agent for one built from the result.
func (m *Manager) Update(name string, upd domain.AgentRecord) (domain.AgentRecord, error) {
	rec, err := m.store.Update(name, upd)
	if err != nil {
		return domain.AgentRecord{}, err
	}

	a, err := m.factory.Build(rec)
	if err != nil {
		return domain.AgentRecord{}, err
	}
	if err := m.reg.Remove(name); err != nil && !isNotFound(err) {
		return domain.AgentRecord{}, err
	}
	if err := m.reg.Register(a); err != nil {
		return domain.AgentRecord{}, err
	}
	m.logger.Info("Agent updated", zap.String("agent", name))
	return rec, nil
}

// Delete removes the agent from the registry and its record from the store.
func (m *Manager) Delete(name string) error {
	if err := m.store.Delete(name); err != nil {
		return err
	}
	if err := m.reg.Remove(name); err != nil && !isNotFound(err) {
		return err
	}
	m.logger.Info("Agent deleted", zap.String("agent", name))
	return nil
}

// Record returns the stored record for one agent.
func (m *Manager) Record(name string) (domain.AgentRecord, error) {
	return m.store.Load(name)
}

// Records returns every stored record.
func (m *Manager) Records() ([]domain.AgentRecord, error) {
	return m.store.List()
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrAgentNotFound) || errors.Is(err, domain.ErrNotFound)
}
