package router

import (
	"context"

	"github.com/questor-ai/questor/internal/domain"
	"github.com/questor-ai/questor/internal/usecase/agent"
)

// Agent is the behavior the router needs from a processing unit.
type Agent interface {
	Name() string
	EvaluateCapability(ctx context.Context, message string) domain.Evaluation
	MakeDecision(ctx context.Context, message string) string
	Process(ctx context.Context, message string, shared *domain.SharedContext) (string, error)
}

// Pool exposes the agent registry as an ordered collection.
type Pool interface {
	Get(name string) (Agent, error)
	List() []Agent
}

// registryPool adapts *agent.Registry to the Pool contract.
type registryPool struct {
	reg *agent.Registry
}

// WrapRegistry exposes a concrete registry through the Pool contract.
func WrapRegistry(reg *agent.Registry) Pool {
	return &registryPool{reg: reg}
}

func (p *registryPool) Get(name string) (Agent, error) {
	a, err := p.reg.Get(name)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (p *registryPool) List() []Agent {
	agents := p.reg.List()
	out := make([]Agent, len(agents))
	for i, a := range agents {
		out[i] = a
	}
	return out
}
