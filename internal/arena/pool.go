package arena

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agon/internal/model"
	"agon/internal/phenome"
)

// ErrPoolInvariant marks a release-discipline bug: an artifact or agent that
// is already bound showing up in a second binding. It is surfaced loudly and
// never recovered silently.
var ErrPoolInvariant = errors.New("agent pool invariant violated")

// Stats exposes the pool counters used by leak checks and tests.
type Stats struct {
	Constructed int
	Acquired    int
	Released    int
	Live        int
}

// Pool manages a bounded set of reusable agents. Agents move Free -> Bound on
// Acquire and back on Release; they are never destroyed during a run. The
// Free/Bound sets are mutated only by the coordinator task.
type Pool struct {
	factory Factory

	mu         sync.Mutex
	free       []Agent
	byAgent    map[Agent]*Binding
	byArtifact map[string]*Binding

	constructed int
	acquired    int
	released    int
}

func NewPool(factory Factory) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("agent factory is required")
	}
	return &Pool{
		factory:    factory,
		byAgent:    make(map[Agent]*Binding),
		byArtifact: make(map[string]*Binding),
	}, nil
}

// Binding is the live pairing of one genome, its decoded artifact, and one
// pooled agent. At most one binding exists per agent and per artifact.
type Binding struct {
	genome   model.Genome
	artifact phenome.Artifact
	agent    Agent

	mu       sync.Mutex
	released bool
}

func (b *Binding) Genome() model.Genome       { return b.genome }
func (b *Binding) Artifact() phenome.Artifact { return b.artifact }
func (b *Binding) ArtifactID() string         { return b.artifact.ID() }
func (b *Binding) Agent() Agent               { return b.agent }

// Step advances the bound agent by one host tick. A released binding is inert.
func (b *Binding) Step(ctx context.Context) error {
	b.mu.Lock()
	released := b.released
	b.mu.Unlock()
	if released {
		return nil
	}
	return b.agent.Step(ctx)
}

// Fitness reads the bound agent's current domain score.
func (b *Binding) Fitness() float64 {
	return b.agent.Fitness()
}

// Acquire hands out a Free agent bound to the given artifact, recycling one
// when available and constructing a new one only when the free set is empty.
func (p *Pool) Acquire(ctx context.Context, genome model.Genome, artifact phenome.Artifact) (*Binding, error) {
	if artifact == nil {
		return nil, fmt.Errorf("artifact is required")
	}

	p.mu.Lock()
	if existing, ok := p.byArtifact[artifact.ID()]; ok && existing != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: artifact %s already bound", ErrPoolInvariant, artifact.ID())
	}
	var agent Agent
	if n := len(p.free); n > 0 {
		agent = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if agent == nil {
		constructed, err := p.factory()
		if err != nil {
			return nil, fmt.Errorf("construct agent: %w", err)
		}
		if constructed == nil {
			return nil, fmt.Errorf("agent factory returned nil")
		}
		agent = constructed
		p.mu.Lock()
		p.constructed++
		p.mu.Unlock()
	}

	if err := agent.OnBind(ctx, artifact); err != nil {
		p.mu.Lock()
		p.free = append(p.free, agent)
		p.mu.Unlock()
		return nil, fmt.Errorf("bind agent for genome %s: %w", genome.ID, err)
	}

	binding := &Binding{genome: genome, artifact: artifact, agent: agent}
	p.mu.Lock()
	p.byAgent[agent] = binding
	p.byArtifact[artifact.ID()] = binding
	p.acquired++
	p.mu.Unlock()
	return binding, nil
}

// Release returns the bound agent to the Free set and clears its artifact
// association. A second release of the same binding is a no-op. The agent
// rejoins the free set even when its deactivation hook fails.
func (p *Pool) Release(ctx context.Context, binding *Binding) error {
	if binding == nil {
		return nil
	}

	binding.mu.Lock()
	if binding.released {
		binding.mu.Unlock()
		return nil
	}
	binding.released = true
	binding.mu.Unlock()

	p.mu.Lock()
	delete(p.byAgent, binding.agent)
	delete(p.byArtifact, binding.artifact.ID())
	p.mu.Unlock()

	err := binding.agent.OnRelease(ctx)

	p.mu.Lock()
	p.free = append(p.free, binding.agent)
	p.released++
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("release agent for genome %s: %w", binding.genome.ID, err)
	}
	return nil
}

// Lookup resolves the live binding for an artifact identity, if any.
func (p *Pool) Lookup(artifactID string) (*Binding, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	binding, ok := p.byArtifact[artifactID]
	return binding, ok
}

// Live reports how many agents are currently Bound.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byAgent)
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Constructed: p.constructed,
		Acquired:    p.acquired,
		Released:    p.released,
		Live:        len(p.byAgent),
	}
}
