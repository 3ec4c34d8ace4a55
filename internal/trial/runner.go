package trial

import (
	"context"
	"fmt"
	"time"

	"agon/internal/arena"
)

// Steppable is a unit the host ticks once per cycle while an evaluation is
// suspended. Bindings satisfy it.
type Steppable interface {
	Step(ctx context.Context) error
}

// Clock is the cooperative suspension capability supplied by the host. Sleep
// must not return before the full duration (scaled by the host's global time
// multiplier) has elapsed, except on context cancellation.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Ticker registers steppables with the host tick loop for the lifetime of a
// binding.
type Ticker interface {
	Register(id string, s Steppable)
	Deregister(id string)
}

// Sampler is the fitness-sampling capability bound to the host supervisor.
// It must be called only for artifacts that are currently bound.
type Sampler interface {
	Sample(ctx context.Context, artifactID string) (float64, error)
}

// SamplerFunc adapts a plain function to the Sampler interface.
type SamplerFunc func(ctx context.Context, artifactID string) (float64, error)

func (f SamplerFunc) Sample(ctx context.Context, artifactID string) (float64, error) {
	return f(ctx, artifactID)
}

// PoolSampler samples fitness by looking the artifact's live binding up in
// the agent pool and delegating to the agent's domain scoring.
type PoolSampler struct {
	pool *arena.Pool
}

func NewPoolSampler(pool *arena.Pool) (*PoolSampler, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PoolSampler{pool: pool}, nil
}

func (s *PoolSampler) Sample(ctx context.Context, artifactID string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	binding, ok := s.pool.Lookup(artifactID)
	if !ok {
		return 0, fmt.Errorf("artifact not bound: %s", artifactID)
	}
	return binding.Fitness(), nil
}
