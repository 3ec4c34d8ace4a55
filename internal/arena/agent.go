package arena

import (
	"context"

	"agon/internal/phenome"
)

// Agent is a long-lived, poolable unit of behavior. Implementations own their
// episode state: OnBind must reset it to an initial snapshot and enable
// observable behavior, OnRelease must reset it again and disable behavior so a
// recycled instance never leaks state into its next use. The scheduler never
// reaches into agent-specific fields.
type Agent interface {
	OnBind(ctx context.Context, artifact phenome.Artifact) error
	OnRelease(ctx context.Context) error
	Step(ctx context.Context) error
	Fitness() float64
}

// Factory constructs a new agent when the free set is exhausted. Construction
// is the costly path; the pool calls it only when no recycled agent is
// available.
type Factory func() (Agent, error)
