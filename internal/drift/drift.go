// Package drift provides the built-in demonstration task: a point agent that
// must steer itself onto a fixed target. The artifact reads the offset to the
// target and writes a velocity; fitness rises as the final distance shrinks.
package drift

import (
	"context"
	"fmt"
	"math"

	"agon/internal/arena"
	"agon/internal/phenome"
)

const (
	// Inputs and Outputs are the artifact vector sizes the task expects.
	Inputs  = 2
	Outputs = 2
)

type Config struct {
	// Target position on the plane.
	TargetX, TargetY float64
	// StepSize scales the artifact's velocity output per host tick.
	StepSize float64
	// Bound clamps positions to [-Bound, Bound] on both axes.
	Bound float64
}

func (c Config) withDefaults() Config {
	if c.StepSize <= 0 {
		c.StepSize = 0.05
	}
	if c.Bound <= 0 {
		c.Bound = 10
	}
	if c.TargetX == 0 && c.TargetY == 0 {
		c.TargetX, c.TargetY = 3, 4
	}
	return c
}

// Agent is a poolable drift agent. All episode state lives here and is reset
// on both bind and release, so a recycled instance starts every trial cold.
type Agent struct {
	cfg Config

	enabled  bool
	x, y     float64
	artifact phenome.Artifact
}

// NewFactory returns the pool construction hook for drift agents.
func NewFactory(cfg Config) arena.Factory {
	cfg = cfg.withDefaults()
	return func() (arena.Agent, error) {
		return &Agent{cfg: cfg}, nil
	}
}

func (a *Agent) OnBind(_ context.Context, artifact phenome.Artifact) error {
	if artifact == nil {
		return fmt.Errorf("artifact is required")
	}
	a.reset()
	a.artifact = artifact
	a.enabled = true
	return nil
}

func (a *Agent) OnRelease(_ context.Context) error {
	a.reset()
	a.artifact = nil
	a.enabled = false
	return nil
}

func (a *Agent) reset() {
	a.x, a.y = 0, 0
}

func (a *Agent) Step(ctx context.Context) error {
	if !a.enabled || a.artifact == nil {
		return nil
	}
	if err := a.artifact.SetInputs([]float64{a.cfg.TargetX - a.x, a.cfg.TargetY - a.y}); err != nil {
		return err
	}
	if err := a.artifact.Activate(ctx); err != nil {
		return err
	}
	out := a.artifact.Outputs()
	if len(out) < 2 {
		return fmt.Errorf("artifact output too small: %d", len(out))
	}
	a.x = clamp(a.x+out[0]*a.cfg.StepSize, a.cfg.Bound)
	a.y = clamp(a.y+out[1]*a.cfg.StepSize, a.cfg.Bound)
	return nil
}

// Fitness is the inverse distance to the target, in (0, 1].
func (a *Agent) Fitness() float64 {
	dx := a.cfg.TargetX - a.x
	dy := a.cfg.TargetY - a.y
	return 1 / (1 + math.Hypot(dx, dy))
}

func clamp(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}
