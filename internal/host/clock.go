package host

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"agon/internal/trial"
)

// TickClock is the cooperative scheduling host: a single tick loop steps every
// registered steppable once per cycle while evaluation routines are suspended
// in Sleep. Sleep durations are virtual time, divided by the global time
// multiplier to get wall time, and never return early.
type TickClock struct {
	interval   time.Duration
	multiplier float64
	logger     *slog.Logger

	mu         sync.Mutex
	steppables map[string]trial.Steppable
	cancel     context.CancelFunc
	done       chan struct{}
	ticks      uint64
}

func NewTickClock(interval time.Duration, multiplier float64, logger *slog.Logger) *TickClock {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TickClock{
		interval:   interval,
		multiplier: multiplier,
		logger:     logger,
		steppables: make(map[string]trial.Steppable),
	}
}

func (c *TickClock) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return fmt.Errorf("tick clock already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(loopCtx, c.done)
	return nil
}

func (c *TickClock) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *TickClock) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	_ = c.Run(ctx)
}

// Run drives the tick loop until the context is canceled. It blocks, which
// lets the host supervise it as a restartable task.
func (c *TickClock) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *TickClock) tick(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.steppables))
	for id := range c.steppables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	snapshot := make([]trial.Steppable, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, c.steppables[id])
	}
	c.ticks++
	c.mu.Unlock()

	for i, s := range snapshot {
		if err := s.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("agent step failed", "steppable", ids[i], "error", err)
		}
	}
}

func (c *TickClock) Register(id string, s trial.Steppable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steppables[id] = s
}

func (c *TickClock) Deregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.steppables, id)
}

// Sleep suspends the caller for the scaled duration while the tick loop keeps
// stepping bound agents.
func (c *TickClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	scaled := time.Duration(float64(d) / c.multiplier)
	timer := time.NewTimer(scaled)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *TickClock) Now() time.Time {
	return time.Now()
}

// Ticks reports how many tick cycles have run; used by tests and readouts.
func (c *TickClock) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Steppables reports how many units the loop is currently ticking.
func (c *TickClock) Steppables() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steppables)
}
