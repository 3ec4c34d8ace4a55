package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"agon/internal/arena"
	"agon/internal/model"
	"agon/internal/phenome"
)

// ErrAgentLeak marks a release-path bug: an agent still bound after an
// evaluation returned. It indicates a programming-invariant violation and is
// surfaced loudly rather than recovered.
var ErrAgentLeak = errors.New("agent leaked in bound state")

type Config struct {
	Decoder     phenome.Decoder
	Pool        *arena.Pool
	Clock       Clock
	Ticker      Ticker
	Sampler     Sampler
	Trials      int
	Duration    time.Duration
	FitnessGoal float64
	Logger      *slog.Logger
}

// GenomeScore is the per-genome outcome of one generation.
type GenomeScore struct {
	GenomeID string
	Fitness  float64
	Decoded  bool
}

// Report summarizes one completed generation.
type Report struct {
	Scores        []GenomeScore
	Best          model.Genome
	BestFitness   float64
	MeanFitness   float64
	StopSuggested bool
}

// Coordinator runs the configured number of timed trials over a genome batch
// and aggregates per-trial samples into one fitness per genome.
type Coordinator struct {
	cfg    Config
	ledger *Ledger
}

func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.Ticker == nil {
		return nil, fmt.Errorf("ticker is required")
	}
	if cfg.Sampler == nil {
		return nil, fmt.Errorf("sampler is required")
	}
	if cfg.Trials <= 0 {
		cfg.Trials = 1
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("trial duration must be > 0")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{cfg: cfg, ledger: NewLedger()}, nil
}

type slot struct {
	genome  *model.Genome
	binding *arena.Binding
	sum     float64
	decoded bool
}

// Evaluate scores every genome in the batch and blocks until the generation
// is terminal: all trials complete and every agent released back to Free.
// Genomes that fail to decode score 0 immediately and consume no agent. A
// cancellation mid-generation releases every binding and writes no fitness
// for the interrupted generation.
func (c *Coordinator) Evaluate(ctx context.Context, genomes []*model.Genome) (Report, error) {
	if len(genomes) == 0 {
		return Report{}, fmt.Errorf("genome list is required")
	}

	c.ledger.Reset()

	slots := make([]*slot, 0, len(genomes))
	bound := make([]*slot, 0, len(genomes))
	for _, genome := range genomes {
		if genome == nil {
			return Report{}, fmt.Errorf("genome is nil")
		}
		s := &slot{genome: genome}
		slots = append(slots, s)

		artifact, err := c.cfg.Decoder.Decode(ctx, *genome)
		if err != nil {
			if ctx.Err() != nil {
				c.teardown(ctx, bound)
				return Report{}, ctx.Err()
			}
			c.cfg.Logger.Warn("decode failed", "genome", genome.ID, "error", err)
			artifact = nil
		}
		if artifact == nil {
			// Non-viable genome: scored outcome, no agent consumed.
			genome.Fitness = 0
			continue
		}

		binding, err := c.cfg.Pool.Acquire(ctx, *genome, artifact)
		if err != nil {
			if errors.Is(err, arena.ErrPoolInvariant) {
				c.teardown(ctx, bound)
				return Report{}, err
			}
			c.cfg.Logger.Warn("bind failed", "genome", genome.ID, "error", err)
			genome.Fitness = 0
			continue
		}
		c.cfg.Ticker.Register(binding.ArtifactID(), binding)
		s.binding = binding
		s.decoded = true
		bound = append(bound, s)
	}

	// Backstop: release is idempotent, so the explicit teardown below and
	// this deferred one can both run on any exit path.
	defer c.teardown(ctx, bound)

	for t := 0; t < c.cfg.Trials; t++ {
		if err := c.cfg.Clock.Sleep(ctx, c.cfg.Duration); err != nil {
			return Report{}, err
		}
		for _, s := range bound {
			fitness, err := c.cfg.Sampler.Sample(ctx, s.binding.ArtifactID())
			if err != nil {
				if ctx.Err() != nil {
					return Report{}, ctx.Err()
				}
				c.cfg.Logger.Warn("fitness sample failed", "genome", s.genome.ID, "trial", t+1, "error", err)
				fitness = 0
			}
			c.ledger.Record(s.binding.ArtifactID(), fitness)
		}
		for _, s := range bound {
			if sample, ok := c.ledger.Take(s.binding.ArtifactID()); ok {
				s.sum += sample
			}
		}
	}

	for _, s := range bound {
		s.genome.Fitness = s.sum / float64(c.cfg.Trials)
	}

	c.teardown(ctx, bound)
	if live := c.cfg.Pool.Live(); live != 0 {
		return Report{}, fmt.Errorf("%w: %d still bound after evaluation", ErrAgentLeak, live)
	}

	return c.buildReport(slots), nil
}

// teardown releases every binding independently; one failing deactivation
// hook must not prevent release of its siblings.
func (c *Coordinator) teardown(ctx context.Context, bound []*slot) {
	releaseCtx := context.WithoutCancel(ctx)
	for _, s := range bound {
		if s.binding == nil {
			continue
		}
		c.cfg.Ticker.Deregister(s.binding.ArtifactID())
		if err := c.cfg.Pool.Release(releaseCtx, s.binding); err != nil {
			c.cfg.Logger.Warn("release failed", "genome", s.genome.ID, "error", err)
		}
	}
}

func (c *Coordinator) buildReport(slots []*slot) Report {
	report := Report{Scores: make([]GenomeScore, 0, len(slots))}
	total := 0.0
	for i, s := range slots {
		report.Scores = append(report.Scores, GenomeScore{
			GenomeID: s.genome.ID,
			Fitness:  s.genome.Fitness,
			Decoded:  s.decoded,
		})
		total += s.genome.Fitness
		if i == 0 || s.genome.Fitness > report.BestFitness {
			report.Best = *s.genome
			report.BestFitness = s.genome.Fitness
		}
	}
	report.MeanFitness = total / float64(len(slots))
	if c.cfg.FitnessGoal > 0 && report.BestFitness >= c.cfg.FitnessGoal {
		report.StopSuggested = true
	}
	return report
}

// LedgerLen is exposed for invariant checks: the ledger must be empty once
// Evaluate returns.
func (c *Coordinator) LedgerLen() int {
	return c.ledger.Len()
}
