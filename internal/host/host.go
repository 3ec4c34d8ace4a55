package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"agon/internal/arena"
	"agon/internal/evo"
	"agon/internal/model"
	"agon/internal/phenome"
	"agon/internal/store"
	"agon/internal/trial"
)

type Command string

const (
	CommandPause    Command = "pause"
	CommandContinue Command = "continue"
	CommandStop     Command = "stop"
)

type StopReason string

const (
	StopReasonCompleted   StopReason = "completed"
	StopReasonFitnessGoal StopReason = "fitness_goal"
	StopReasonStopped     StopReason = "stopped"
)

type Config struct {
	Store          store.Store
	TickInterval   time.Duration
	TimeMultiplier float64
	Supervision    SupervisorPolicy
	Logger         *slog.Logger
}

// Host owns the cooperative tick loop and the registry of active evolution
// runs. Everything long-running sits under its supervisor.
type Host struct {
	store  store.Store
	clock  *TickClock
	sup    *Supervisor
	logger *slog.Logger

	mu      sync.RWMutex
	started bool
	runs    map[string]chan Command
}

func NewHost(cfg Config) (*Host, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{
		store:  cfg.Store,
		clock:  NewTickClock(cfg.TickInterval, cfg.TimeMultiplier, logger),
		logger: logger,
		runs:   make(map[string]chan Command),
	}
	h.sup = NewSupervisor(cfg.Supervision, func(name string, err error, restarts int) {
		logger.Warn("supervised task restarted", "task", name, "error", err, "restarts", restarts)
	})
	return h, nil
}

func (h *Host) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}
	if err := h.store.Init(ctx); err != nil {
		return err
	}
	if err := h.sup.Start("tick-clock", RestartOnError, h.clock.Run); err != nil {
		return err
	}
	h.started = true
	return nil
}

func (h *Host) Stop() {
	h.mu.Lock()
	for _, control := range h.runs {
		select {
		case control <- CommandStop:
		default:
		}
	}
	h.runs = make(map[string]chan Command)
	h.started = false
	h.mu.Unlock()

	h.sup.StopAll()
}

func (h *Host) Started() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

func (h *Host) Clock() *TickClock {
	return h.clock
}

func (h *Host) SupervisedTasks() []TaskStatus {
	return h.sup.Tasks()
}

type EvolutionConfig struct {
	ExperimentID  string
	RunID         string
	Engine        evo.Engine
	Decoder       phenome.Decoder
	AgentFactory  arena.Factory
	Generations   int
	Trials        int
	TrialDuration time.Duration
	FitnessGoal   float64
	// InitialGeneration offsets persisted generation numbers when continuing
	// a saved experiment.
	InitialGeneration int
	Initial           []model.Genome
	Control           chan Command
}

type EvolutionResult struct {
	RunID            string
	BestByGeneration []float64
	Champion         model.ChampionSnapshot
	Generations      int
	StopReason       StopReason
}

// RunEvolution drives engine and coordinator through the configured number of
// generations. Population and champion snapshots are persisted whenever
// evolution pauses or stops and once more on completion; snapshot write
// failures are logged and the run continues.
func (h *Host) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	if cfg.ExperimentID == "" {
		return EvolutionResult{}, fmt.Errorf("experiment id is required")
	}
	if cfg.Engine == nil {
		return EvolutionResult{}, fmt.Errorf("engine is required")
	}
	if cfg.AgentFactory == nil {
		return EvolutionResult{}, fmt.Errorf("agent factory is required")
	}
	if cfg.Generations <= 0 {
		return EvolutionResult{}, fmt.Errorf("generations must be > 0")
	}
	if len(cfg.Initial) == 0 {
		return EvolutionResult{}, fmt.Errorf("initial population is required")
	}
	if cfg.Decoder == nil {
		cfg.Decoder = phenome.VectorDecoder{}
	}
	if !h.Started() {
		return EvolutionResult{}, fmt.Errorf("host is not initialized")
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	control := cfg.Control
	if control == nil {
		control = make(chan Command, 16)
	}
	if err := h.registerRun(runID, control); err != nil {
		return EvolutionResult{}, err
	}
	defer h.deregisterRun(runID)

	pool, err := arena.NewPool(cfg.AgentFactory)
	if err != nil {
		return EvolutionResult{}, err
	}
	sampler, err := trial.NewPoolSampler(pool)
	if err != nil {
		return EvolutionResult{}, err
	}
	coordinator, err := trial.NewCoordinator(trial.Config{
		Decoder:     cfg.Decoder,
		Pool:        pool,
		Clock:       h.clock,
		Ticker:      h.clock,
		Sampler:     sampler,
		Trials:      cfg.Trials,
		Duration:    cfg.TrialDuration,
		FitnessGoal: cfg.FitnessGoal,
		Logger:      h.logger,
	})
	if err != nil {
		return EvolutionResult{}, err
	}

	population := append([]model.Genome(nil), cfg.Initial...)
	result := EvolutionResult{RunID: runID, StopReason: StopReasonCompleted}
	var champion model.ChampionSnapshot
	haveChampion := false

	for gen := 0; gen < cfg.Generations; gen++ {
		generation := cfg.InitialGeneration + gen

		stopped, err := h.handleControl(ctx, control, cfg.ExperimentID, generation, population, champion, haveChampion)
		if err != nil {
			return EvolutionResult{}, err
		}
		if stopped {
			result.StopReason = StopReasonStopped
			result.Champion = champion
			h.persist(ctx, cfg.ExperimentID, generation, population, champion, haveChampion)
			return result, nil
		}

		ptrs := make([]*model.Genome, len(population))
		for i := range population {
			ptrs[i] = &population[i]
		}
		report, err := coordinator.Evaluate(ctx, ptrs)
		if err != nil {
			return EvolutionResult{}, err
		}

		result.BestByGeneration = append(result.BestByGeneration, report.BestFitness)
		result.Generations = gen + 1
		if !haveChampion || report.BestFitness > champion.Genome.Fitness {
			champion = model.ChampionSnapshot{
				ExperimentID: cfg.ExperimentID,
				Generation:   generation + 1,
				Genome:       report.Best,
			}
			haveChampion = true
		}
		h.logger.Info("generation complete",
			"run", runID,
			"generation", generation+1,
			"best", report.BestFitness,
			"mean", report.MeanFitness,
		)

		if report.StopSuggested {
			result.StopReason = StopReasonFitnessGoal
			break
		}
		if gen == cfg.Generations-1 {
			break
		}

		scored := make([]evo.ScoredGenome, len(population))
		for i, genome := range population {
			scored[i] = evo.ScoredGenome{Genome: genome, Fitness: genome.Fitness}
		}
		population, err = cfg.Engine.Next(ctx, scored)
		if err != nil {
			return EvolutionResult{}, err
		}
	}

	result.Champion = champion
	h.persist(ctx, cfg.ExperimentID, cfg.InitialGeneration+result.Generations, population, champion, haveChampion)
	return result, nil
}

// handleControl drains pending run commands at the generation boundary. A
// pause persists state and blocks until continue or stop.
func (h *Host) handleControl(ctx context.Context, control chan Command, experimentID string, generation int, population []model.Genome, champion model.ChampionSnapshot, haveChampion bool) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case cmd := <-control:
			switch cmd {
			case CommandStop:
				return true, nil
			case CommandPause:
				h.persist(ctx, experimentID, generation, population, champion, haveChampion)
				for {
					select {
					case <-ctx.Done():
						return false, ctx.Err()
					case next := <-control:
						if next == CommandStop {
							return true, nil
						}
						if next == CommandContinue {
							return false, nil
						}
					}
				}
			}
		default:
			return false, nil
		}
	}
}

func (h *Host) persist(ctx context.Context, experimentID string, generation int, population []model.Genome, champion model.ChampionSnapshot, haveChampion bool) {
	saveCtx := context.WithoutCancel(ctx)
	err := h.store.SavePopulation(saveCtx, model.PopulationSnapshot{
		ExperimentID: experimentID,
		Generation:   generation,
		Genomes:      population,
	})
	if err != nil {
		h.logger.Error("population snapshot not saved", "experiment", experimentID, "error", err)
	}
	if haveChampion {
		if err := h.store.SaveChampion(saveCtx, champion); err != nil {
			h.logger.Error("champion snapshot not saved", "experiment", experimentID, "error", err)
		}
	}
}

func (h *Host) registerRun(runID string, control chan Command) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return fmt.Errorf("host is not initialized")
	}
	if _, exists := h.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	h.runs[runID] = control
	return nil
}

func (h *Host) deregisterRun(runID string) {
	h.mu.Lock()
	delete(h.runs, runID)
	h.mu.Unlock()
}

func (h *Host) PauseRun(runID string) error {
	return h.sendCommand(runID, CommandPause)
}

func (h *Host) ContinueRun(runID string) error {
	return h.sendCommand(runID, CommandContinue)
}

func (h *Host) StopRun(runID string) error {
	return h.sendCommand(runID, CommandStop)
}

func (h *Host) ActiveRuns() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.runs))
	for runID := range h.runs {
		out = append(out, runID)
	}
	return out
}

func (h *Host) sendCommand(runID string, cmd Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	h.mu.RLock()
	control, ok := h.runs[runID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}
