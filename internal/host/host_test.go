package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"agon/internal/drift"
	"agon/internal/evo"
	"agon/internal/model"
	"agon/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHost(t *testing.T, st store.Store) *Host {
	t.Helper()
	h, err := NewHost(Config{
		Store:        st,
		TickInterval: time.Millisecond,
		Logger:       quietLogger(),
	})
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	if err := h.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(h.Stop)
	return h
}

func seedPopulation(t *testing.T, engine evo.Engine, size int) []model.Genome {
	t.Helper()
	population, err := engine.Seed(context.Background(), size)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return population
}

func TestRunEvolutionEndToEnd(t *testing.T) {
	st := store.NewMemoryStore()
	h := newTestHost(t, st)

	engine, err := evo.NewWeightEngine(evo.WeightEngineConfig{Inputs: drift.Inputs, Outputs: drift.Outputs, Seed: 1})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	result, err := h.RunEvolution(context.Background(), EvolutionConfig{
		ExperimentID:  "exp-e2e",
		Engine:        engine,
		AgentFactory:  drift.NewFactory(drift.Config{}),
		Generations:   2,
		Trials:        2,
		TrialDuration: 10 * time.Millisecond,
		Initial:       seedPopulation(t, engine, 4),
	})
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}

	if result.Generations != 2 {
		t.Fatalf("want 2 generations, got %d", result.Generations)
	}
	if len(result.BestByGeneration) != 2 {
		t.Fatalf("want 2 best entries, got %d", len(result.BestByGeneration))
	}
	if result.StopReason != StopReasonCompleted {
		t.Fatalf("want completed stop reason, got %q", result.StopReason)
	}
	if result.RunID == "" {
		t.Fatal("run id must be assigned")
	}
	if result.Champion.Genome.Fitness <= 0 {
		t.Fatalf("champion fitness should be positive, got %v", result.Champion.Genome.Fitness)
	}

	pop, err := st.LoadPopulation(context.Background(), "exp-e2e")
	if err != nil {
		t.Fatalf("load population: %v", err)
	}
	if len(pop.Genomes) != 4 {
		t.Fatalf("want persisted population of 4, got %d", len(pop.Genomes))
	}
	champ, err := st.LoadChampion(context.Background(), "exp-e2e")
	if err != nil {
		t.Fatalf("load champion: %v", err)
	}
	if champ.Genome.ID != result.Champion.Genome.ID {
		t.Fatalf("persisted champion %q does not match result %q", champ.Genome.ID, result.Champion.Genome.ID)
	}
}

func TestRunEvolutionStopCommand(t *testing.T) {
	st := store.NewMemoryStore()
	h := newTestHost(t, st)

	engine, err := evo.NewWeightEngine(evo.WeightEngineConfig{Inputs: drift.Inputs, Outputs: drift.Outputs, Seed: 2})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	control := make(chan Command, 1)
	control <- CommandStop

	result, err := h.RunEvolution(context.Background(), EvolutionConfig{
		ExperimentID:  "exp-stop",
		Engine:        engine,
		AgentFactory:  drift.NewFactory(drift.Config{}),
		Generations:   5,
		TrialDuration: 10 * time.Millisecond,
		Initial:       seedPopulation(t, engine, 3),
		Control:       control,
	})
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if result.StopReason != StopReasonStopped {
		t.Fatalf("want stopped reason, got %q", result.StopReason)
	}
	if result.Generations != 0 {
		t.Fatalf("stop before the first generation should evaluate nothing, got %d", result.Generations)
	}

	// The stop path still snapshots the untouched population.
	pop, err := st.LoadPopulation(context.Background(), "exp-stop")
	if err != nil {
		t.Fatalf("load population: %v", err)
	}
	if len(pop.Genomes) != 3 {
		t.Fatalf("want persisted population of 3, got %d", len(pop.Genomes))
	}
}

func TestRunEvolutionPauseThenContinue(t *testing.T) {
	st := store.NewMemoryStore()
	h := newTestHost(t, st)

	engine, err := evo.NewWeightEngine(evo.WeightEngineConfig{Inputs: drift.Inputs, Outputs: drift.Outputs, Seed: 3})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	control := make(chan Command, 2)
	control <- CommandPause
	control <- CommandContinue

	result, err := h.RunEvolution(context.Background(), EvolutionConfig{
		ExperimentID:  "exp-pause",
		Engine:        engine,
		AgentFactory:  drift.NewFactory(drift.Config{}),
		Generations:   1,
		TrialDuration: 5 * time.Millisecond,
		Initial:       seedPopulation(t, engine, 2),
		Control:       control,
	})
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if result.StopReason != StopReasonCompleted {
		t.Fatalf("want completed after continue, got %q", result.StopReason)
	}
	if result.Generations != 1 {
		t.Fatalf("want 1 generation, got %d", result.Generations)
	}

	// Pausing persisted a snapshot before any evaluation ran.
	if _, err := st.LoadPopulation(context.Background(), "exp-pause"); err != nil {
		t.Fatalf("pause should persist the population: %v", err)
	}
}

func TestRunEvolutionFitnessGoalStopsEarly(t *testing.T) {
	st := store.NewMemoryStore()
	h := newTestHost(t, st)

	engine, err := evo.NewWeightEngine(evo.WeightEngineConfig{Inputs: drift.Inputs, Outputs: drift.Outputs, Seed: 4})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	// Any drift agent scores above zero, so a tiny goal triggers on
	// generation one.
	result, err := h.RunEvolution(context.Background(), EvolutionConfig{
		ExperimentID:  "exp-goal",
		Engine:        engine,
		AgentFactory:  drift.NewFactory(drift.Config{}),
		Generations:   10,
		TrialDuration: 5 * time.Millisecond,
		FitnessGoal:   0.0001,
		Initial:       seedPopulation(t, engine, 3),
	})
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if result.StopReason != StopReasonFitnessGoal {
		t.Fatalf("want fitness goal reason, got %q", result.StopReason)
	}
	if result.Generations != 1 {
		t.Fatalf("want early stop after 1 generation, got %d", result.Generations)
	}
}

func TestRunEvolutionRequiresInit(t *testing.T) {
	h, err := NewHost(Config{Store: store.NewMemoryStore(), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new host: %v", err)
	}

	engine, err := evo.NewWeightEngine(evo.WeightEngineConfig{Inputs: 1, Outputs: 1})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = h.RunEvolution(context.Background(), EvolutionConfig{
		ExperimentID:  "exp-no-init",
		Engine:        engine,
		AgentFactory:  drift.NewFactory(drift.Config{}),
		Generations:   1,
		TrialDuration: time.Millisecond,
		Initial:       []model.Genome{{ID: "g1"}},
	})
	if err == nil {
		t.Fatal("expected an error before Init")
	}
}

func TestRunEvolutionValidatesConfig(t *testing.T) {
	h := newTestHost(t, store.NewMemoryStore())
	engine, err := evo.NewWeightEngine(evo.WeightEngineConfig{Inputs: 1, Outputs: 1})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	base := EvolutionConfig{
		ExperimentID:  "exp-valid",
		Engine:        engine,
		AgentFactory:  drift.NewFactory(drift.Config{}),
		Generations:   1,
		TrialDuration: time.Millisecond,
		Initial:       []model.Genome{{ID: "g1"}},
	}

	cases := []struct {
		name   string
		mutate func(cfg *EvolutionConfig)
	}{
		{"missing experiment id", func(cfg *EvolutionConfig) { cfg.ExperimentID = "" }},
		{"missing engine", func(cfg *EvolutionConfig) { cfg.Engine = nil }},
		{"missing factory", func(cfg *EvolutionConfig) { cfg.AgentFactory = nil }},
		{"zero generations", func(cfg *EvolutionConfig) { cfg.Generations = 0 }},
		{"empty population", func(cfg *EvolutionConfig) { cfg.Initial = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if _, err := h.RunEvolution(context.Background(), cfg); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestRunEvolutionCancelledContext(t *testing.T) {
	h := newTestHost(t, store.NewMemoryStore())
	engine, err := evo.NewWeightEngine(evo.WeightEngineConfig{Inputs: drift.Inputs, Outputs: drift.Outputs, Seed: 5})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = h.RunEvolution(ctx, EvolutionConfig{
		ExperimentID:  "exp-cancel",
		Engine:        engine,
		AgentFactory:  drift.NewFactory(drift.Config{}),
		Generations:   3,
		TrialDuration: 5 * time.Millisecond,
		Initial:       seedPopulation(t, engine, 2),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestRunCommandsForUnknownRun(t *testing.T) {
	h := newTestHost(t, store.NewMemoryStore())
	if err := h.PauseRun("ghost"); err == nil {
		t.Fatal("pause of an unknown run must fail")
	}
	if err := h.ContinueRun(""); err == nil {
		t.Fatal("empty run id must fail")
	}
	if runs := h.ActiveRuns(); len(runs) != 0 {
		t.Fatalf("no runs should be active, got %v", runs)
	}
}
