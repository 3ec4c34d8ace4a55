// Package agon is the embedding surface for the evaluation scheduler. It
// wires a snapshot store and a host together behind a small Client so both
// the CLI and library consumers drive runs the same way.
package agon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"agon/internal/arena"
	"agon/internal/drift"
	"agon/internal/evo"
	"agon/internal/host"
	"agon/internal/model"
	"agon/internal/phenome"
	"agon/internal/store"
)

const (
	defaultDataDir        = "data"
	defaultDBPath         = "agon.db"
	defaultPopulation     = 20
	defaultGenerations    = 10
	defaultTrials         = 3
	defaultTrialDuration  = 200 * time.Millisecond
	defaultReplayDuration = time.Second
)

// ErrNoChampion reports that an experiment has no usable champion snapshot,
// either because none was saved or because the saved one is unreadable.
var ErrNoChampion = errors.New("no champion available")

type Options struct {
	StoreKind      string
	DataDir        string
	DBPath         string
	TickInterval   time.Duration
	TimeMultiplier float64
	Logger         *slog.Logger
}

type Client struct {
	store  store.Store
	host   *host.Host
	logger *slog.Logger
}

type RunRequest struct {
	ExperimentID  string
	Population    int
	Generations   int
	Trials        int
	TrialDuration time.Duration
	FitnessGoal   float64
	EliteCount    int
	StdDev        float64
	Seed          int64
	// Fresh discards any saved population instead of resuming from it.
	Fresh bool
}

type RunSummary struct {
	RunID            string
	ExperimentID     string
	Generations      int
	BestByGeneration []float64
	FinalBestFitness float64
	ChampionID       string
	StopReason       string
	Resumed          bool
}

type BestRequest struct {
	ExperimentID string
	Duration     time.Duration
}

type BestSummary struct {
	GenomeID   string
	Generation int
	// StoredFitness is the score recorded when the champion was saved.
	// ReplayFitness is the score sampled from the fresh trial window.
	StoredFitness float64
	ReplayFitness float64
}

type StatusSummary struct {
	ExperimentID    string
	Generation      int
	PopulationSize  int
	ChampionID      string
	ChampionFitness float64
	HasChampion     bool
	ActiveRuns      []string
}

type GenomeItem struct {
	Rank    int
	ID      string
	Fitness float64
}

func New(opts Options) (*Client, error) {
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewStore(opts.StoreKind, dataDir, dbPath)
	if err != nil {
		return nil, err
	}
	h, err := host.NewHost(host.Config{
		Store:          st,
		TickInterval:   opts.TickInterval,
		TimeMultiplier: opts.TimeMultiplier,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	return &Client{store: st, host: h, logger: logger}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.host.Init(ctx)
}

func (c *Client) Close() error {
	c.host.Stop()
	return store.CloseIfSupported(c.store)
}

// Run evolves the experiment's population. A saved population snapshot is
// resumed when present; a missing or corrupt snapshot is replaced with a
// fresh seed so an experiment can always start.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.ExperimentID == "" {
		return RunSummary{}, errors.New("experiment id is required")
	}
	if req.Population <= 0 {
		req.Population = defaultPopulation
	}
	if req.Generations <= 0 {
		req.Generations = defaultGenerations
	}
	if req.Trials <= 0 {
		req.Trials = defaultTrials
	}
	if req.TrialDuration <= 0 {
		req.TrialDuration = defaultTrialDuration
	}

	engine, err := evo.NewWeightEngine(evo.WeightEngineConfig{
		Inputs:     drift.Inputs,
		Outputs:    drift.Outputs,
		EliteCount: req.EliteCount,
		StdDev:     req.StdDev,
		Seed:       req.Seed,
	})
	if err != nil {
		return RunSummary{}, err
	}

	initial, initialGeneration, resumed, err := c.initialPopulation(ctx, req, engine)
	if err != nil {
		return RunSummary{}, err
	}

	result, err := c.host.RunEvolution(ctx, host.EvolutionConfig{
		ExperimentID:      req.ExperimentID,
		Engine:            engine,
		AgentFactory:      drift.NewFactory(drift.Config{}),
		Generations:       req.Generations,
		Trials:            req.Trials,
		TrialDuration:     req.TrialDuration,
		FitnessGoal:       req.FitnessGoal,
		InitialGeneration: initialGeneration,
		Initial:           initial,
	})
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		RunID:            result.RunID,
		ExperimentID:     req.ExperimentID,
		Generations:      result.Generations,
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		ChampionID:       result.Champion.Genome.ID,
		StopReason:       string(result.StopReason),
		Resumed:          resumed,
	}
	if n := len(result.BestByGeneration); n > 0 {
		summary.FinalBestFitness = result.BestByGeneration[n-1]
	}
	return summary, nil
}

func (c *Client) initialPopulation(ctx context.Context, req RunRequest, engine evo.Engine) ([]model.Genome, int, bool, error) {
	if !req.Fresh {
		snapshot, err := c.store.LoadPopulation(ctx, req.ExperimentID)
		switch {
		case err == nil && len(snapshot.Genomes) > 0:
			return snapshot.Genomes, snapshot.Generation, true, nil
		case err == nil:
			// An empty snapshot is useless; reseed below.
		case errors.Is(err, store.ErrNotFound):
		case errors.Is(err, store.ErrCorrupt):
			c.logger.Warn("population snapshot unreadable, reseeding", "experiment", req.ExperimentID, "error", err)
		default:
			return nil, 0, false, err
		}
	}
	initial, err := engine.Seed(ctx, req.Population)
	if err != nil {
		return nil, 0, false, err
	}
	return initial, 0, false, nil
}

// RunBest replays the saved champion through one fresh trial window and
// samples its fitness from the live binding.
func (c *Client) RunBest(ctx context.Context, req BestRequest) (BestSummary, error) {
	if req.ExperimentID == "" {
		return BestSummary{}, errors.New("experiment id is required")
	}
	if req.Duration <= 0 {
		req.Duration = defaultReplayDuration
	}
	if !c.host.Started() {
		return BestSummary{}, errors.New("client is not initialized")
	}

	champion, err := c.store.LoadChampion(ctx, req.ExperimentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrCorrupt) {
			return BestSummary{}, fmt.Errorf("%w: %s", ErrNoChampion, req.ExperimentID)
		}
		return BestSummary{}, err
	}

	artifact, err := phenome.VectorDecoder{}.Decode(ctx, champion.Genome)
	if err != nil {
		return BestSummary{}, err
	}
	if artifact == nil {
		return BestSummary{}, fmt.Errorf("%w: champion payload is not viable", ErrNoChampion)
	}

	pool, err := arena.NewPool(drift.NewFactory(drift.Config{}))
	if err != nil {
		return BestSummary{}, err
	}
	binding, err := pool.Acquire(ctx, champion.Genome, artifact)
	if err != nil {
		return BestSummary{}, err
	}

	clock := c.host.Clock()
	clock.Register(artifact.ID(), binding)
	defer clock.Deregister(artifact.ID())
	defer func() {
		if err := pool.Release(context.WithoutCancel(ctx), binding); err != nil {
			c.logger.Warn("champion release failed", "experiment", req.ExperimentID, "error", err)
		}
	}()

	if err := clock.Sleep(ctx, req.Duration); err != nil {
		return BestSummary{}, err
	}

	return BestSummary{
		GenomeID:      champion.Genome.ID,
		Generation:    champion.Generation,
		StoredFitness: champion.Genome.Fitness,
		ReplayFitness: binding.Fitness(),
	}, nil
}

func (c *Client) Status(ctx context.Context, experimentID string) (StatusSummary, error) {
	if experimentID == "" {
		return StatusSummary{}, errors.New("experiment id is required")
	}

	summary := StatusSummary{ExperimentID: experimentID, ActiveRuns: c.host.ActiveRuns()}

	population, err := c.store.LoadPopulation(ctx, experimentID)
	switch {
	case err == nil:
		summary.Generation = population.Generation
		summary.PopulationSize = len(population.Genomes)
	case errors.Is(err, store.ErrNotFound):
	default:
		return StatusSummary{}, err
	}

	champion, err := c.store.LoadChampion(ctx, experimentID)
	switch {
	case err == nil:
		summary.ChampionID = champion.Genome.ID
		summary.ChampionFitness = champion.Genome.Fitness
		summary.HasChampion = true
	case errors.Is(err, store.ErrNotFound):
	default:
		return StatusSummary{}, err
	}

	return summary, nil
}

// Population lists the saved population ranked by fitness.
func (c *Client) Population(ctx context.Context, experimentID string, limit int) ([]GenomeItem, error) {
	if experimentID == "" {
		return nil, errors.New("experiment id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	snapshot, err := c.store.LoadPopulation(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	genomes := append([]model.Genome(nil), snapshot.Genomes...)
	sort.SliceStable(genomes, func(i, j int) bool {
		return genomes[i].Fitness > genomes[j].Fitness
	})
	if len(genomes) > limit {
		genomes = genomes[:limit]
	}

	out := make([]GenomeItem, 0, len(genomes))
	for i, genome := range genomes {
		out = append(out, GenomeItem{Rank: i + 1, ID: genome.ID, Fitness: genome.Fitness})
	}
	return out, nil
}

func (c *Client) PauseRun(runID string) error    { return c.host.PauseRun(runID) }
func (c *Client) ContinueRun(runID string) error { return c.host.ContinueRun(runID) }
func (c *Client) StopRun(runID string) error     { return c.host.StopRun(runID) }

func (c *Client) ActiveRuns() []string { return c.host.ActiveRuns() }
