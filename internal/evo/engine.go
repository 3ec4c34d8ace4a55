package evo

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"agon/internal/model"
	"agon/internal/phenome"
)

// ScoredGenome pairs a genome with the aggregate fitness the scheduler wrote
// onto it.
type ScoredGenome struct {
	Genome  model.Genome
	Fitness float64
}

// Engine is the evolutionary collaborator boundary: it seeds populations and
// breeds the next generation from scored parents. How it selects, mutates, or
// speciates is its own business; the scheduler only submits batches and hands
// back fitness.
type Engine interface {
	Seed(ctx context.Context, size int) ([]model.Genome, error)
	Next(ctx context.Context, scored []ScoredGenome) ([]model.Genome, error)
}

type WeightEngineConfig struct {
	Inputs     int
	Outputs    int
	EliteCount int
	StdDev     float64
	Seed       int64
}

// WeightEngine is a deliberately small reference engine: it keeps the top
// genomes unchanged and fills the rest of the population with Gaussian weight
// perturbations of elite parents. It exists so the scheduler runs end to end;
// production engines plug in behind the Engine interface.
type WeightEngine struct {
	cfg        WeightEngineConfig
	rng        *rand.Rand
	generation int
}

func NewWeightEngine(cfg WeightEngineConfig) (*WeightEngine, error) {
	if cfg.Inputs <= 0 || cfg.Outputs <= 0 {
		return nil, fmt.Errorf("engine dimensions must be > 0: inputs=%d outputs=%d", cfg.Inputs, cfg.Outputs)
	}
	if cfg.EliteCount <= 0 {
		cfg.EliteCount = 1
	}
	if cfg.StdDev <= 0 {
		cfg.StdDev = 0.25
	}
	return &WeightEngine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (e *WeightEngine) Seed(ctx context.Context, size int) ([]model.Genome, error) {
	if size <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	genomes := make([]model.Genome, 0, size)
	for i := 0; i < size; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec := phenome.NetSpec{
			Inputs:  e.cfg.Inputs,
			Outputs: e.cfg.Outputs,
			Weights: make([]float64, e.cfg.Inputs*e.cfg.Outputs),
			Biases:  make([]float64, e.cfg.Outputs),
		}
		for w := range spec.Weights {
			spec.Weights[w] = e.rng.NormFloat64()
		}
		for b := range spec.Biases {
			spec.Biases[b] = e.rng.NormFloat64() * 0.1
		}
		payload, err := phenome.EncodeNetSpec(spec)
		if err != nil {
			return nil, err
		}
		genomes = append(genomes, model.Genome{ID: uuid.NewString(), Payload: payload})
	}
	return genomes, nil
}

func (e *WeightEngine) Next(ctx context.Context, scored []ScoredGenome) ([]model.Genome, error) {
	if len(scored) == 0 {
		return nil, fmt.Errorf("scored population is required")
	}
	e.generation++

	ranked := append([]ScoredGenome(nil), scored...)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})

	eliteCount := e.cfg.EliteCount
	if eliteCount > len(ranked) {
		eliteCount = len(ranked)
	}

	next := make([]model.Genome, 0, len(scored))
	for i := 0; i < eliteCount; i++ {
		elite := ranked[i].Genome
		elite.Fitness = 0
		next = append(next, elite)
	}

	for idx := len(next); len(next) < len(scored); idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parent := ranked[e.rng.Intn(eliteCount)].Genome
		child, err := e.perturb(parent, idx)
		if err != nil {
			return nil, err
		}
		next = append(next, child)
	}
	return next, nil
}

func (e *WeightEngine) perturb(parent model.Genome, index int) (model.Genome, error) {
	var spec phenome.NetSpec
	decoded, err := phenome.VectorDecoder{}.Decode(context.Background(), parent)
	if err != nil || decoded == nil {
		// Non-viable parent payloads breed fresh random children.
		fresh, seedErr := e.Seed(context.Background(), 1)
		if seedErr != nil {
			return model.Genome{}, seedErr
		}
		child := fresh[0]
		child.ID = childID(parent.ID, e.generation, index)
		return child, nil
	}
	spec = decoded.(*phenome.VectorArtifact).Spec()

	for w := range spec.Weights {
		spec.Weights[w] += e.rng.NormFloat64() * e.cfg.StdDev
	}
	for b := range spec.Biases {
		spec.Biases[b] += e.rng.NormFloat64() * e.cfg.StdDev * 0.5
	}
	payload, err := phenome.EncodeNetSpec(spec)
	if err != nil {
		return model.Genome{}, err
	}
	return model.Genome{ID: childID(parent.ID, e.generation, index), Payload: payload}, nil
}

func childID(parentID string, generation, index int) string {
	return fmt.Sprintf("%s-g%d-i%d", parentID, generation, index)
}
