package store

import (
	"context"
	"fmt"
	"sync"

	"agon/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	populations map[string]model.PopulationSnapshot
	champions   map[string]model.ChampionSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.populations = make(map[string]model.PopulationSnapshot)
	s.champions = make(map[string]model.ChampionSnapshot)
	return nil
}

func (s *MemoryStore) SavePopulation(_ context.Context, snapshot model.PopulationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot.VersionedRecord = stamp()
	snapshot.Genomes = append([]model.Genome(nil), snapshot.Genomes...)
	s.populations[snapshot.ExperimentID] = snapshot
	return nil
}

func (s *MemoryStore) LoadPopulation(_ context.Context, experimentID string) (model.PopulationSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.populations[experimentID]
	if !ok {
		return model.PopulationSnapshot{}, fmt.Errorf("%w: %s.%s", ErrNotFound, experimentID, populationKind)
	}
	snapshot.Genomes = append([]model.Genome(nil), snapshot.Genomes...)
	return snapshot, nil
}

func (s *MemoryStore) SaveChampion(_ context.Context, snapshot model.ChampionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot.VersionedRecord = stamp()
	s.champions[snapshot.ExperimentID] = snapshot
	return nil
}

func (s *MemoryStore) LoadChampion(_ context.Context, experimentID string) (model.ChampionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.champions[experimentID]
	if !ok {
		return model.ChampionSnapshot{}, fmt.Errorf("%w: %s.%s", ErrNotFound, experimentID, championKind)
	}
	return snapshot, nil
}
