package store

import (
	"context"
	"errors"

	"agon/internal/model"
)

// ErrNotFound reports a missing snapshot. Callers fall back to synthesizing a
// fresh population (policy lives in the caller, not here).
var ErrNotFound = errors.New("snapshot not found")

// ErrCorrupt reports an unreadable or undecodable snapshot. Callers treat it
// like ErrNotFound but can log the distinguishing kind.
var ErrCorrupt = errors.New("snapshot corrupt")

// Store persists population and champion snapshots keyed by experiment
// identity. Saves are whole-record overwrites; saves only occur while
// evolution is paused, so no concurrent-writer protection is required.
type Store interface {
	Init(ctx context.Context) error
	SavePopulation(ctx context.Context, snapshot model.PopulationSnapshot) error
	LoadPopulation(ctx context.Context, experimentID string) (model.PopulationSnapshot, error)
	SaveChampion(ctx context.Context, snapshot model.ChampionSnapshot) error
	LoadChampion(ctx context.Context, experimentID string) (model.ChampionSnapshot, error)
}

// CloseIfSupported closes backends that hold external resources.
func CloseIfSupported(s Store) error {
	closer, ok := s.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
