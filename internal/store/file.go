package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"agon/internal/model"
)

const (
	populationKind = "pop"
	championKind   = "champ"
	snapshotExt    = "json"
)

// FileStore keeps one population file and one champion file per experiment
// under a fixed data directory, named <experimentID>.<pop|champ>.json. Saves
// are whole-file overwrites through a temp-file rename.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.dir == "" {
		return errors.New("data directory is required")
	}
	return os.MkdirAll(s.dir, 0o755)
}

func (s *FileStore) path(experimentID, kind string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.%s.%s", experimentID, kind, snapshotExt))
}

func (s *FileStore) write(ctx context.Context, experimentID, kind string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if experimentID == "" {
		return errors.New("experiment id is required")
	}
	target := s.path(experimentID, kind)
	tmp, err := os.CreateTemp(s.dir, "."+kind+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (s *FileStore) read(ctx context.Context, experimentID, kind string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if experimentID == "" {
		return nil, errors.New("experiment id is required")
	}
	data, err := os.ReadFile(s.path(experimentID, kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s.%s", ErrNotFound, experimentID, kind)
		}
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrCorrupt, experimentID, kind, err)
	}
	return data, nil
}

func (s *FileStore) SavePopulation(ctx context.Context, snapshot model.PopulationSnapshot) error {
	payload, err := EncodePopulationSnapshot(snapshot)
	if err != nil {
		return err
	}
	return s.write(ctx, snapshot.ExperimentID, populationKind, payload)
}

func (s *FileStore) LoadPopulation(ctx context.Context, experimentID string) (model.PopulationSnapshot, error) {
	data, err := s.read(ctx, experimentID, populationKind)
	if err != nil {
		return model.PopulationSnapshot{}, err
	}
	snapshot, err := DecodePopulationSnapshot(data)
	if err != nil {
		return model.PopulationSnapshot{}, fmt.Errorf("%w: %s.%s: %v", ErrCorrupt, experimentID, populationKind, err)
	}
	return snapshot, nil
}

func (s *FileStore) SaveChampion(ctx context.Context, snapshot model.ChampionSnapshot) error {
	payload, err := EncodeChampionSnapshot(snapshot)
	if err != nil {
		return err
	}
	return s.write(ctx, snapshot.ExperimentID, championKind, payload)
}

func (s *FileStore) LoadChampion(ctx context.Context, experimentID string) (model.ChampionSnapshot, error) {
	data, err := s.read(ctx, experimentID, championKind)
	if err != nil {
		return model.ChampionSnapshot{}, err
	}
	snapshot, err := DecodeChampionSnapshot(data)
	if err != nil {
		return model.ChampionSnapshot{}, fmt.Errorf("%w: %s.%s: %v", ErrCorrupt, experimentID, championKind, err)
	}
	return snapshot, nil
}
