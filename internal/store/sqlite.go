//go:build sqlite

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"agon/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			experiment_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (experiment_id, kind)
		)
	`); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("sqlite store is not initialized")
	}
	return s.db, nil
}

func (s *SQLiteStore) save(ctx context.Context, experimentID, kind string, payload []byte) error {
	if experimentID == "" {
		return errors.New("experiment id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO snapshots (experiment_id, kind, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(experiment_id, kind) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, experimentID, kind, CurrentSchemaVersion, CurrentCodecVersion, payload)
	return err
}

func (s *SQLiteStore) load(ctx context.Context, experimentID, kind string) ([]byte, error) {
	if experimentID == "" {
		return nil, errors.New("experiment id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `
		SELECT payload FROM snapshots WHERE experiment_id = ? AND kind = ?
	`, experimentID, kind).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotFound, experimentID, kind)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *SQLiteStore) SavePopulation(ctx context.Context, snapshot model.PopulationSnapshot) error {
	payload, err := EncodePopulationSnapshot(snapshot)
	if err != nil {
		return err
	}
	return s.save(ctx, snapshot.ExperimentID, populationKind, payload)
}

func (s *SQLiteStore) LoadPopulation(ctx context.Context, experimentID string) (model.PopulationSnapshot, error) {
	data, err := s.load(ctx, experimentID, populationKind)
	if err != nil {
		return model.PopulationSnapshot{}, err
	}
	snapshot, err := DecodePopulationSnapshot(data)
	if err != nil {
		return model.PopulationSnapshot{}, fmt.Errorf("%w: %s.%s: %v", ErrCorrupt, experimentID, populationKind, err)
	}
	return snapshot, nil
}

func (s *SQLiteStore) SaveChampion(ctx context.Context, snapshot model.ChampionSnapshot) error {
	payload, err := EncodeChampionSnapshot(snapshot)
	if err != nil {
		return err
	}
	return s.save(ctx, snapshot.ExperimentID, championKind, payload)
}

func (s *SQLiteStore) LoadChampion(ctx context.Context, experimentID string) (model.ChampionSnapshot, error) {
	data, err := s.load(ctx, experimentID, championKind)
	if err != nil {
		return model.ChampionSnapshot{}, err
	}
	snapshot, err := DecodeChampionSnapshot(data)
	if err != nil {
		return model.ChampionSnapshot{}, fmt.Errorf("%w: %s.%s: %v", ErrCorrupt, experimentID, championKind, err)
	}
	return snapshot, nil
}
