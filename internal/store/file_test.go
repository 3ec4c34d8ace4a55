package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"agon/internal/model"
)

func newFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewFileStore(dir)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s, dir
}

func TestFileStorePopulationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t)

	input := model.PopulationSnapshot{
		ExperimentID: "exp-1",
		Generation:   7,
		Genomes: []model.Genome{
			{ID: "g1", Fitness: 1.5, Payload: []byte(`{"x":1}`)},
			{ID: "g2", Fitness: 2.5},
			{ID: "g3", Fitness: 0},
		},
	}
	if err := s.SavePopulation(ctx, input); err != nil {
		t.Fatalf("save population: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "exp-1.pop.json")); err != nil {
		t.Fatalf("expected population file: %v", err)
	}

	output, err := s.LoadPopulation(ctx, "exp-1")
	if err != nil {
		t.Fatalf("load population: %v", err)
	}
	if output.Generation != 7 || len(output.Genomes) != 3 {
		t.Fatalf("unexpected snapshot: %+v", output)
	}
	for i, genome := range output.Genomes {
		if genome.ID != input.Genomes[i].ID || genome.Fitness != input.Genomes[i].Fitness {
			t.Fatalf("genome %d mismatch: got=%+v want=%+v", i, genome, input.Genomes[i])
		}
	}
}

func TestFileStoreChampionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)

	input := model.ChampionSnapshot{
		ExperimentID: "exp-1",
		Generation:   3,
		Genome:       model.Genome{ID: "champ", Fitness: 9.25},
	}
	if err := s.SaveChampion(ctx, input); err != nil {
		t.Fatalf("save champion: %v", err)
	}
	output, err := s.LoadChampion(ctx, "exp-1")
	if err != nil {
		t.Fatalf("load champion: %v", err)
	}
	if output.Genome.ID != "champ" || output.Genome.Fitness != 9.25 {
		t.Fatalf("unexpected champion: %+v", output)
	}
}

func TestFileStoreLoadMissingReportsNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)

	if _, err := s.LoadPopulation(ctx, "no-such-experiment"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.LoadChampion(ctx, "no-such-experiment"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreCorruptFileReportsDistinctKind(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t)

	if err := os.WriteFile(filepath.Join(dir, "exp-1.pop.json"), []byte("{garbage"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	_, err := s.LoadPopulation(ctx, "exp-1")
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("corrupt must stay distinguishable from missing")
	}
}

func TestFileStoreVersionMismatchIsCorrupt(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t)

	stale := []byte(`{"schema_version":99,"codec_version":1,"experiment_id":"exp-1","generation":1,"genomes":[]}`)
	if err := os.WriteFile(filepath.Join(dir, "exp-1.pop.json"), stale, 0o644); err != nil {
		t.Fatalf("write stale file: %v", err)
	}
	if _, err := s.LoadPopulation(ctx, "exp-1"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for version mismatch, got %v", err)
	}
}

func TestFileStoreSaveOverwritesWholeFile(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)

	first := model.PopulationSnapshot{ExperimentID: "exp-1", Generation: 1, Genomes: []model.Genome{{ID: "a"}, {ID: "b"}}}
	if err := s.SavePopulation(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := model.PopulationSnapshot{ExperimentID: "exp-1", Generation: 2, Genomes: []model.Genome{{ID: "c"}}}
	if err := s.SavePopulation(ctx, second); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	output, err := s.LoadPopulation(ctx, "exp-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if output.Generation != 2 || len(output.Genomes) != 1 || output.Genomes[0].ID != "c" {
		t.Fatalf("expected whole-file overwrite, got %+v", output)
	}
}
