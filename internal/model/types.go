package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Genome is an evolvable individual owned by the evolutionary engine. The
// scheduler only reads its identity and writes its fitness; the payload is an
// opaque encoding interpreted by the decode collaborator.
type Genome struct {
	VersionedRecord
	ID         string         `json:"id"`
	Fitness    float64        `json:"fitness"`
	AuxFitness map[string]any `json:"aux_fitness,omitempty"`
	Payload    []byte         `json:"payload,omitempty"`
}

// PopulationSnapshot is the ordered genome batch persisted for one experiment.
type PopulationSnapshot struct {
	VersionedRecord
	ExperimentID string   `json:"experiment_id"`
	Generation   int      `json:"generation"`
	Genomes      []Genome `json:"genomes"`
}

// ChampionSnapshot holds the single best genome of a generation, persisted
// separately from the full population.
type ChampionSnapshot struct {
	VersionedRecord
	ExperimentID string `json:"experiment_id"`
	Generation   int    `json:"generation"`
	Genome       Genome `json:"genome"`
}

// ExperimentStatus is the readout surfaced by the control layer.
type ExperimentStatus struct {
	ExperimentID string  `json:"experiment_id"`
	Generation   int     `json:"generation"`
	BestFitness  float64 `json:"best_fitness"`
	Running      bool    `json:"running"`
}
