package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"agon/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func stamp() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}

func EncodePopulationSnapshot(snapshot model.PopulationSnapshot) ([]byte, error) {
	snapshot.VersionedRecord = stamp()
	return json.Marshal(snapshot)
}

func DecodePopulationSnapshot(data []byte) (model.PopulationSnapshot, error) {
	var snapshot model.PopulationSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.PopulationSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.PopulationSnapshot{}, err
	}
	return snapshot, nil
}

func EncodeChampionSnapshot(snapshot model.ChampionSnapshot) ([]byte, error) {
	snapshot.VersionedRecord = stamp()
	return json.Marshal(snapshot)
}

func DecodeChampionSnapshot(data []byte) (model.ChampionSnapshot, error) {
	var snapshot model.ChampionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.ChampionSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.ChampionSnapshot{}, err
	}
	return snapshot, nil
}

func checkVersion(record model.VersionedRecord) error {
	if record.SchemaVersion != CurrentSchemaVersion || record.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, record.SchemaVersion, record.CodecVersion)
	}
	return nil
}
