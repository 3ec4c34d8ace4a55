package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	agonapi "agon/pkg/agon"
)

// runConfig mirrors RunRequest for yaml experiment files. Durations use the
// Go duration syntax ("250ms", "2s").
type runConfig struct {
	Experiment    string  `yaml:"experiment"`
	Population    int     `yaml:"population"`
	Generations   int     `yaml:"generations"`
	Trials        int     `yaml:"trials"`
	TrialDuration string  `yaml:"trial_duration"`
	FitnessGoal   float64 `yaml:"fitness_goal"`
	EliteCount    int     `yaml:"elite_count"`
	StdDev        float64 `yaml:"std_dev"`
	Seed          int64   `yaml:"seed"`
	Fresh         bool    `yaml:"fresh"`
}

func loadRunRequest(path string) (agonapi.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return agonapi.RunRequest{}, err
	}

	var cfg runConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return agonapi.RunRequest{}, fmt.Errorf("parse %s: %w", path, err)
	}

	req := agonapi.RunRequest{
		ExperimentID: cfg.Experiment,
		Population:   cfg.Population,
		Generations:  cfg.Generations,
		Trials:       cfg.Trials,
		FitnessGoal:  cfg.FitnessGoal,
		EliteCount:   cfg.EliteCount,
		StdDev:       cfg.StdDev,
		Seed:         cfg.Seed,
		Fresh:        cfg.Fresh,
	}
	if cfg.TrialDuration != "" {
		d, err := time.ParseDuration(cfg.TrialDuration)
		if err != nil {
			return agonapi.RunRequest{}, fmt.Errorf("parse %s: trial_duration: %w", path, err)
		}
		req.TrialDuration = d
	}
	return req, nil
}
