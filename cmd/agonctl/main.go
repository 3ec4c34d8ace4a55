package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	agonapi "agon/pkg/agon"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "best":
		return runBest(ctx, args[1:])
	case "status":
		return runStatus(ctx, args[1:])
	case "population":
		return runPopulation(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// clientFlags are the store and clock options every subcommand shares.
type clientFlags struct {
	storeKind  *string
	dataDir    *string
	dbPath     *string
	tick       *time.Duration
	multiplier *float64
	verbose    *bool
}

func registerClientFlags(fs *flag.FlagSet) *clientFlags {
	return &clientFlags{
		storeKind:  fs.String("store", "", "store backend: file|memory|sqlite"),
		dataDir:    fs.String("data-dir", "data", "snapshot directory for the file store"),
		dbPath:     fs.String("db-path", "agon.db", "sqlite database path"),
		tick:       fs.Duration("tick-interval", 10*time.Millisecond, "arena tick interval"),
		multiplier: fs.Float64("multiplier", 1, "virtual time multiplier"),
		verbose:    fs.Bool("verbose", false, "log generation progress"),
	}
}

func (cf *clientFlags) newClient(ctx context.Context) (*agonapi.Client, error) {
	level := slog.LevelWarn
	if *cf.verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client, err := agonapi.New(agonapi.Options{
		StoreKind:      *cf.storeKind,
		DataDir:        *cf.dataDir,
		DBPath:         *cf.dbPath,
		TickInterval:   *cf.tick,
		TimeMultiplier: *cf.multiplier,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.newClient(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	fmt.Println("store initialized")
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	configPath := fs.String("config", "", "yaml experiment config")
	experiment := fs.String("experiment", "", "experiment id")
	population := fs.Int("population", 0, "population size")
	generations := fs.Int("generations", 0, "generations to evolve")
	trials := fs.Int("trials", 0, "trials per genome per generation")
	trialDuration := fs.Duration("trial-duration", 0, "virtual duration of one trial")
	fitnessGoal := fs.Float64("fitness-goal", 0, "stop once best fitness reaches this")
	elite := fs.Int("elite", 0, "elites carried unchanged per generation")
	stdDev := fs.Float64("stddev", 0, "weight perturbation standard deviation")
	seed := fs.Int64("seed", 0, "engine random seed")
	fresh := fs.Bool("fresh", false, "discard any saved population")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var req agonapi.RunRequest
	if *configPath != "" {
		loaded, err := loadRunRequest(*configPath)
		if err != nil {
			return err
		}
		req = loaded
	}
	// Explicit flags win over the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "experiment":
			req.ExperimentID = *experiment
		case "population":
			req.Population = *population
		case "generations":
			req.Generations = *generations
		case "trials":
			req.Trials = *trials
		case "trial-duration":
			req.TrialDuration = *trialDuration
		case "fitness-goal":
			req.FitnessGoal = *fitnessGoal
		case "elite":
			req.EliteCount = *elite
		case "stddev":
			req.StdDev = *stdDev
		case "seed":
			req.Seed = *seed
		case "fresh":
			req.Fresh = *fresh
		}
	})
	if req.ExperimentID == "" {
		return usageError("run requires -experiment or a config file with one")
	}

	client, err := cf.newClient(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	source := "fresh seed"
	if summary.Resumed {
		source = "saved snapshot"
	}
	fmt.Printf("run %s (%s): %s generations from %s\n",
		summary.RunID, summary.StopReason, humanize.Comma(int64(summary.Generations)), source)
	for i, best := range summary.BestByGeneration {
		fmt.Printf("  %s generation: best %s\n", humanize.Ordinal(i+1), humanize.Ftoa(round4(best)))
	}
	fmt.Printf("champion %s with fitness %s\n", summary.ChampionID, humanize.Ftoa(round4(summary.FinalBestFitness)))
	return nil
}

func runBest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	experiment := fs.String("experiment", "", "experiment id")
	duration := fs.Duration("duration", time.Second, "virtual replay window")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *experiment == "" {
		return usageError("best requires -experiment")
	}

	client, err := cf.newClient(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	best, err := client.RunBest(ctx, agonapi.BestRequest{ExperimentID: *experiment, Duration: *duration})
	if err != nil {
		return err
	}

	fmt.Printf("champion %s from the %s generation\n", best.GenomeID, humanize.Ordinal(best.Generation))
	fmt.Printf("  stored fitness %s, replay fitness %s\n",
		humanize.Ftoa(round4(best.StoredFitness)), humanize.Ftoa(round4(best.ReplayFitness)))
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	experiment := fs.String("experiment", "", "experiment id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *experiment == "" {
		return usageError("status requires -experiment")
	}

	client, err := cf.newClient(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	status, err := client.Status(ctx, *experiment)
	if err != nil {
		return err
	}

	fmt.Printf("experiment %s\n", status.ExperimentID)
	fmt.Printf("  population: %s genomes at generation %s\n",
		humanize.Comma(int64(status.PopulationSize)), humanize.Comma(int64(status.Generation)))
	if status.HasChampion {
		fmt.Printf("  champion: %s (fitness %s)\n", status.ChampionID, humanize.Ftoa(round4(status.ChampionFitness)))
	} else {
		fmt.Println("  champion: none")
	}
	return nil
}

func runPopulation(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("population", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	experiment := fs.String("experiment", "", "experiment id")
	limit := fs.Int("limit", 20, "genomes to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *experiment == "" {
		return usageError("population requires -experiment")
	}

	client, err := cf.newClient(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Population(ctx, *experiment, *limit)
	if err != nil {
		return err
	}

	for _, item := range items {
		fmt.Printf("%3d  %-40s  %s\n", item.Rank, item.ID, humanize.Ftoa(round4(item.Fitness)))
	}
	return nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: agonctl <init|run|best|status|population> [flags]", msg)
}
