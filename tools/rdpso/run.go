package rdpso

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/logging"
	"rdpso/simulator/internal/networking"
	"rdpso/simulator/internal/replay"
	"rdpso/simulator/internal/report"
	"rdpso/simulator/internal/simulator"
	"rdpso/simulator/internal/space"
	"rdpso/simulator/internal/store"
)

type runOptions struct {
	configPath string
	seed       uint64
	seedSet    bool
	iterations int
	positions  bool
	jsonOutput bool
	replayDir  string
	plotPath   string
	storePath  string
	runID      string
	clock      func() time.Time
}

// runSummary is what a headless run reports once it finishes.
type runSummary struct {
	RunID        string           `json:"run_id"`
	Seed         uint64           `json:"seed"`
	Goal         goal.Goal        `json:"goal"`
	Strategy     goal.Strategy    `json:"strategy"`
	Iterations   uint64           `json:"iterations"`
	HistoricBest goal.Performance `json:"historic_best"`
	Improvements int              `json:"improvements"`
	ReplayDir    string           `json:"replay_dir,omitempty"`
	PlotPath     string           `json:"plot_path,omitempty"`
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Step a swarm headlessly and report the result",
		Long: `Builds a simulator from the default or supplied config, steps it the requested
number of times and prints either every particle position per iteration or a summary.
Optionally records a replay bundle, a convergence plot and a run history row.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.seedSet = cmd.Flags().Changed("seed")
			summary, err := runSimulation(cmd.Context(), cmd.OutOrStdout(), loggerFrom(cmd), opts)
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), summary, opts.jsonOutput)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "simulation config file (.json or .toml)")
	flags.Uint64Var(&opts.seed, "seed", 0, "override the config seed")
	flags.IntVarP(&opts.iterations, "iterations", "n", 10, "number of iterations to step")
	flags.BoolVar(&opts.positions, "positions", false, "print every particle position after each iteration")
	flags.BoolVar(&opts.jsonOutput, "json", false, "emit the summary as JSON")
	flags.StringVar(&opts.replayDir, "replay-dir", "", "write a replay bundle under this directory")
	flags.StringVar(&opts.plotPath, "plot", "", "save a convergence plot (.png, .svg, .pdf)")
	flags.StringVar(&opts.storePath, "store", "", "record the run in this SQLite database")
	flags.StringVar(&opts.runID, "run-id", "", "run identifier (default: random uuid)")
	return cmd
}

// runSimulation owns one complete headless run from config to artefacts.
func runSimulation(ctx context.Context, out io.Writer, logger *logging.Logger, opts runOptions) (summary runSummary, err error) {
	if opts.iterations < 1 {
		return runSummary{}, fmt.Errorf("%w: iterations must be >= 1", simulator.ErrInvalidConfig)
	}
	clock := opts.clock
	if clock == nil {
		clock = time.Now
	}

	//1.- Resolve the config and build the simulator.
	cfg := simulator.DefaultSimConfig()
	if opts.configPath != "" {
		if cfg, err = simulator.LoadFile(opts.configPath); err != nil {
			return runSummary{}, err
		}
	}
	if opts.seedSet {
		cfg.Seed = opts.seed
	}
	sim, err := simulator.New(cfg)
	if err != nil {
		return runSummary{}, err
	}
	runID := opts.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	summary = runSummary{RunID: runID, Seed: cfg.Seed, Goal: cfg.Ctx.Goal, Strategy: cfg.Ctx.Strategy}
	logger = logger.With(logging.String("run_id", runID))

	//2.- Open the optional sinks; each one is closed on every exit path.
	var db *store.Store
	if opts.storePath != "" {
		if db, err = store.Open(opts.storePath); err != nil {
			return runSummary{}, err
		}
		defer func() { err = errors.Join(err, db.Close()) }()
		raw, encErr := cfg.MarshalIndentJSON()
		if encErr != nil {
			return runSummary{}, encErr
		}
		run := store.Run{
			ID:         runID,
			Seed:       cfg.Seed,
			Goal:       cfg.Ctx.Goal,
			Strategy:   cfg.Ctx.Strategy,
			SwarmSize:  cfg.Swarm.Size,
			ConfigJSON: raw,
			StartedAt:  clock(),
		}
		if err = db.StartRun(ctx, run); err != nil {
			return runSummary{}, err
		}
	}
	var writer *replay.Writer
	if opts.replayDir != "" {
		header := replay.Header{
			RunID:         runID,
			Seed:          cfg.Seed,
			Goal:          cfg.Ctx.Goal.String(),
			Strategy:      cfg.Ctx.Strategy.String(),
			SwarmSize:     cfg.Swarm.Size,
			TerrainParams: replay.TerrainParameters(cfg.Terrain.Params()),
		}
		if writer, _, err = replay.NewWriter(opts.replayDir, header, clock); err != nil {
			return runSummary{}, err
		}
		defer func() { err = errors.Join(err, writer.Close()) }()
		summary.ReplayDir = writer.Directory()
		if err = writer.AppendEvent(0, replay.EventReset, cfg); err != nil {
			return runSummary{}, err
		}
	}
	var convergence *report.Convergence
	if opts.plotPath != "" {
		convergence = report.NewConvergence(fmt.Sprintf("%s %s", cfg.Ctx.Goal, cfg.Ctx.Strategy))
	}
	encoder := networking.NewSnapshotEncoder()

	//3.- Step, recording every frame and each historic-best improvement.
	for i := 0; i < opts.iterations; i++ {
		if err = ctx.Err(); err != nil {
			return summary, err
		}
		previous := sim.HistoricBest()
		if err = sim.Step(); err != nil {
			return summary, fmt.Errorf("step %d: %w", i, err)
		}
		swarm := sim.Swarm()
		stats := swarm.Stats()
		convergence.Record(stats)
		if opts.positions {
			for _, position := range swarm.Positions() {
				fmt.Fprintf(out, "%d: %s\n", i, formatVector(position))
			}
		}
		if historic := sim.HistoricBest(); historic != previous {
			summary.Improvements++
			logger.Debug("historic best improved", logging.Uint64("iteration", sim.Iteration()), logging.Float64("score", historic.Score))
			if db != nil {
				if err = db.RecordImprovement(ctx, runID, sim.Iteration(), historic); err != nil {
					return summary, err
				}
			}
			if writer != nil {
				if err = writer.AppendEvent(sim.Iteration(), replay.EventImprovement, historic); err != nil {
					return summary, err
				}
			}
		}
		if writer != nil {
			frame, encErr := encoder.Binary(networking.Snapshot{
				RunID:        runID,
				Iteration:    sim.Iteration(),
				CapturedAt:   clock().UTC(),
				Goal:         cfg.Ctx.Goal,
				Strategy:     cfg.Ctx.Strategy,
				Best:         sim.Best(),
				HistoricBest: sim.HistoricBest(),
				Stats:        stats,
				Particles:    swarm.Particles(),
			})
			if encErr != nil {
				return summary, encErr
			}
			if err = writer.AppendFrame(sim.Iteration(), frame); err != nil {
				return summary, err
			}
		}
	}
	summary.Iterations = sim.Iteration()
	summary.HistoricBest = sim.HistoricBest()

	//4.- Close out the run record and render the plot.
	if db != nil {
		if err = db.FinishRun(ctx, runID, summary.Iterations); err != nil {
			return summary, err
		}
	}
	if convergence != nil {
		if err = convergence.Save(opts.plotPath); err != nil {
			return summary, err
		}
		summary.PlotPath = opts.plotPath
	}
	logger.Info("run finished",
		logging.Uint64("iterations", summary.Iterations),
		logging.Float64("historic_best", summary.HistoricBest.Score),
		logging.Int("improvements", summary.Improvements),
	)
	return summary, nil
}

func printSummary(out io.Writer, summary runSummary, asJSON bool) error {
	if asJSON {
		return writeJSON(out, summary)
	}
	fmt.Fprintf(out, "run %s (seed %d, %s %s)\n", summary.RunID, summary.Seed, summary.Strategy, summary.Goal)
	fmt.Fprintf(out, "  iterations:    %d\n", summary.Iterations)
	fmt.Fprintf(out, "  historic best: %.6f at %s\n", summary.HistoricBest.Score, formatVector(summary.HistoricBest.Position))
	fmt.Fprintf(out, "  improvements:  %d\n", summary.Improvements)
	if summary.ReplayDir != "" {
		fmt.Fprintf(out, "  replay:        %s\n", summary.ReplayDir)
	}
	if summary.PlotPath != "" {
		fmt.Fprintf(out, "  plot:          %s\n", summary.PlotPath)
	}
	return nil
}

func formatVector(v space.Vector) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}
