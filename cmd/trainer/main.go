package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lycorisplus/lanechangemodel/internal/agent"
	"github.com/Lycorisplus/lanechangemodel/internal/config"
	"github.com/Lycorisplus/lanechangemodel/internal/metrics"
	"github.com/Lycorisplus/lanechangemodel/internal/sim"
	"github.com/Lycorisplus/lanechangemodel/internal/trainer"
)

var (
	cfg      *config.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "trainer",
	Short: "PPO lane-change trainer",
	Long: `Trains a lane-change policy with PPO against a SUMO traffic simulation.

The trainer launches the simulator, injects an ego vehicle, runs episodes
of lane-change decisions, and updates an actor-critic policy after each
episode. Results and model snapshots are written to a timestamped
directory under the results root.`,
	RunE: runTrainer,
}

func init() {
	cfg = config.Default()

	// Simulator settings
	rootCmd.Flags().StringVar(&cfg.Sim.Binary, "sumo-binary", cfg.Sim.Binary, "SUMO binary to launch")
	rootCmd.Flags().StringVar(&cfg.Sim.ScenarioPath, "scenario", cfg.Sim.ScenarioPath, "SUMO scenario configuration file")
	rootCmd.Flags().IntVar(&cfg.Sim.PortLow, "port-low", cfg.Sim.PortLow, "Lowest TraCI port to try")
	rootCmd.Flags().IntVar(&cfg.Sim.PortHigh, "port-high", cfg.Sim.PortHigh, "Highest TraCI port to try (exclusive)")
	rootCmd.Flags().IntVar(&cfg.Sim.MaxSteps, "max-steps", cfg.Sim.MaxSteps, "Maximum steps per episode")

	// Training settings
	rootCmd.Flags().IntVar(&cfg.Train.Episodes, "episodes", cfg.Train.Episodes, "Number of training episodes")
	rootCmd.Flags().Float64Var(&cfg.Train.Gamma, "gamma", cfg.Train.Gamma, "Discount factor")
	rootCmd.Flags().Float64Var(&cfg.Train.ClipEpsilon, "clip-epsilon", cfg.Train.ClipEpsilon, "PPO clip range")
	rootCmd.Flags().Float64Var(&cfg.Train.LearningRate, "learning-rate", cfg.Train.LearningRate, "Adam learning rate")
	rootCmd.Flags().IntVar(&cfg.Train.BatchSize, "batch-size", cfg.Train.BatchSize, "Minimum transitions before an update")
	rootCmd.Flags().IntVar(&cfg.Train.Epochs, "epochs", cfg.Train.Epochs, "Optimization epochs per update")
	rootCmd.Flags().IntVar(&cfg.Train.HiddenSize, "hidden-size", cfg.Train.HiddenSize, "Hidden layer width")
	rootCmd.Flags().Float64Var(&cfg.Train.EntropyWeight, "entropy-weight", cfg.Train.EntropyWeight, "Entropy bonus weight")
	rootCmd.Flags().Float64Var(&cfg.Train.ValueWeight, "value-weight", cfg.Train.ValueWeight, "Critic loss weight")
	rootCmd.Flags().Float64Var(&cfg.Train.GradClip, "grad-clip", cfg.Train.GradClip, "Gradient norm clip")
	rootCmd.Flags().Int64Var(&cfg.Train.Seed, "seed", cfg.Train.Seed, "Random seed (0 for time-based)")
	rootCmd.Flags().IntVar(&cfg.Train.LogInterval, "log-interval", cfg.Train.LogInterval, "Episodes between progress logs")

	// Reward shaping
	rootCmd.Flags().Float64Var(&cfg.Reward.CollisionPenalty, "collision-penalty", cfg.Reward.CollisionPenalty, "Reward on an ego collision")
	rootCmd.Flags().Float64Var(&cfg.Reward.SpeedWeight, "speed-weight", cfg.Reward.SpeedWeight, "Weight of the speed-keeping term")
	rootCmd.Flags().Float64Var(&cfg.Reward.LaneWeight, "lane-weight", cfg.Reward.LaneWeight, "Weight of the preferred-lane term")
	rootCmd.Flags().IntVar(&cfg.Reward.PreferredLane, "preferred-lane", cfg.Reward.PreferredLane, "Lane index the reward favors")
	rootCmd.Flags().Float64Var(&cfg.Reward.SafeDistance, "safe-distance", cfg.Reward.SafeDistance, "Forward gap in meters below which the penalty applies")

	// Output
	rootCmd.Flags().StringVar(&cfg.Output.ResultsRoot, "results-root", cfg.Output.ResultsRoot, "Directory to create the results directory in")

	// Logging
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Bind flags to viper for environment variable support
	viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("LANECHANGE")
	viper.AutomaticEnv()
}

func runTrainer(cmd *cobra.Command, args []string) error {
	logger := newLogger(logLevel)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info().
		Str("binary", cfg.Sim.Binary).
		Str("scenario", cfg.Sim.ScenarioPath).
		Int("episodes", cfg.Train.Episodes).
		Msg("starting trainer")

	env := sim.NewEnv(cfg, logger)
	policy := agent.New(cfg, logger)
	recorder := metrics.NewRecorder(logger)

	t, err := trainer.New(cfg, logger, env, policy, recorder)
	if err != nil {
		return err
	}
	logger.Info().Str("results_dir", t.ResultsDir()).Str("run_id", recorder.RunID()).Msg("run initialized")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info().Msg("shutdown signal received, stopping after current step")
		cancel()
	}()

	if err := t.Run(ctx); err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	logger.Info().
		Float64("best_reward", t.BestReward()).
		Int("episodes", recorder.Episodes()).
		Msg("training finished")
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
