// Package trainer orchestrates episodes: it drives the environment and the
// agent strictly sequentially, checkpoints the best-performing parameters,
// and guarantees cleanup and a final checkpoint on every exit path,
// including operator interruption.
package trainer

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Lycorisplus/lanechangemodel/internal/agent"
	"github.com/Lycorisplus/lanechangemodel/internal/config"
	"github.com/Lycorisplus/lanechangemodel/internal/metrics"
	"github.com/Lycorisplus/lanechangemodel/internal/sim"
)

// Environment is the slice of the simulation adapter the loop consumes.
type Environment interface {
	Reset(ctx context.Context) (sim.Observation, error)
	Step(action sim.Action) (sim.Observation, float64, bool)
	LaneChanges() int
	Collisions() int
	Steps() int
	Close()
}

// Policy is the slice of the agent the loop consumes.
type Policy interface {
	SelectAction(obs sim.Observation) (sim.Action, float64)
	Record(tr agent.Transition)
	Update()
	Snapshot() ([]byte, error)
	ActorLosses() []float64
	CriticLosses() []float64
	TotalLosses() []float64
}

const (
	bestModelFile = "best_model.json"
	lastModelFile = "last_model.json"
)

// Trainer runs the configured number of episodes against one environment
// and one agent.
type Trainer struct {
	cfg    *config.Config
	logger zerolog.Logger

	env      Environment
	policy   Policy
	recorder *metrics.Recorder

	resultsDir string
	modelsDir  string
	bestReward float64
}

// New prepares a trainer and its timestamped results directory.
func New(cfg *config.Config, logger zerolog.Logger, env Environment, policy Policy, recorder *metrics.Recorder) (*Trainer, error) {
	resultsDir := filepath.Join(cfg.Output.ResultsRoot,
		fmt.Sprintf("ppo_results_%s", time.Now().Format("20060102_150405")))
	modelsDir := filepath.Join(resultsDir, "models")
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("trainer: create results directory: %w", err)
	}
	return &Trainer{
		cfg:        cfg,
		logger:     logger,
		env:        env,
		policy:     policy,
		recorder:   recorder,
		resultsDir: resultsDir,
		modelsDir:  modelsDir,
		bestReward: math.Inf(-1),
	}, nil
}

// ResultsDir returns the directory this run writes into.
func (t *Trainer) ResultsDir() string { return t.resultsDir }

// BestReward returns the best episode reward seen so far.
func (t *Trainer) BestReward() float64 { return t.bestReward }

// Run executes the training loop. Context cancellation is the controlled
// shutdown path: the loop stops between steps, and the deferred cleanup
// still closes the simulator session, persists the last parameters, and
// flushes the metrics, exactly as on normal completion.
func (t *Trainer) Run(ctx context.Context) error {
	defer t.shutdown()

	for episode := 1; episode <= t.cfg.Train.Episodes; episode++ {
		if ctx.Err() != nil {
			t.logger.Info().Int("episode", episode).Msg("training interrupted")
			return nil
		}

		obs, err := t.env.Reset(ctx)
		if err != nil {
			return fmt.Errorf("trainer: reset episode %d: %w", episode, err)
		}

		var episodeReward float64
		done := false
		for steps := 0; !done && steps < t.cfg.Sim.MaxSteps; steps++ {
			if ctx.Err() != nil {
				t.logger.Info().Int("episode", episode).Msg("training interrupted mid-episode")
				return nil
			}
			action, logProb := t.policy.SelectAction(obs)
			next, reward, d := t.env.Step(action)
			t.policy.Record(agent.Transition{
				Obs:     obs,
				Action:  action,
				LogProb: logProb,
				Reward:  reward,
			})
			obs = next
			episodeReward += reward
			done = d
		}

		t.policy.Update()
		t.recorder.RecordEpisode(episodeReward, t.env.LaneChanges(), t.env.Collisions(), t.env.Steps())

		if episodeReward > t.bestReward {
			t.bestReward = episodeReward
			if err := t.writeSnapshot(bestModelFile); err != nil {
				t.logger.Error().Err(err).Msg("failed to write best model")
			} else {
				t.logger.Info().
					Int("episode", episode).
					Float64("reward", episodeReward).
					Msg("new best model")
			}
		}

		if t.cfg.Train.LogInterval > 0 && episode%t.cfg.Train.LogInterval == 0 {
			t.logger.Info().
				Int("episode", episode).
				Float64("reward", episodeReward).
				Float64("best", t.bestReward).
				Int("lane_changes", t.env.LaneChanges()).
				Int("collisions", t.env.Collisions()).
				Msg("episode complete")
		}
	}
	return nil
}

// shutdown runs on every exit path: simulator teardown, final checkpoint,
// metrics flush.
func (t *Trainer) shutdown() {
	t.env.Close()
	if err := t.writeSnapshot(lastModelFile); err != nil {
		t.logger.Error().Err(err).Msg("failed to write last model")
	}
	if err := t.recorder.Flush(t.resultsDir,
		t.policy.ActorLosses(), t.policy.CriticLosses(), t.policy.TotalLosses()); err != nil {
		t.logger.Error().Err(err).Msg("failed to flush training data")
	}
}

func (t *Trainer) writeSnapshot(name string) error {
	data, err := t.policy.Snapshot()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(t.modelsDir, name), data, 0o644)
}
