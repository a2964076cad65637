// Package config holds the immutable training configuration. A Config is
// built once at startup (defaults, then flags/environment) and passed by
// pointer to every component; nothing mutates it after Validate.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all trainer configuration.
type Config struct {
	Sim    SimConfig    `mapstructure:"sim"`
	Train  TrainConfig  `mapstructure:"train"`
	Reward RewardConfig `mapstructure:"reward"`
	Output OutputConfig `mapstructure:"output"`
}

// SimConfig describes the simulator process and the episode envelope.
type SimConfig struct {
	Binary       string   `mapstructure:"binary"`
	ScenarioPath string   `mapstructure:"scenario_path"`
	EgoID        string   `mapstructure:"ego_id"`
	RouteID      string   `mapstructure:"route_id"`
	RouteEdges   []string `mapstructure:"route_edges"`

	PortLow  int `mapstructure:"port_low"`
	PortHigh int `mapstructure:"port_high"`

	LaunchWait     time.Duration `mapstructure:"launch_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	SpawnRetries   int           `mapstructure:"spawn_retries"`

	LaneCount          int     `mapstructure:"lane_count"`
	MaxSpeed           float64 `mapstructure:"max_speed"`
	SensingRadius      float64 `mapstructure:"sensing_radius"`
	LaneChangeDuration float64 `mapstructure:"lane_change_duration"`
	TimeLimit          float64 `mapstructure:"time_limit"`
	MaxSteps           int     `mapstructure:"max_steps"`
}

// TrainConfig holds the PPO hyperparameters.
type TrainConfig struct {
	Episodes      int     `mapstructure:"episodes"`
	Gamma         float64 `mapstructure:"gamma"`
	ClipEpsilon   float64 `mapstructure:"clip_epsilon"`
	LearningRate  float64 `mapstructure:"learning_rate"`
	BatchSize     int     `mapstructure:"batch_size"`
	Epochs        int     `mapstructure:"epochs"`
	HiddenSize    int     `mapstructure:"hidden_size"`
	EntropyWeight float64 `mapstructure:"entropy_weight"`
	ValueWeight   float64 `mapstructure:"value_weight"`
	GradClip      float64 `mapstructure:"grad_clip"`
	LogInterval   int     `mapstructure:"log_interval"`
	Seed          int64   `mapstructure:"seed"`
}

// RewardConfig holds the shaped-reward weights. These are tunable, not
// structural; the term layout lives in the sim package.
type RewardConfig struct {
	CollisionPenalty    float64 `mapstructure:"collision_penalty"`
	SpeedWeight         float64 `mapstructure:"speed_weight"`
	LaneWeight          float64 `mapstructure:"lane_weight"`
	PreferredLane       int     `mapstructure:"preferred_lane"`
	ChangeBonus         float64 `mapstructure:"change_bonus"`
	SafeDistance        float64 `mapstructure:"safe_distance"`
	SafeDistancePenalty float64 `mapstructure:"safe_distance_penalty"`
}

// OutputConfig controls where results and model snapshots land.
type OutputConfig struct {
	ResultsRoot string `mapstructure:"results_root"`
}

// Default returns a config with the reference hyperparameters.
func Default() *Config {
	return &Config{
		Sim: SimConfig{
			Binary:             "sumo",
			ScenarioPath:       "a.sumocfg",
			EgoID:              "drl_ego_car",
			RouteID:            "ego_route",
			RouteEdges:         []string{"E0"},
			PortLow:            8890,
			PortHigh:           8900,
			LaunchWait:         2 * time.Second,
			ConnectTimeout:     5 * time.Second,
			SpawnRetries:       20,
			LaneCount:          3,
			MaxSpeed:           33.33,
			SensingRadius:      100.0,
			LaneChangeDuration: 2.0,
			TimeLimit:          3600.0,
			MaxSteps:           2000,
		},
		Train: TrainConfig{
			Episodes:      1000,
			Gamma:         0.99,
			ClipEpsilon:   0.1,
			LearningRate:  1e-4,
			BatchSize:     256,
			Epochs:        3,
			HiddenSize:    256,
			EntropyWeight: 0.01,
			ValueWeight:   0.5,
			GradClip:      0.5,
			LogInterval:   10,
			Seed:          0,
		},
		Reward: RewardConfig{
			CollisionPenalty:    -50.0,
			SpeedWeight:         0.5,
			LaneWeight:          0.3,
			PreferredLane:       1,
			ChangeBonus:         0.1,
			SafeDistance:        5.0,
			SafeDistancePenalty: -1.0,
		},
		Output: OutputConfig{
			ResultsRoot: ".",
		},
	}
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Sim.Binary == "" {
		return fmt.Errorf("sim binary is required")
	}
	if _, err := os.Stat(c.Sim.Binary); err != nil && os.Getenv("SUMO_HOME") == "" {
		return fmt.Errorf("sim binary %q not found and SUMO_HOME is not set", c.Sim.Binary)
	}
	if _, err := os.Stat(c.Sim.ScenarioPath); err != nil {
		return fmt.Errorf("scenario file %q: %w", c.Sim.ScenarioPath, err)
	}
	if c.Sim.EgoID == "" {
		return fmt.Errorf("ego vehicle ID is required")
	}
	if c.Sim.PortLow <= 0 || c.Sim.PortHigh < c.Sim.PortLow {
		return fmt.Errorf("invalid port range [%d, %d)", c.Sim.PortLow, c.Sim.PortHigh)
	}
	if c.Sim.LaneCount < 2 {
		return fmt.Errorf("lane count must be at least 2 (got %d)", c.Sim.LaneCount)
	}
	if c.Sim.MaxSpeed <= 0 {
		return fmt.Errorf("max speed must be positive")
	}
	if c.Sim.SensingRadius <= 0 {
		return fmt.Errorf("sensing radius must be positive")
	}
	if c.Sim.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be positive")
	}
	if c.Train.Episodes <= 0 {
		return fmt.Errorf("episodes must be positive")
	}
	if c.Train.Gamma <= 0 || c.Train.Gamma > 1 {
		return fmt.Errorf("gamma must be in (0, 1] (got %g)", c.Train.Gamma)
	}
	if c.Train.ClipEpsilon <= 0 {
		return fmt.Errorf("clip epsilon must be positive")
	}
	if c.Train.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive")
	}
	if c.Train.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Train.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive")
	}
	if c.Train.HiddenSize <= 0 {
		return fmt.Errorf("hidden size must be positive")
	}
	if c.Reward.PreferredLane < 0 || c.Reward.PreferredLane >= c.Sim.LaneCount {
		return fmt.Errorf("preferred lane %d outside lane range [0, %d)", c.Reward.PreferredLane, c.Sim.LaneCount)
	}
	return nil
}
