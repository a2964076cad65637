// Package metrics accumulates per-episode training statistics in memory
// and flushes them to a results directory at the end of a run.
package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder collects the per-episode and per-update sequences. It is
// appended to by the training loop only; readers get copies.
type Recorder struct {
	logger zerolog.Logger

	runID     string
	startedAt time.Time

	episodeRewards []float64
	laneChanges    []int
	collisions     []int
	steps          []int
}

// NewRecorder creates a recorder tagged with a fresh run ID.
func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{
		logger:    logger,
		runID:     uuid.NewString(),
		startedAt: time.Now(),
	}
}

// RunID returns the unique identifier of this training run.
func (r *Recorder) RunID() string { return r.runID }

// RecordEpisode appends one episode's statistics.
func (r *Recorder) RecordEpisode(reward float64, laneChanges, collisions, steps int) {
	r.episodeRewards = append(r.episodeRewards, reward)
	r.laneChanges = append(r.laneChanges, laneChanges)
	r.collisions = append(r.collisions, collisions)
	r.steps = append(r.steps, steps)
}

// EpisodeRewards returns the reward sequence recorded so far.
func (r *Recorder) EpisodeRewards() []float64 {
	return append([]float64(nil), r.episodeRewards...)
}

// Episodes returns the number of recorded episodes.
func (r *Recorder) Episodes() int { return len(r.episodeRewards) }

// trainingData is the on-disk layout of a finished run.
type trainingData struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	EpisodeRewards []float64 `json:"rewards"`
	LaneChanges    []int     `json:"lane_changes"`
	Collisions     []int     `json:"collisions"`
	Steps          []int     `json:"steps"`

	ActorLosses  []float64 `json:"actor_losses"`
	CriticLosses []float64 `json:"critic_losses"`
	TotalLosses  []float64 `json:"total_losses"`
}

// Flush writes the accumulated sequences, together with the loss history
// from the agent, into training_data.json under dir.
func (r *Recorder) Flush(dir string, actorLosses, criticLosses, totalLosses []float64) error {
	data := trainingData{
		RunID:          r.runID,
		StartedAt:      r.startedAt,
		FinishedAt:     time.Now(),
		EpisodeRewards: r.episodeRewards,
		LaneChanges:    r.laneChanges,
		Collisions:     r.collisions,
		Steps:          r.steps,
		ActorLosses:    actorLosses,
		CriticLosses:   criticLosses,
		TotalLosses:    totalLosses,
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "training_data.json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return err
	}
	r.logger.Info().Str("path", path).Int("episodes", len(r.episodeRewards)).Msg("training data written")
	return nil
}
