package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEpisodeSequences(t *testing.T) {
	r := NewRecorder(zerolog.Nop())
	assert.NotEmpty(t, r.RunID())

	r.RecordEpisode(12.5, 3, 0, 200)
	r.RecordEpisode(-50.0, 1, 1, 42)

	assert.Equal(t, 2, r.Episodes())
	assert.Equal(t, []float64{12.5, -50.0}, r.EpisodeRewards())
}

func TestEpisodeRewardsReturnsCopy(t *testing.T) {
	r := NewRecorder(zerolog.Nop())
	r.RecordEpisode(1.0, 0, 0, 10)

	rewards := r.EpisodeRewards()
	rewards[0] = 999
	assert.Equal(t, []float64{1.0}, r.EpisodeRewards())
}

func TestFlushWritesTrainingData(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(zerolog.Nop())
	r.RecordEpisode(5.0, 2, 0, 100)
	r.RecordEpisode(8.0, 4, 1, 150)

	err := r.Flush(dir, []float64{0.1, 0.2}, []float64{1.5, 1.2}, []float64{0.8, 0.7})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "training_data.json"))
	require.NoError(t, err)

	var data trainingData
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, r.RunID(), data.RunID)
	assert.Equal(t, []float64{5.0, 8.0}, data.EpisodeRewards)
	assert.Equal(t, []int{2, 4}, data.LaneChanges)
	assert.Equal(t, []int{0, 1}, data.Collisions)
	assert.Equal(t, []int{100, 150}, data.Steps)
	assert.Equal(t, []float64{0.1, 0.2}, data.ActorLosses)
	assert.Equal(t, []float64{1.5, 1.2}, data.CriticLosses)
	assert.False(t, data.FinishedAt.IsZero())
}

func TestFlushCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ppo_results_test", "nested")
	r := NewRecorder(zerolog.Nop())
	require.NoError(t, r.Flush(dir, nil, nil, nil))

	_, err := os.Stat(filepath.Join(dir, "training_data.json"))
	assert.NoError(t, err)
}
