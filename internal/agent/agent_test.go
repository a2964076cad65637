package agent

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Lycorisplus/lanechangemodel/internal/config"
	"github.com/Lycorisplus/lanechangemodel/internal/sim"
)

func testAgentConfig() *config.Config {
	cfg := config.Default()
	cfg.Train.Seed = 42
	cfg.Train.BatchSize = 8
	cfg.Train.HiddenSize = 16
	return cfg
}

// makeObs builds an observation on the given lane with open road around.
func makeObs(lane int) sim.Observation {
	var obs sim.Observation
	obs[sim.IdxSpeed] = 0.8
	obs[sim.IdxLane] = sim.EncodeLane(lane, 3)
	for i := sim.IdxFront; i <= sim.IdxRightBack; i++ {
		obs[i] = 1.0
	}
	obs[sim.IdxCurrentLane] = obs[sim.IdxLane]
	if lane == 1 {
		obs[sim.IdxTargetLane] = 1.0
	}
	return obs
}

func TestLaneMaskLegality(t *testing.T) {
	tests := []struct {
		lane      string
		mask      []float64
		wantLeft  float64
		wantRight float64
	}{
		{"leftmost", LaneMask(0, 3), 0, 1},
		{"middle", LaneMask(1, 3), 1, 1},
		{"rightmost", LaneMask(2, 3), 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.lane, func(t *testing.T) {
			assert.Equal(t, 1.0, tt.mask[sim.ActionStay], "stay is always legal")
			assert.Equal(t, tt.wantLeft, tt.mask[sim.ActionLeft])
			assert.Equal(t, tt.wantRight, tt.mask[sim.ActionRight])
		})
	}
}

func TestMaskedProbsRenormalize(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for lane := 0; lane < 3; lane++ {
		mask := LaneMask(lane, 3)
		for trial := 0; trial < 50; trial++ {
			raw := []float64{rng.Float64(), rng.Float64(), rng.Float64()}
			var sum float64
			for _, v := range raw {
				sum += v
			}
			for i := range raw {
				raw[i] /= sum
			}

			q := maskedProbs(raw, mask)
			var qSum float64
			for i, v := range q {
				require.False(t, math.IsNaN(v))
				if mask[i] == 0 {
					assert.Zero(t, v, "illegal action must carry zero probability")
				}
				qSum += v
			}
			assert.InDelta(t, 1.0, qSum, 1e-6)
		}
	}
}

func TestMaskedProbsDegenerateMask(t *testing.T) {
	q := maskedProbs([]float64{0.2, 0.3, 0.5}, []float64{0, 0, 0})
	for _, v := range q {
		assert.False(t, math.IsNaN(v))
		assert.Zero(t, v)
	}
}

func TestMaskReproducibleFromStoredLane(t *testing.T) {
	for lane := 0; lane < 3; lane++ {
		obs := makeObs(lane)
		decoded := sim.DecodeLane(obs[sim.IdxLane], 3)
		assert.Equal(t, lane, decoded)
		assert.Equal(t, LaneMask(lane, 3), LaneMask(decoded, 3))
	}
}

func TestSelectActionNeverIllegal(t *testing.T) {
	a := New(testAgentConfig(), zerolog.Nop())

	for lane, illegal := range map[int]sim.Action{0: sim.ActionLeft, 2: sim.ActionRight} {
		obs := makeObs(lane)
		for i := 0; i < 200; i++ {
			action, logProb := a.SelectAction(obs)
			require.NotEqual(t, illegal, action, "lane %d sampled illegal action", lane)
			require.False(t, math.IsNaN(logProb))
			require.LessOrEqual(t, logProb, 0.0)
		}
	}
}

func TestDiscountedReturns(t *testing.T) {
	g := 0.9
	r := []float64{1.0, -2.0, 3.0}
	returns := discountedReturns(r, g)

	assert.InDelta(t, 3.0, returns[2], 1e-12)
	assert.InDelta(t, -2.0+g*3.0, returns[1], 1e-12)
	assert.InDelta(t, 1.0+g*returns[1], returns[0], 1e-12)
}

func TestNormalizeReturns(t *testing.T) {
	out := normalizeReturns([]float64{1, 2, 3, 4, 5})

	var mean float64
	for _, v := range out {
		mean += v
	}
	mean /= float64(len(out))
	assert.InDelta(t, 0.0, mean, 1e-9)

	var variance float64
	for _, v := range out {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(out)-1))
	assert.InDelta(t, 1.0, std, 1e-4)
}

func TestNormalizeReturnsConstantInput(t *testing.T) {
	out := normalizeReturns([]float64{2, 2, 2, 2})
	for _, v := range out {
		assert.False(t, math.IsNaN(v))
		assert.InDelta(t, 0.0, v, 1e-9)
	}
}

func TestUpdateNoopBelowBatchSize(t *testing.T) {
	a := New(testAgentConfig(), zerolog.Nop())

	before, err := a.Snapshot()
	require.NoError(t, err)

	obs := makeObs(1)
	for i := 0; i < 3; i++ {
		action, logProb := a.SelectAction(obs)
		a.Record(Transition{Obs: obs, Action: action, LogProb: logProb, Reward: 1.0})
	}
	a.Update()

	after, err := a.Snapshot()
	require.NoError(t, err)
	assert.True(t, bytes.Equal(before, after), "parameters must not move below the minimum batch size")
	assert.Equal(t, 3, a.BufferLen(), "buffer must be untouched")
	assert.Empty(t, a.ActorLosses())
}

func fillBuffer(a *Agent, steps int) {
	lanes := []int{0, 1, 2}
	for i := 0; i < steps; i++ {
		obs := makeObs(lanes[i%len(lanes)])
		action, logProb := a.SelectAction(obs)
		a.Record(Transition{Obs: obs, Action: action, LogProb: logProb, Reward: float64(i%5) - 1})
	}
}

func TestUpdateConsumesBuffer(t *testing.T) {
	cfg := testAgentConfig()
	a := New(cfg, zerolog.Nop())

	before, err := a.Snapshot()
	require.NoError(t, err)

	fillBuffer(a, cfg.Train.BatchSize+4)
	a.Update()

	assert.Equal(t, 0, a.BufferLen(), "buffer must be empty after a successful update")
	assert.Len(t, a.ActorLosses(), cfg.Train.Epochs)
	assert.Len(t, a.CriticLosses(), cfg.Train.Epochs)
	assert.Len(t, a.TotalLosses(), cfg.Train.Epochs)

	after, err := a.Snapshot()
	require.NoError(t, err)
	assert.False(t, bytes.Equal(before, after), "a full update must move the parameters")

	for _, v := range a.TotalLosses() {
		assert.False(t, math.IsNaN(v))
	}
}

func TestUpdatePreservesIllegalZeroProbability(t *testing.T) {
	cfg := testAgentConfig()
	a := New(cfg, zerolog.Nop())

	fillBuffer(a, cfg.Train.BatchSize)
	a.Update()

	// After the update the masked distribution must still assign zero
	// mass to illegal actions.
	for i := 0; i < 100; i++ {
		action, _ := a.SelectAction(makeObs(0))
		require.NotEqual(t, sim.ActionLeft, action)
	}
}

func TestSnapshotRestoreReproducesSampling(t *testing.T) {
	cfg := testAgentConfig()
	a := New(cfg, zerolog.Nop())
	fillBuffer(a, cfg.Train.BatchSize)
	a.Update()

	snap, err := a.Snapshot()
	require.NoError(t, err)

	b := New(cfg, zerolog.Nop())
	require.NoError(t, b.Restore(snap))

	// Identical parameters must produce bit-identical actor outputs, and
	// therefore identical action probabilities, for the same observation.
	obs := makeObs(1)
	x := mat.NewDense(1, sim.StateDim, obs.Slice())
	logitsA, _ := a.model.Actor.Forward(x)
	logitsB, _ := b.model.Actor.Forward(x)
	assert.True(t, mat.Equal(logitsA, logitsB), "restored model should reproduce identical action probabilities")
}
