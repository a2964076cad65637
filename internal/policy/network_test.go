package policy

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestForwardShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := NewNetwork([]int{10, 16, 16, 3}, rng)

	x := mat.NewDense(7, 10, nil)
	out, cache := net.Forward(x)

	rows, cols := out.Dims()
	assert.Equal(t, 7, rows)
	assert.Equal(t, 3, cols)
	assert.Len(t, cache.acts, 3)
}

func TestForwardDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	net := NewNetwork([]int{4, 8, 8, 2}, rng)

	x := randomBatch(5, 4, 9)
	a, _ := net.Forward(x)
	b, _ := net.Forward(x)
	assert.True(t, mat.Equal(a, b))
}

func TestSoftmaxRow(t *testing.T) {
	probs := SoftmaxRow([]float64{1.0, 2.0, 3.0})

	var sum float64
	for _, p := range probs {
		require.Greater(t, p, 0.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, probs[2], probs[1])
	assert.Greater(t, probs[1], probs[0])

	// Large logits must not overflow thanks to the max shift.
	extreme := SoftmaxRow([]float64{1000, 999, -1000})
	assert.False(t, math.IsNaN(extreme[0]))
	assert.InDelta(t, 1.0, extreme[0]+extreme[1]+extreme[2], 1e-12)
}

// quadLoss is 0.5 * sum(out^2), whose gradient with respect to the outputs
// is the outputs themselves.
func quadLoss(net *Network, x *mat.Dense) float64 {
	out, _ := net.Forward(x)
	var sum float64
	rows, cols := out.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := out.At(i, j)
			sum += 0.5 * v * v
		}
	}
	return sum
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	net := NewNetwork([]int{3, 5, 5, 2}, rng)
	x := randomBatch(6, 3, 17)

	out, cache := net.Forward(x)
	grads := net.Backward(cache, mat.DenseCopyOf(out))

	const h = 1e-6
	params := net.paramData()
	gradData := grads.data()
	require.Equal(t, len(params), len(gradData))

	for b, blob := range params {
		// Probe a spread of indices in each blob.
		for _, idx := range []int{0, len(blob) / 2, len(blob) - 1} {
			orig := blob[idx]
			blob[idx] = orig + h
			up := quadLoss(net, x)
			blob[idx] = orig - h
			down := quadLoss(net, x)
			blob[idx] = orig

			numeric := (up - down) / (2 * h)
			analytic := gradData[b][idx]
			assert.InDelta(t, numeric, analytic, 1e-4+1e-4*math.Abs(numeric),
				"blob %d index %d", b, idx)
		}
	}
}

func TestSnapshotRoundTripBitIdentical(t *testing.T) {
	m := New(10, 32, 3, 42)

	x := randomBatch(4, 10, 5)
	wantLogits, _ := m.Actor.Forward(x)
	wantValues, _ := m.Critic.Forward(x)

	data, err := m.Snapshot()
	require.NoError(t, err)

	restored := New(10, 32, 3, 777) // different seed, same architecture
	require.NoError(t, restored.Restore(data))

	gotLogits, _ := restored.Actor.Forward(x)
	gotValues, _ := restored.Critic.Forward(x)
	assert.True(t, mat.Equal(wantLogits, gotLogits), "actor outputs must round-trip bit-identically")
	assert.True(t, mat.Equal(wantValues, gotValues), "critic outputs must round-trip bit-identically")
}

func TestRestoreRejectsMismatchedArchitecture(t *testing.T) {
	m := New(10, 32, 3, 1)
	data, err := m.Snapshot()
	require.NoError(t, err)

	other := New(10, 64, 3, 1)
	require.Error(t, other.Restore(data))
}

func TestAdamStepIsDeterministic(t *testing.T) {
	run := func() []float64 {
		params := [][]float64{{1.0, -2.0}, {0.5}}
		grads := [][]float64{{0.1, -0.2}, {0.3}}
		opt := NewAdam(0.01, params)
		for i := 0; i < 3; i++ {
			opt.Step(params, grads)
		}
		return append(append([]float64(nil), params[0]...), params[1]...)
	}
	assert.Equal(t, run(), run())
}

func TestAdamMovesAgainstGradient(t *testing.T) {
	params := [][]float64{{1.0, 1.0}}
	grads := [][]float64{{1.0, -1.0}}
	opt := NewAdam(0.1, params)
	opt.Step(params, grads)

	assert.Less(t, params[0][0], 1.0)
	assert.Greater(t, params[0][1], 1.0)
}

func TestClipGradNorm(t *testing.T) {
	grads := [][]float64{{3.0}, {4.0}}
	norm := ClipGradNorm(grads, 0.5)
	assert.InDelta(t, 5.0, norm, 1e-12)
	assert.InDelta(t, 0.3, grads[0][0], 1e-12)
	assert.InDelta(t, 0.4, grads[1][0], 1e-12)

	small := [][]float64{{0.1, 0.2}}
	ClipGradNorm(small, 10)
	assert.Equal(t, []float64{0.1, 0.2}, small[0])
}

func randomBatch(rows, cols int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.Float64()
	}
	return mat.NewDense(rows, cols, data)
}
