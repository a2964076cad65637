package agent

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/Lycorisplus/lanechangemodel/internal/config"
	"github.com/Lycorisplus/lanechangemodel/internal/policy"
)

// stdEps keeps the return normalization finite for constant-reward batches.
const stdEps = 1e-7

// batch is the precomputed, policy-independent view of the trajectory
// buffer used across the optimization passes of one update.
type batch struct {
	actions     []int
	oldLogProbs []float64
	masks       [][]float64
	targets     []float64
}

type lossValues struct {
	actor   float64
	critic  float64
	entropy float64
	total   float64
}

// discountedReturns accumulates gamma-discounted returns over the rewards
// in reverse temporal order, seeding the running return at zero.
func discountedReturns(rewards []float64, gamma float64) []float64 {
	returns := make([]float64, len(rewards))
	var running float64
	for t := len(rewards) - 1; t >= 0; t-- {
		running = rewards[t] + gamma*running
		returns[t] = running
	}
	return returns
}

// normalizeReturns shifts and scales the returns to zero mean and unit
// standard deviation, stabilizing the gradient scale across batches of
// varying reward magnitude.
func normalizeReturns(returns []float64) []float64 {
	mean, std := stat.MeanStdDev(returns, nil)
	if math.IsNaN(std) {
		std = 0 // single-element batch
	}
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = (r - mean) / (std + stdEps)
	}
	return out
}

// ppoLoss evaluates the combined clipped-surrogate objective for one pass
// over the batch and returns the loss components together with the loss
// gradients with respect to the actor logits and critic values.
//
// The masked distribution behaves like a plain softmax over the legal
// actions, so the log-probability gradient with respect to logit k is
// delta(k, action) - q_k, and the entropy gradient is -q_k*(log q_k + H).
func ppoLoss(logits, values *mat.Dense, b *batch, cfg *config.TrainConfig) (lossValues, *mat.Dense, *mat.Dense) {
	n, k := logits.Dims()
	dLogits := mat.NewDense(n, k, nil)
	dValues := mat.NewDense(n, 1, nil)
	fn := float64(n)

	var losses lossValues
	for i := 0; i < n; i++ {
		probs := policy.SoftmaxRow(logits.RawRowView(i))
		q := maskedProbs(probs, b.masks[i])
		action := b.actions[i]

		newLogProb := math.Log(q[action])
		ratio := math.Exp(newLogProb - b.oldLogProbs[i])

		// Advantage against the learned value baseline; the baseline is
		// detached, so the surrogate pushes only the actor.
		value := values.At(i, 0)
		adv := b.targets[i] - value

		surr1 := ratio * adv
		clipped := ratio
		if clipped < 1-cfg.ClipEpsilon {
			clipped = 1 - cfg.ClipEpsilon
		} else if clipped > 1+cfg.ClipEpsilon {
			clipped = 1 + cfg.ClipEpsilon
		}
		surr2 := clipped * adv
		losses.actor -= math.Min(surr1, surr2)

		var entropy float64
		for _, qk := range q {
			if qk > 0 {
				entropy -= qk * math.Log(qk)
			}
		}
		losses.entropy += entropy

		diff := value - b.targets[i]
		losses.critic += diff * diff
		dValues.Set(i, 0, cfg.ValueWeight*2*diff/fn)

		// Gradient of -min(surr1, surr2) with respect to the new log
		// probability; zero when the clipped branch is active.
		var gSurr float64
		if surr1 <= surr2 {
			gSurr = -adv * ratio
		}
		row := dLogits.RawRowView(i)
		for j := 0; j < k; j++ {
			var delta float64
			if j == action {
				delta = 1
			}
			g := gSurr * (delta - q[j])
			if q[j] > 0 {
				g += cfg.EntropyWeight * q[j] * (math.Log(q[j]) + entropy)
			}
			row[j] = g / fn
		}
	}

	losses.actor /= fn
	losses.critic /= fn
	losses.entropy /= fn
	losses.total = losses.actor - cfg.EntropyWeight*losses.entropy + cfg.ValueWeight*losses.critic
	return losses, dLogits, dValues
}
