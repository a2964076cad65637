// Package agent turns policy outputs into legal sampled actions, buffers
// on-policy transitions, and runs the clipped-surrogate policy update.
package agent

import (
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/Lycorisplus/lanechangemodel/internal/config"
	"github.com/Lycorisplus/lanechangemodel/internal/policy"
	"github.com/Lycorisplus/lanechangemodel/internal/sim"
)

// Transition is one recorded simulation step. The log probability is the
// one the masked distribution assigned to the action at sampling time.
type Transition struct {
	Obs     sim.Observation
	Action  sim.Action
	LogProb float64
	Reward  float64
}

// Agent owns the actor-critic parameters and the trajectory buffer. It is
// driven strictly sequentially: Update is never invoked concurrently with
// SelectAction.
type Agent struct {
	cfg    *config.Config
	logger zerolog.Logger

	model *policy.Model
	opt   *policy.Adam
	rng   *rand.Rand

	buffer []Transition

	actorLosses  []float64
	criticLosses []float64
	totalLosses  []float64
}

// New builds an agent with freshly initialized actor and critic heads.
func New(cfg *config.Config, logger zerolog.Logger) *Agent {
	seed := cfg.Train.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	model := policy.New(sim.StateDim, cfg.Train.HiddenSize, sim.NumActions, seed)
	return &Agent{
		cfg:    cfg,
		logger: logger,
		model:  model,
		opt:    policy.NewAdam(cfg.Train.LearningRate, model.ParamData()),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// SelectAction samples a legal action from the masked actor distribution
// and returns it with its log probability under that distribution.
func (a *Agent) SelectAction(obs sim.Observation) (sim.Action, float64) {
	x := mat.NewDense(1, sim.StateDim, obs.Slice())
	logits, _ := a.model.Actor.Forward(x)
	probs := policy.SoftmaxRow(logits.RawRowView(0))

	lane := sim.DecodeLane(obs[sim.IdxLane], a.cfg.Sim.LaneCount)
	q := maskedProbs(probs, LaneMask(lane, a.cfg.Sim.LaneCount))

	action := sampleCategorical(q, a.rng)
	return sim.Action(action), math.Log(q[action])
}

// Record appends a transition to the trajectory buffer.
func (a *Agent) Record(tr Transition) {
	a.buffer = append(a.buffer, tr)
}

// BufferLen returns the number of buffered transitions.
func (a *Agent) BufferLen() int {
	return len(a.buffer)
}

// ActorLosses returns the per-pass actor loss history.
func (a *Agent) ActorLosses() []float64 { return a.actorLosses }

// CriticLosses returns the per-pass critic loss history.
func (a *Agent) CriticLosses() []float64 { return a.criticLosses }

// TotalLosses returns the per-pass combined loss history.
func (a *Agent) TotalLosses() []float64 { return a.totalLosses }

// Snapshot serializes the current actor and critic parameters.
func (a *Agent) Snapshot() ([]byte, error) {
	return a.model.Snapshot()
}

// Restore loads parameters produced by Snapshot.
func (a *Agent) Restore(data []byte) error {
	return a.model.Restore(data)
}

// Update consumes the trajectory buffer with a fixed number of full-batch
// clipped-surrogate passes, then clears it. It is a no-op while the buffer
// is below the configured batch size, so short early episodes do not
// trigger degenerate updates.
func (a *Agent) Update() {
	if len(a.buffer) < a.cfg.Train.BatchSize {
		return
	}
	n := len(a.buffer)

	x := mat.NewDense(n, sim.StateDim, nil)
	b := &batch{
		actions:     make([]int, n),
		oldLogProbs: make([]float64, n),
		masks:       make([][]float64, n),
	}
	rewards := make([]float64, n)
	for i, tr := range a.buffer {
		x.SetRow(i, tr.Obs.Slice())
		b.actions[i] = int(tr.Action)
		b.oldLogProbs[i] = tr.LogProb
		// Legality is reconstructed from the stored lane field, never
		// from live simulator state.
		lane := sim.DecodeLane(tr.Obs[sim.IdxLane], a.cfg.Sim.LaneCount)
		b.masks[i] = LaneMask(lane, a.cfg.Sim.LaneCount)
		rewards[i] = tr.Reward
	}
	// One contiguous return chain over the whole buffer, matching the
	// on-policy consumption model: the buffer is discarded in full below.
	b.targets = normalizeReturns(discountedReturns(rewards, a.cfg.Train.Gamma))

	for epoch := 0; epoch < a.cfg.Train.Epochs; epoch++ {
		logits, actorCache := a.model.Actor.Forward(x)
		values, criticCache := a.model.Critic.Forward(x)

		losses, dLogits, dValues := ppoLoss(logits, values, b, &a.cfg.Train)

		actorGrads := a.model.Actor.Backward(actorCache, dLogits)
		criticGrads := a.model.Critic.Backward(criticCache, dValues)
		grads := actorGrads.Append(criticGrads)
		policy.ClipGradNorm(grads, a.cfg.Train.GradClip)
		a.opt.Step(a.model.ParamData(), grads)

		a.actorLosses = append(a.actorLosses, losses.actor)
		a.criticLosses = append(a.criticLosses, losses.critic)
		a.totalLosses = append(a.totalLosses, losses.total)
	}

	a.buffer = a.buffer[:0]
}

func sampleCategorical(probs []float64, rng *rand.Rand) int {
	threshold := rng.Float64()
	var cum float64
	for i, p := range probs {
		cum += p
		if threshold <= cum {
			return i
		}
	}
	// The masked distribution can sum to marginally less than one; fall
	// back to the last action carrying probability mass.
	for i := len(probs) - 1; i >= 0; i-- {
		if probs[i] > 0 {
			return i
		}
	}
	return 0
}
