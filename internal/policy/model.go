package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// Model pairs the actor head (logits over the discrete actions) with the
// critic head (scalar state value). The heads share input dimensionality
// and nothing else.
type Model struct {
	Actor  *Network
	Critic *Network
}

// New builds an actor-critic model with two hidden layers per head.
func New(stateDim, hiddenSize, numActions int, seed int64) *Model {
	rng := rand.New(rand.NewSource(seed))
	return &Model{
		Actor:  NewNetwork([]int{stateDim, hiddenSize, hiddenSize, numActions}, rng),
		Critic: NewNetwork([]int{stateDim, hiddenSize, hiddenSize, 1}, rng),
	}
}

// ParamData exposes the raw parameter slices of both heads, actor first.
// The optimizer steps these in place.
func (m *Model) ParamData() [][]float64 {
	return append(m.Actor.paramData(), m.Critic.paramData()...)
}

// SoftmaxRow normalizes one logit row into a probability distribution,
// shifted by the row maximum for numerical stability.
func SoftmaxRow(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

type networkSnapshot struct {
	Sizes   []int       `json:"sizes"`
	Weights [][]float64 `json:"weights"`
	Biases  [][]float64 `json:"biases"`
}

type modelSnapshot struct {
	Actor  networkSnapshot `json:"actor"`
	Critic networkSnapshot `json:"critic"`
}

func (n *Network) snapshot() networkSnapshot {
	snap := networkSnapshot{Sizes: append([]int(nil), n.sizes...)}
	for _, lay := range n.layers {
		snap.Weights = append(snap.Weights, append([]float64(nil), lay.W.RawMatrix().Data...))
		snap.Biases = append(snap.Biases, append([]float64(nil), lay.B.RawVector().Data...))
	}
	return snap
}

func (n *Network) restore(snap networkSnapshot) error {
	if len(snap.Sizes) != len(n.sizes) {
		return fmt.Errorf("policy: snapshot has %d layer sizes, want %d", len(snap.Sizes), len(n.sizes))
	}
	for i, size := range snap.Sizes {
		if size != n.sizes[i] {
			return fmt.Errorf("policy: snapshot layer size %d is %d, want %d", i, size, n.sizes[i])
		}
	}
	for l, lay := range n.layers {
		wData := lay.W.RawMatrix().Data
		if len(snap.Weights[l]) != len(wData) {
			return fmt.Errorf("policy: snapshot weight blob %d has %d values, want %d", l, len(snap.Weights[l]), len(wData))
		}
		copy(wData, snap.Weights[l])
		bData := lay.B.RawVector().Data
		if len(snap.Biases[l]) != len(bData) {
			return fmt.Errorf("policy: snapshot bias blob %d has %d values, want %d", l, len(snap.Biases[l]), len(bData))
		}
		copy(bData, snap.Biases[l])
	}
	return nil
}

// Snapshot serializes both heads. JSON float64 encoding round-trips
// bit-identically, so a restored model reproduces the exact same outputs.
func (m *Model) Snapshot() ([]byte, error) {
	return json.Marshal(modelSnapshot{
		Actor:  m.Actor.snapshot(),
		Critic: m.Critic.snapshot(),
	})
}

// Restore loads parameters previously produced by Snapshot into a model of
// identical architecture.
func (m *Model) Restore(data []byte) error {
	var snap modelSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("policy: decode snapshot: %w", err)
	}
	if err := m.Actor.restore(snap.Actor); err != nil {
		return err
	}
	return m.Critic.restore(snap.Critic)
}
