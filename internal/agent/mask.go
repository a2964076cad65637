package agent

import "github.com/Lycorisplus/lanechangemodel/internal/sim"

// probFloor keeps the masked renormalization away from a zero division in
// the degenerate all-masked case.
const probFloor = 1e-8

// LaneMask returns the action legality mask for a lane index: shifting
// left is illegal in the leftmost lane, shifting right in the rightmost.
// It is a pure function of the lane, so masks recomputed during an update
// from stored transitions match the ones applied at sampling time.
func LaneMask(lane, laneCount int) []float64 {
	mask := []float64{1, 1, 1}
	if lane == 0 {
		mask[sim.ActionLeft] = 0
	}
	if lane == laneCount-1 {
		mask[sim.ActionRight] = 0
	}
	return mask
}

// maskedProbs applies a legality mask to a probability distribution and
// renormalizes the surviving mass.
func maskedProbs(probs, mask []float64) []float64 {
	q := make([]float64, len(probs))
	var sum float64
	for i := range probs {
		q[i] = probs[i] * mask[i]
		sum += q[i]
	}
	for i := range q {
		q[i] /= sum + probFloor
	}
	return q
}
