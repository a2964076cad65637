package sim

import "math"

// StateDim is the fixed observation width. Traffic density never changes
// it; empty neighbor buckets saturate at the sensing radius.
const StateDim = 10

// Observation field layout.
const (
	IdxSpeed = iota
	IdxLane
	IdxFront
	IdxBack
	IdxLeftFront
	IdxLeftBack
	IdxRightFront
	IdxRightBack
	IdxCurrentLane
	IdxTargetLane
)

// Observation is the normalized state vector handed to the policy. All
// fields are in [0, 1].
type Observation [StateDim]float64

// Slice returns the observation as a float64 slice for numeric code.
func (o Observation) Slice() []float64 {
	return o[:]
}

// EncodeLane maps a lane index onto [0, 1] over laneCount lanes.
func EncodeLane(lane, laneCount int) float64 {
	return float64(lane) / float64(laneCount-1)
}

// DecodeLane recovers the lane index from its normalized encoding. It is a
// pure function of the stored value, so the legality mask recomputed during
// an update matches the one applied at sampling time.
func DecodeLane(v float64, laneCount int) int {
	lane := int(math.Round(v * float64(laneCount-1)))
	if lane < 0 {
		lane = 0
	}
	if lane > laneCount-1 {
		lane = laneCount - 1
	}
	return lane
}

// observe builds the observation from live telemetry. Query faults degrade
// to a partially filled (or zero) vector rather than failing the step,
// mirroring the end-episode-on-fault policy.
func (e *Env) observe() Observation {
	var obs Observation
	ids, err := e.control.VehicleIDs()
	if err != nil || !contains(ids, e.cfg.Sim.EgoID) {
		return obs
	}
	speed, err := e.control.Speed(e.cfg.Sim.EgoID)
	if err != nil {
		return obs
	}
	lane, err := e.control.LaneIndex(e.cfg.Sim.EgoID)
	if err != nil {
		return obs
	}
	obs[IdxSpeed] = speed / e.cfg.Sim.MaxSpeed
	obs[IdxLane] = EncodeLane(lane, e.cfg.Sim.LaneCount)
	e.scanNeighbors(&obs, ids, lane)
	obs[IdxCurrentLane] = obs[IdxLane]
	if lane == e.cfg.Reward.PreferredLane {
		obs[IdxTargetLane] = 1.0
	}
	return obs
}

// scanNeighbors fills the six gap fields with the minimum Euclidean
// distance per relative-position bucket. O(n) over live vehicles; entity
// counts at lane-change horizons are small enough that no spatial index is
// warranted.
func (e *Env) scanNeighbors(obs *Observation, ids []string, egoLane int) {
	radius := e.cfg.Sim.SensingRadius
	gaps := [6]float64{radius, radius, radius, radius, radius, radius}

	egoX, egoY, err := e.control.Position(e.cfg.Sim.EgoID)
	if err != nil {
		for i := 0; i < 6; i++ {
			obs[IdxFront+i] = gaps[i] / radius
		}
		return
	}
	for _, id := range ids {
		if id == e.cfg.Sim.EgoID {
			continue
		}
		lane, err := e.control.LaneIndex(id)
		if err != nil {
			continue
		}
		x, y, err := e.control.Position(id)
		if err != nil {
			continue
		}
		dx := x - egoX
		dist := math.Hypot(dx, y-egoY)

		var bucket int
		switch lane {
		case egoLane:
			bucket = 0 // front / back
		case egoLane - 1:
			bucket = 2 // left front / left back
		case egoLane + 1:
			bucket = 4 // right front / right back
		default:
			continue
		}
		if dx <= 0 {
			bucket++
		}
		if dist < gaps[bucket] {
			gaps[bucket] = dist
		}
	}
	for i := 0; i < 6; i++ {
		obs[IdxFront+i] = gaps[i] / radius
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
