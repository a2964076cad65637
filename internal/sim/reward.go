package sim

// computeReward evaluates the shaped reward for the tick that just ran.
// Term layout: collision short-circuit, speed keeping, preferred-lane
// proximity, a small bonus for committing to a lane change, and a penalty
// for tailgating below the safe forward gap.
func (e *Env) computeReward(action Action) (float64, error) {
	rw := e.cfg.Reward

	collisions, err := e.control.Collisions()
	if err != nil {
		return 0, err
	}
	for _, col := range collisions {
		if col.Collider == e.cfg.Sim.EgoID || col.Victim == e.cfg.Sim.EgoID {
			e.collisionCount++
			return rw.CollisionPenalty, nil
		}
	}

	speed, err := e.control.Speed(e.cfg.Sim.EgoID)
	if err != nil {
		return 0, err
	}
	lane, err := e.control.LaneIndex(e.cfg.Sim.EgoID)
	if err != nil {
		return 0, err
	}

	speedReward := (speed / e.cfg.Sim.MaxSpeed) * rw.SpeedWeight
	laneDist := lane - rw.PreferredLane
	if laneDist < 0 {
		laneDist = -laneDist
	}
	laneReward := float64(e.cfg.Sim.LaneCount-1-laneDist) * rw.LaneWeight

	var changeBonus float64
	if action != ActionStay {
		changeBonus = rw.ChangeBonus
	}

	// The forward gap comes out of a fresh neighbor scan, denormalized
	// back to meters.
	frontGap := e.observe()[IdxFront] * e.cfg.Sim.SensingRadius
	var safePenalty float64
	if frontGap < rw.SafeDistance {
		safePenalty = rw.SafeDistancePenalty
	}

	return speedReward + laneReward + changeBonus + safePenalty, nil
}
