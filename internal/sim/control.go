// Package sim presents a reset/step environment over an external traffic
// simulator. It owns the simulator process and control connection, builds
// the fixed-size observation vector from raw entity telemetry, and shapes
// the per-step reward.
package sim

import (
	"errors"

	"github.com/Lycorisplus/lanechangemodel/internal/traci"
)

// Control is the narrow simulator boundary the environment drives. The
// production implementation is *traci.Client; tests substitute a fake.
type Control interface {
	SimulationStep() error
	VehicleIDs() ([]string, error)
	Speed(vehicleID string) (float64, error)
	Position(vehicleID string) (float64, float64, error)
	LaneIndex(vehicleID string) (int, error)
	RouteIDs() ([]string, error)
	AddRoute(routeID string, edges []string) error
	AddVehicle(vehicleID, routeID, typeID, depart, departLane, departSpeed string) error
	ChangeLane(vehicleID string, laneIndex int, duration float64) error
	SimTime() (float64, error)
	Collisions() ([]traci.Collision, error)
	Close() error
}

// ErrConnect reports that no port in the configured range produced a
// working simulator connection. Fatal for the run.
var ErrConnect = errors.New("sim: unable to connect to simulator on any port in range")

// ErrSpawn reports that the ego vehicle never appeared in the network
// within the bounded retry budget. Fatal for the reset call.
var ErrSpawn = errors.New("sim: ego vehicle failed to spawn")

// Action is one of the three discrete lane decisions.
type Action int

const (
	ActionStay Action = iota
	ActionLeft
	ActionRight
)

func (a Action) String() string {
	switch a {
	case ActionStay:
		return "stay"
	case ActionLeft:
		return "left"
	case ActionRight:
		return "right"
	}
	return "invalid"
}

// NumActions is the size of the discrete action space.
const NumActions = 3
