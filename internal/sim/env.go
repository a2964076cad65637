package sim

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Lycorisplus/lanechangemodel/internal/config"
	"github.com/Lycorisplus/lanechangemodel/internal/traci"
)

// process is the slice of the simulator process handle the environment
// needs; real sessions wrap *exec.Cmd.
type process interface {
	Terminate() error
	Kill() error
	Wait() error
}

type sumoProcess struct {
	cmd *exec.Cmd
}

func (p *sumoProcess) Terminate() error { return p.cmd.Process.Signal(syscall.SIGTERM) }
func (p *sumoProcess) Kill() error      { return p.cmd.Process.Kill() }
func (p *sumoProcess) Wait() error      { return p.cmd.Wait() }

// Env is the simulation adapter: it owns exactly one simulator process and
// control connection at a time, rebuilt on every Reset. Not safe for
// concurrent use; parallel agents need one Env per port each.
type Env struct {
	cfg    *config.Config
	logger zerolog.Logger

	launch func(port int) (process, error)
	dial   func(port int) (Control, error)

	control Control
	proc    process
	port    int

	laneChangeCount int
	collisionCount  int
	stepCount       int
}

// NewEnv builds an environment bound to the configured simulator binary
// and port range.
func NewEnv(cfg *config.Config, logger zerolog.Logger) *Env {
	e := &Env{cfg: cfg, logger: logger}
	e.launch = e.launchSimulator
	e.dial = func(port int) (Control, error) {
		return traci.Dial("127.0.0.1:"+strconv.Itoa(port), cfg.Sim.ConnectTimeout)
	}
	return e
}

func (e *Env) launchSimulator(port int) (process, error) {
	cmd := exec.Command(e.cfg.Sim.Binary,
		"-c", e.cfg.Sim.ScenarioPath,
		"--remote-port", strconv.Itoa(port),
		"--no-warnings", "true",
		"--collision.action", "none",
		"--time-to-teleport", "-1",
		"--random",
	)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &sumoProcess{cmd: cmd}, nil
}

// LaneChanges returns the number of lane-change commands issued this
// episode.
func (e *Env) LaneChanges() int { return e.laneChangeCount }

// Collisions returns the number of ego collisions observed this episode.
func (e *Env) Collisions() int { return e.collisionCount }

// Steps returns the number of ticks advanced this episode.
func (e *Env) Steps() int { return e.stepCount }

// Reset tears down any live session, starts a fresh simulator process on
// the first reachable port in the configured range, injects the ego
// vehicle, and returns the initial observation. Exhausting the port range
// fails with ErrConnect; an ego that never appears fails with ErrSpawn.
func (e *Env) Reset(ctx context.Context) (Observation, error) {
	e.Close()

	if err := e.connect(ctx); err != nil {
		return Observation{}, err
	}
	if err := e.injectEgo(); err != nil {
		e.Close()
		return Observation{}, err
	}

	e.laneChangeCount = 0
	e.collisionCount = 0
	e.stepCount = 0
	return e.observe(), nil
}

func (e *Env) connect(ctx context.Context) error {
	for port := e.cfg.Sim.PortLow; port < e.cfg.Sim.PortHigh; port++ {
		e.logger.Info().Int("port", port).Msg("launching simulator")
		proc, err := e.launch(port)
		if err != nil {
			e.logger.Warn().Err(err).Int("port", port).Msg("simulator launch failed")
			continue
		}
		select {
		case <-time.After(e.cfg.Sim.LaunchWait):
		case <-ctx.Done():
			reap(proc)
			return ctx.Err()
		}
		control, err := e.dial(port)
		if err != nil {
			e.logger.Warn().Err(err).Int("port", port).Msg("port unavailable, trying next")
			reap(proc)
			continue
		}
		e.logger.Info().Int("port", port).Msg("simulator connected")
		e.control = control
		e.proc = proc
		e.port = port
		return nil
	}
	return fmt.Errorf("%w (ports %d-%d)", ErrConnect, e.cfg.Sim.PortLow, e.cfg.Sim.PortHigh-1)
}

func (e *Env) injectEgo() error {
	routes, err := e.control.RouteIDs()
	if err != nil {
		return fmt.Errorf("sim: list routes: %w", err)
	}
	if !contains(routes, e.cfg.Sim.RouteID) {
		if err := e.control.AddRoute(e.cfg.Sim.RouteID, e.cfg.Sim.RouteEdges); err != nil {
			return fmt.Errorf("sim: add route: %w", err)
		}
	}
	if err := e.control.AddVehicle(e.cfg.Sim.EgoID, e.cfg.Sim.RouteID, "car", "now", "best", "max"); err != nil {
		return fmt.Errorf("sim: add ego vehicle: %w", err)
	}
	for i := 0; i < e.cfg.Sim.SpawnRetries; i++ {
		if err := e.control.SimulationStep(); err != nil {
			return fmt.Errorf("sim: step while awaiting spawn: %w", err)
		}
		ids, err := e.control.VehicleIDs()
		if err != nil {
			return fmt.Errorf("sim: list vehicles: %w", err)
		}
		if contains(ids, e.cfg.Sim.EgoID) {
			return nil
		}
	}
	return fmt.Errorf("%w (after %d ticks)", ErrSpawn, e.cfg.Sim.SpawnRetries)
}

// Step applies an action (legality-guarded lane change plus one simulation
// tick) and returns the next observation, the shaped reward, and whether
// the episode is over. Simulator communication faults end the episode
// instead of propagating.
func (e *Env) Step(action Action) (Observation, float64, bool) {
	reward, err := e.act(action)
	done := false
	if err != nil {
		e.logger.Warn().Err(err).Msg("simulator fault, ending episode")
		done = true
	}

	obs := e.observe()

	if !done {
		simTime, err := e.control.SimTime()
		switch {
		case err != nil:
			done = true
		case simTime > e.cfg.Sim.TimeLimit:
			done = true
		case e.stepCount >= e.cfg.Sim.MaxSteps:
			done = true
		}
	}
	if !done {
		ids, err := e.control.VehicleIDs()
		if err != nil || !contains(ids, e.cfg.Sim.EgoID) {
			done = true
		}
	}
	return obs, reward, done
}

func (e *Env) act(action Action) (float64, error) {
	lane, err := e.control.LaneIndex(e.cfg.Sim.EgoID)
	if err != nil {
		return 0, err
	}
	switch {
	case action == ActionLeft && lane > 0:
		if err := e.control.ChangeLane(e.cfg.Sim.EgoID, lane-1, e.cfg.Sim.LaneChangeDuration); err != nil {
			return 0, err
		}
		e.laneChangeCount++
	case action == ActionRight && lane < e.cfg.Sim.LaneCount-1:
		if err := e.control.ChangeLane(e.cfg.Sim.EgoID, lane+1, e.cfg.Sim.LaneChangeDuration); err != nil {
			return 0, err
		}
		e.laneChangeCount++
	}
	if err := e.control.SimulationStep(); err != nil {
		return 0, err
	}
	reward, err := e.computeReward(action)
	if err != nil {
		return 0, err
	}
	e.stepCount++
	return reward, nil
}

// Close tears down the control connection and the simulator process:
// graceful close, SIGTERM, then a hard kill if the process lingers.
// Safe to call repeatedly and with no live session.
func (e *Env) Close() {
	if e.control != nil {
		_ = e.control.Close()
		e.control = nil
	}
	if e.proc != nil {
		reap(e.proc)
		e.proc = nil
	}
}

func reap(p process) {
	_ = p.Terminate()
	done := make(chan struct{})
	go func() {
		_ = p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = p.Kill()
		<-done
	}
}
