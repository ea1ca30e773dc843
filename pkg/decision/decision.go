// Package decision maps an aggregated scene to one driving command per
// control cycle through a rule-based state machine.
package decision

import (
	"math"

	"github.com/openrover/pilot/internal/config"
	"github.com/openrover/pilot/internal/log"
	"github.com/openrover/pilot/pkg/detection"
	"github.com/openrover/pilot/pkg/safety"
	"github.com/openrover/pilot/pkg/scene"
)

// Action is the discrete command issued to actuation hardware.
type Action int

const (
	Forward Action = iota
	Left
	Right
	Stop
	Reverse
)

func (a Action) String() string {
	switch a {
	case Forward:
		return "forward"
	case Left:
		return "left"
	case Right:
		return "right"
	case Stop:
		return "stop"
	case Reverse:
		return "reverse"
	}
	return "unknown"
}

// Command is the sole per-cycle output contract. Speed is in [0,100].
type Command struct {
	Action Action
	Speed  int
}

// State names the machine's driving modes.
type State int

const (
	Cruise State = iota
	Slow
	AvoidLeft
	AvoidRight
	Halt
	EmergencyStop
)

func (s State) String() string {
	switch s {
	case Cruise:
		return "cruise"
	case Slow:
		return "slow"
	case AvoidLeft:
		return "avoid_left"
	case AvoidRight:
		return "avoid_right"
	case Halt:
		return "halt"
	case EmergencyStop:
		return "emergency_stop"
	}
	return "unknown"
}

// Engine is the driving state machine. Step is deterministic given the
// engine's internal state and the scene, so identical input sequences
// reproduce identical command sequences.
type Engine struct {
	cfg        config.Decision
	frameWidth int

	state    State
	speed    int // current ramped speed
	laneless int // consecutive cycles without complete lane geometry
}

func NewEngine(cfg config.Decision, frameWidth int) *Engine {
	return &Engine{cfg: cfg, frameWidth: frameWidth, state: Cruise}
}

func (e *Engine) State() State { return e.state }

// ClearEmergency releases a latched emergency stop. It is the only way
// out of that state; the vehicle never resumes on its own.
func (e *Engine) ClearEmergency() {
	if e.state == EmergencyStop {
		e.state = Cruise
		log.Info("emergency cleared, resuming")
	}
}

// Step consumes one scene snapshot plus any safety event raised this
// cycle and returns the command for the cycle. A safety event wins over
// everything and latches the machine in EmergencyStop.
func (e *Engine) Step(s scene.State, ev *safety.Event) Command {
	if ev != nil {
		e.state = EmergencyStop
	}
	if e.state == EmergencyStop {
		e.speed = 0
		return Command{Action: Stop, Speed: 0}
	}

	if s.Lane != nil && s.Lane.Complete() {
		e.laneless = 0
	} else {
		e.laneless++
	}

	action, target := e.transition(s)
	e.speed = ramp(e.speed, target, e.cfg.AccelStep, e.cfg.BrakeStep)
	return Command{Action: action, Speed: e.speed}
}

// transition picks the next state and returns the action and target
// speed for it. Threshold order matters: halt before avoid before
// cruise, matching the obstacle ladder.
func (e *Engine) transition(s scene.State) (Action, int) {
	d := s.MinObstacleDistance

	switch {
	case d < e.cfg.HaltThreshold || s.TrafficLight == detection.LightRed:
		e.state = Halt
		return Stop, 0

	case s.TrafficLight == detection.LightYellow:
		// Close to the junction: stop. Clear of it: roll through slowly.
		if d < e.cfg.AvoidThreshold {
			e.state = Halt
			return Stop, 0
		}
		e.state = Slow
		return Forward, e.cfg.SlowSpeed

	case d < e.cfg.AvoidThreshold:
		return e.avoid(s)

	case e.laneless > e.cfg.LaneHoldLimit:
		e.state = Slow
		return Forward, e.cfg.SlowSpeed

	default:
		return e.cruise(s)
	}
}

// avoid steers around an obstacle in the avoidance band, swerving
// toward whichever half of the frame is clearer. Both halves blocked
// at halt range means there is nowhere to go.
func (e *Engine) avoid(s scene.State) (Action, int) {
	left, right := s.NearestOnSides(e.frameWidth)

	if left < e.cfg.HaltThreshold && right < e.cfg.HaltThreshold {
		e.state = Halt
		return Stop, 0
	}
	// Equal clearance swerves left, deterministically.
	if left >= right {
		e.state = AvoidLeft
		return Left, e.cfg.AvoidSpeed
	}
	e.state = AvoidRight
	return Right, e.cfg.AvoidSpeed
}

// cruise follows the lane. Lateral offset outside the dead-band steers
// a correction; speed backs off with offset, curvature and conditions.
func (e *Engine) cruise(s scene.State) (Action, int) {
	e.state = Cruise

	var offset, curvature float64
	if s.Lane != nil && s.Lane.Complete() {
		offset = s.Lane.LateralOffset
		curvature = s.Lane.Curvature
	}

	action := Forward
	if offset > e.cfg.SteerDeadBand {
		action = Right
	} else if offset < -e.cfg.SteerDeadBand {
		action = Left
	}

	scale := (1 - 0.5*math.Abs(offset)) * (1 - 0.5*math.Abs(curvature))
	scale *= s.Environment.SpeedMultiplier()
	target := int(math.Round(float64(e.cfg.CruiseSpeed) * scale))
	return action, clampSpeed(target)
}

// ramp moves the current speed toward target, bounded by the per-cycle
// acceleration and braking steps.
func ramp(current, target, accel, brake int) int {
	switch {
	case current < target:
		current += accel
		if current > target {
			current = target
		}
	case current > target:
		current -= brake
		if current < target {
			current = target
		}
	}
	return clampSpeed(current)
}

func clampSpeed(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
