// Package scene fuses lane geometry, detections, distances and
// auxiliary sensor readings into one immutable snapshot per cycle.
package scene

import (
	"math"
	"time"

	"github.com/openrover/pilot/pkg/detection"
	"github.com/openrover/pilot/pkg/lane"
)

// AuxReadings carries optional non-vision sensor inputs for one cycle.
// Zero value means "no auxiliary sensors available".
type AuxReadings struct {
	// RangeMeters is the forward ultrasonic/lidar distance reading.
	RangeMeters float64
	RangeValid  bool
}

// State is the fused snapshot for one control cycle. Built fresh every
// cycle and never mutated after construction; the decision engine reads
// it immutably.
type State struct {
	Lane       *lane.Geometry
	Detections []detection.Detection

	// MinObstacleDistance is the shortest estimated distance across all
	// detections and the auxiliary ranging sensor. +Inf when nothing is
	// in view.
	MinObstacleDistance float64

	TrafficLight detection.LightState
	Environment  Conditions
	Timestamp    time.Time
}

// Aggregate builds a State. Pure: no side effects beyond allocating the
// result, so identical inputs produce identical states.
//
// Invalid detections (non-positive box extent) are dropped here; a
// malformed box is per-detection noise, never a cycle failure. Vision
// and ranging are not blended probabilistically: the fused minimum
// trusts whichever source says danger is closer.
func Aggregate(g *lane.Geometry, dets []detection.Detection, aux AuxReadings,
	light detection.LightState, env Conditions, now time.Time) State {

	kept := make([]detection.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Valid() {
			kept = append(kept, d)
		}
	}

	min := detection.MinDistance(kept)
	if aux.RangeValid && aux.RangeMeters >= 0 && aux.RangeMeters < min {
		min = aux.RangeMeters
	}

	return State{
		Lane:                g,
		Detections:          kept,
		MinObstacleDistance: min,
		TrafficLight:        light,
		Environment:         env,
		Timestamp:           now,
	}
}

// NearestOnSides splits detections at the frame's vertical midline and
// returns the nearest obstacle distance on each side (+Inf for a clear
// side). Used by the avoidance tie-break.
func (s State) NearestOnSides(frameWidth int) (left, right float64) {
	left, right = math.Inf(1), math.Inf(1)
	mid := frameWidth / 2
	for _, d := range s.Detections {
		if d.Center().X < mid {
			if d.Distance < left {
				left = d.Distance
			}
		} else {
			if d.Distance < right {
				right = d.Distance
			}
		}
	}
	return left, right
}
