// Package lane extracts left/right road boundary lines from a frame.
//
// The estimator restricts analysis to a trapezoidal region of interest,
// converts it to an edge map, extracts straight segments and fits one
// representative line per side. Absence of a side is reported as nil,
// never as a zero line: callers must treat absence as unknown.
package lane

import "math"

// Line is a fitted boundary line in pixel space, parameterised as
// x = A + B*y so near-vertical lane lines stay well conditioned.
type Line struct {
	A float64 // x at y=0
	B float64 // dx/dy
}

// XAt returns the horizontal pixel position of the line at row y.
func (l Line) XAt(y float64) float64 {
	return l.A + l.B*y
}

// Geometry is the lane estimate for one frame.
type Geometry struct {
	Left  *Line
	Right *Line

	// LateralOffset is the signed distance of the vehicle centre from
	// the lane centre at the bottom of the frame, normalised to [-1,1].
	// Negative means the lane centre is left of the vehicle.
	LateralOffset float64

	// Curvature is the normalised convergence skew of the two fitted
	// lines. Zero for a straight, centred road.
	Curvature float64

	// HeldCycles counts how many cycles the older of the two sides has
	// been reused from a previous frame. Zero means both sides are fresh.
	HeldCycles int
}

// Complete reports whether both boundary lines were found.
func (g *Geometry) Complete() bool {
	return g != nil && g.Left != nil && g.Right != nil
}

// Segment is one straight edge segment from the Hough transform,
// in pixel coordinates (y grows downward).
type Segment struct {
	X1, Y1, X2, Y2 float64
}

// Slope returns dy/dx, or ±Inf for vertical segments.
func (s Segment) Slope() float64 {
	if s.X2 == s.X1 {
		return math.Inf(1)
	}
	return (s.Y2 - s.Y1) / (s.X2 - s.X1)
}

// Length returns the segment length in pixels.
func (s Segment) Length() float64 {
	return math.Hypot(s.X2-s.X1, s.Y2-s.Y1)
}

// MidX returns the horizontal midpoint.
func (s Segment) MidX() float64 {
	return (s.X1 + s.X2) / 2
}
