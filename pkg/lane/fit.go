package lane

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// partitionSegments splits edge segments into left/right clusters by
// slope sign and horizontal position. In image coordinates the left
// boundary runs bottom-left toward the horizon (negative dy/dx) and the
// right boundary mirrors it. Near-horizontal segments below minSlope
// are noise, not lane boundaries, and are discarded.
func partitionSegments(segs []Segment, frameWidth float64, minSlope float64) (left, right []Segment) {
	centre := frameWidth / 2
	for _, s := range segs {
		slope := s.Slope()
		if math.Abs(slope) < minSlope {
			continue
		}
		switch {
		case slope < 0 && s.MidX() < centre:
			left = append(left, s)
		case slope > 0 && s.MidX() > centre:
			right = append(right, s)
		}
	}
	return left, right
}

// fitCluster fits one representative line (x = A + B*y) through a
// cluster of segments by weighted least squares. Each endpoint is
// weighted by its segment's length so long confident edges dominate
// over speckle. Returns nil for an empty cluster.
func fitCluster(segs []Segment) *Line {
	if len(segs) == 0 {
		return nil
	}

	ys := make([]float64, 0, len(segs)*2)
	xs := make([]float64, 0, len(segs)*2)
	ws := make([]float64, 0, len(segs)*2)
	for _, s := range segs {
		w := s.Length()
		ys = append(ys, s.Y1, s.Y2)
		xs = append(xs, s.X1, s.X2)
		ws = append(ws, w, w)
	}

	alpha, beta := stat.LinearRegression(ys, xs, ws, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return nil
	}
	return &Line{A: alpha, B: beta}
}

// lateralOffset computes the normalised deviation of the frame centre
// from the lane centre at the bottom row. Result is clamped to [-1,1].
func lateralOffset(left, right Line, frameWidth, frameHeight float64) float64 {
	bottom := frameHeight
	laneCentre := (left.XAt(bottom) + right.XAt(bottom)) / 2
	offset := (laneCentre - frameWidth/2) / (frameWidth / 2)
	return clamp(offset, -1, 1)
}

// curvature estimates road curvature from the convergence skew of the
// two fitted lines. For a straight centred road the dx/dy slopes cancel.
func curvature(left, right Line) float64 {
	return clamp(left.B+right.B, -1, 1)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
