package lane

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/openrover/pilot/internal/config"
	"github.com/openrover/pilot/pkg/vision"
)

// hold is the bounded temporal-hold slot for one lane side. Holding the
// last valid line for a few cycles bounds flicker from momentary misses
// without permanently trusting stale data.
type hold struct {
	line *Line
	age  int
}

// take returns the line to report this cycle. fresh wins and resets the
// age; otherwise the held line is reused while it is young enough.
func (h *hold) take(fresh *Line, limit int) (*Line, int) {
	if fresh != nil {
		h.line = fresh
		h.age = 0
		return fresh, 0
	}
	if h.line == nil {
		return nil, 0
	}
	h.age++
	if h.age > limit {
		h.line = nil
		return nil, 0
	}
	return h.line, h.age
}

// Estimator extracts lane geometry from frames.
// Not safe for concurrent use; the control loop owns one instance.
type Estimator struct {
	cfg   config.Lane
	left  hold
	right hold
}

// NewEstimator creates a lane estimator with the given configuration.
func NewEstimator(cfg config.Lane) *Estimator {
	return &Estimator{cfg: cfg}
}

// Estimate extracts lane geometry from one frame.
// Returns (nil, nil) when no reliable lines are found on either side.
func (e *Estimator) Estimate(frame vision.Frame) (*Geometry, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	segs, w, h, err := e.extractSegments(frame.JPEG)
	if err != nil {
		return nil, err
	}
	return e.EstimateSegments(segs, w, h), nil
}

// EstimateSegments runs the pure half of the pipeline: clustering,
// fitting, temporal hold and derived geometry. Exposed so behaviour is
// testable without image decoding.
func (e *Estimator) EstimateSegments(segs []Segment, frameWidth, frameHeight float64) *Geometry {
	leftSegs, rightSegs := partitionSegments(segs, frameWidth, e.cfg.MinSlope)

	left, leftAge := e.left.take(fitCluster(leftSegs), e.cfg.HoldCycles)
	right, rightAge := e.right.take(fitCluster(rightSegs), e.cfg.HoldCycles)

	if left == nil && right == nil {
		return nil
	}

	g := &Geometry{Left: left, Right: right, HeldCycles: maxInt(leftAge, rightAge)}
	if left != nil && right != nil {
		g.LateralOffset = lateralOffset(*left, *right, frameWidth, frameHeight)
		g.Curvature = curvature(*left, *right)
	}
	return g
}

// extractSegments produces Hough line segments from the frame's edge
// map, restricted to the road trapezoid.
func (e *Estimator) extractSegments(jpeg []byte) ([]Segment, float64, float64, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, 0, 0, fmt.Errorf("empty image")
	}

	w := img.Cols()
	h := img.Rows()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(3, 3), 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, e.cfg.CannyLow, e.cfg.CannyHigh)

	// Trapezoidal ROI: lower half of the frame narrowing toward the
	// horizon, excluding sky and background clutter.
	mask := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
	defer mask.Close()
	roi := gocv.NewPointsVectorFromPoints([][]image.Point{{
		{X: 0, Y: h},
		{X: w / 4, Y: h / 2},
		{X: 3 * w / 4, Y: h / 2},
		{X: w, Y: h},
	}})
	defer roi.Close()
	gocv.FillPoly(&mask, roi, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	masked := gocv.NewMat()
	defer masked.Close()
	gocv.BitwiseAnd(edges, mask, &masked)

	lines := gocv.NewMat()
	defer lines.Close()
	gocv.HoughLinesPWithParams(masked, &lines, 1, float32(math.Pi/180), e.cfg.HoughThresh,
		e.cfg.MinLineLength, e.cfg.MaxLineGap)

	segs := make([]Segment, 0, lines.Rows())
	for i := 0; i < lines.Rows(); i++ {
		v := lines.GetVeciAt(i, 0)
		segs = append(segs, Segment{
			X1: float64(v[0]),
			Y1: float64(v[1]),
			X2: float64(v[2]),
			Y2: float64(v[3]),
		})
	}
	return segs, float64(w), float64(h), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
