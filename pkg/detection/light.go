package detection

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// LightState is the colour of the most credible traffic light in view.
type LightState int

const (
	LightNone LightState = iota
	LightRed
	LightYellow
	LightGreen

	// LightUnknown means no current classification is available, e.g.
	// while perception results are held past their freshness bound.
	// Distinct from LightNone, which asserts no light is in view.
	LightUnknown
)

func (s LightState) String() string {
	switch s {
	case LightRed:
		return "RED"
	case LightYellow:
		return "YELLOW"
	case LightGreen:
		return "GREEN"
	case LightUnknown:
		return "UNKNOWN"
	default:
		return "NONE"
	}
}

// LightClassifier extracts the lamp colour from a traffic light
// bounding box by HSV pixel voting.
type LightClassifier struct {
	minPixels int
}

// NewLightClassifier creates a classifier. minPixels is the vote floor
// below which no colour wins.
func NewLightClassifier(minPixels int) *LightClassifier {
	return &LightClassifier{minPixels: minPixels}
}

// Classify returns the lamp colour inside the box region of the frame.
func (c *LightClassifier) Classify(jpeg []byte, box image.Rectangle) (LightState, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return LightNone, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return LightNone, fmt.Errorf("empty frame")
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	box = box.Intersect(bounds)
	if box.Empty() {
		return LightNone, nil
	}

	roi := img.Region(box)
	defer roi.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(roi, &hsv, gocv.ColorBGRToHSV)

	red := countInRange(hsv, gocv.NewScalar(0, 150, 100, 0), gocv.NewScalar(10, 255, 255, 0)) +
		countInRange(hsv, gocv.NewScalar(170, 150, 100, 0), gocv.NewScalar(180, 255, 255, 0))
	yellow := countInRange(hsv, gocv.NewScalar(20, 150, 150, 0), gocv.NewScalar(30, 255, 255, 0))
	green := countInRange(hsv, gocv.NewScalar(45, 100, 100, 0), gocv.NewScalar(85, 255, 255, 0))

	return stateFromCounts(red, yellow, green, c.minPixels), nil
}

// stateFromCounts picks the winning colour from the three pixel votes.
// Red and yellow must strictly dominate the other colours; green only
// needs to clear the floor, erring toward the cautious states.
func stateFromCounts(red, yellow, green, minPixels int) LightState {
	switch {
	case red > yellow && red > green && red > minPixels:
		return LightRed
	case yellow > green && yellow > red && yellow > minPixels:
		return LightYellow
	case green > minPixels:
		return LightGreen
	default:
		return LightNone
	}
}

// ClassifyAll returns the state of the highest-confidence traffic light
// among the detections, or LightNone when none is present.
func (c *LightClassifier) ClassifyAll(jpeg []byte, dets []Detection) LightState {
	best := -1.0
	state := LightNone
	for _, d := range dets {
		if d.Label != "traffic light" || d.Confidence <= best {
			continue
		}
		s, err := c.Classify(jpeg, d.Box)
		if err != nil {
			continue
		}
		best = d.Confidence
		state = s
	}
	return state
}

func countInRange(hsv gocv.Mat, lower, upper gocv.Scalar) int {
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)
	return gocv.CountNonZero(mask)
}
