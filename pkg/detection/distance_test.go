package detection

import (
	"image"
	"math"
	"testing"

	"github.com/openrover/pilot/internal/config"
)

func testEstimator() *DistanceEstimator {
	return NewDistanceEstimator(config.Default().Detection)
}

func TestEstimateSimilarTriangles(t *testing.T) {
	e := testEstimator()
	// car: 1.8m known width, focal 1000 -> 1.8*1000/100 = 18m
	if got := e.Estimate("car", 100); math.Abs(got-18.0) > 1e-9 {
		t.Errorf("Estimate(car, 100) = %v, want 18", got)
	}
}

func TestEstimateDegenerateWidthIsInfinite(t *testing.T) {
	e := testEstimator()
	for _, w := range []int{0, -1, -50} {
		if got := e.Estimate("car", w); !math.IsInf(got, 1) {
			t.Errorf("Estimate(car, %d) = %v, want +Inf", w, got)
		}
	}
}

func TestEstimateClampsImplausibleDistance(t *testing.T) {
	e := testEstimator()
	// 2.5m truck at 1 pixel would be 2500m: untrusted, report +Inf.
	if got := e.Estimate("truck", 1); !math.IsInf(got, 1) {
		t.Errorf("Estimate(truck, 1) = %v, want +Inf beyond max plausible", got)
	}
}

func TestEstimateUnknownLabelUsesDefault(t *testing.T) {
	cfg := config.Default().Detection
	e := NewDistanceEstimator(cfg)
	got := e.Estimate("wheelbarrow", 100)
	want := cfg.DefaultWidth * cfg.FocalLength / 100
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Estimate(unknown, 100) = %v, want default-width %v", got, want)
	}
}

func TestEstimateNeverNegativeOrNaN(t *testing.T) {
	e := testEstimator()
	for _, w := range []int{-10, 0, 1, 50, 100000} {
		got := e.Estimate("person", w)
		if got < 0 || math.IsNaN(got) {
			t.Errorf("Estimate(person, %d) = %v, must be >= 0 and not NaN", w, got)
		}
	}
}

func TestAnnotateFillsDistances(t *testing.T) {
	e := testEstimator()
	dets := e.Annotate([]Detection{
		{Label: "car", Box: image.Rect(100, 100, 150, 150), Confidence: 0.9},
		{Label: "person", Box: image.Rect(0, 0, 0, 10), Confidence: 0.8},
	})
	if math.Abs(dets[0].Distance-36.0) > 1e-9 { // 1.8*1000/50
		t.Errorf("dets[0].Distance = %v, want 36", dets[0].Distance)
	}
	if !math.IsInf(dets[1].Distance, 1) {
		t.Errorf("dets[1].Distance = %v, want +Inf for zero-width box", dets[1].Distance)
	}
}
