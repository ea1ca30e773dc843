package lane

import (
	"math"
	"testing"

	"github.com/openrover/pilot/internal/config"
)

// centredRoadSegments builds a symmetric pair of lane edges for a
// 640x480 frame: left from (100,480) to (280,240), right mirrored.
func centredRoadSegments() []Segment {
	return []Segment{
		{X1: 100, Y1: 480, X2: 280, Y2: 240},
		{X1: 540, Y1: 480, X2: 360, Y2: 240},
	}
}

func testLaneConfig() config.Lane {
	cfg := config.Default().Lane
	cfg.HoldCycles = 3
	return cfg
}

func TestPartitionSegments(t *testing.T) {
	tests := []struct {
		name                string
		segs                []Segment
		wantLeft, wantRight int
	}{
		{
			name:      "symmetric road",
			segs:      centredRoadSegments(),
			wantLeft:  1,
			wantRight: 1,
		},
		{
			name: "near-horizontal noise discarded",
			segs: []Segment{
				{X1: 0, Y1: 400, X2: 600, Y2: 410}, // road shadow
				{X1: 100, Y1: 480, X2: 280, Y2: 240},
			},
			wantLeft:  1,
			wantRight: 0,
		},
		{
			name: "wrong-side segments ignored",
			segs: []Segment{
				// negative slope, but on the right half of the frame
				{X1: 500, Y1: 480, X2: 620, Y2: 240},
			},
			wantLeft:  0,
			wantRight: 0,
		},
		{
			name:      "empty input",
			segs:      nil,
			wantLeft:  0,
			wantRight: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, right := partitionSegments(tt.segs, 640, 0.1)
			if len(left) != tt.wantLeft || len(right) != tt.wantRight {
				t.Errorf("partitionSegments() = %d left, %d right; want %d, %d",
					len(left), len(right), tt.wantLeft, tt.wantRight)
			}
		})
	}
}

func TestFitClusterRecoversLine(t *testing.T) {
	// Two collinear segments along x = 100 + 0.5*y
	segs := []Segment{
		{X1: 100, Y1: 0, X2: 150, Y2: 100},
		{X1: 200, Y1: 200, X2: 250, Y2: 300},
	}
	line := fitCluster(segs)
	if line == nil {
		t.Fatal("fitCluster() returned nil for a valid cluster")
	}
	if math.Abs(line.A-100) > 1e-6 || math.Abs(line.B-0.5) > 1e-6 {
		t.Errorf("fitCluster() = x = %.3f + %.3f*y, want x = 100 + 0.5*y", line.A, line.B)
	}
}

func TestFitClusterEmpty(t *testing.T) {
	if line := fitCluster(nil); line != nil {
		t.Errorf("fitCluster(nil) = %+v, want nil", line)
	}
}

func TestEstimateSegmentsCentredRoad(t *testing.T) {
	e := NewEstimator(testLaneConfig())
	g := e.EstimateSegments(centredRoadSegments(), 640, 480)
	if !g.Complete() {
		t.Fatalf("EstimateSegments() geometry not complete: %+v", g)
	}
	if math.Abs(g.LateralOffset) > 0.01 {
		t.Errorf("LateralOffset = %v, want ~0 for centred road", g.LateralOffset)
	}
	if math.Abs(g.Curvature) > 0.01 {
		t.Errorf("Curvature = %v, want ~0 for straight road", g.Curvature)
	}
	if g.HeldCycles != 0 {
		t.Errorf("HeldCycles = %d, want 0 for fresh detection", g.HeldCycles)
	}
}

func TestEstimateSegmentsOffsetRoad(t *testing.T) {
	e := NewEstimator(testLaneConfig())
	// Entire lane shifted right: vehicle sits left of lane centre,
	// offset must be positive (lane centre right of frame centre).
	segs := []Segment{
		{X1: 200, Y1: 480, X2: 380, Y2: 240},
		{X1: 620, Y1: 480, X2: 440, Y2: 240},
	}
	g := e.EstimateSegments(segs, 640, 480)
	if !g.Complete() {
		t.Fatalf("geometry not complete: %+v", g)
	}
	if g.LateralOffset <= 0 {
		t.Errorf("LateralOffset = %v, want positive for right-shifted lane", g.LateralOffset)
	}
}

func TestTemporalHoldBoundsStaleness(t *testing.T) {
	cfg := testLaneConfig()
	e := NewEstimator(cfg)

	// Prime with a full detection.
	if g := e.EstimateSegments(centredRoadSegments(), 640, 480); !g.Complete() {
		t.Fatal("priming detection failed")
	}

	// Miss both sides for HoldCycles cycles: held geometry persists
	// with an increasing age.
	for i := 1; i <= cfg.HoldCycles; i++ {
		g := e.EstimateSegments(nil, 640, 480)
		if !g.Complete() {
			t.Fatalf("cycle %d: geometry dropped before hold limit", i)
		}
		if g.HeldCycles != i {
			t.Errorf("cycle %d: HeldCycles = %d, want %d", i, g.HeldCycles, i)
		}
	}

	// One past the limit: absence must be reported, not a stale line.
	if g := e.EstimateSegments(nil, 640, 480); g != nil {
		t.Errorf("geometry still reported after hold limit: %+v", g)
	}
}

func TestTemporalHoldResetsOnFreshDetection(t *testing.T) {
	e := NewEstimator(testLaneConfig())
	e.EstimateSegments(centredRoadSegments(), 640, 480)
	e.EstimateSegments(nil, 640, 480) // age 1
	g := e.EstimateSegments(centredRoadSegments(), 640, 480)
	if g.HeldCycles != 0 {
		t.Errorf("HeldCycles = %d after fresh detection, want 0", g.HeldCycles)
	}
}

func TestSingleSideGeometryHasNoOffset(t *testing.T) {
	e := NewEstimator(testLaneConfig())
	g := e.EstimateSegments([]Segment{{X1: 100, Y1: 480, X2: 280, Y2: 240}}, 640, 480)
	if g == nil {
		t.Fatal("single-side detection should still report geometry")
	}
	if g.Complete() {
		t.Error("geometry with one side must not report Complete")
	}
	if g.LateralOffset != 0 {
		t.Errorf("LateralOffset = %v without both sides, want 0", g.LateralOffset)
	}
}
