package detection

import (
	"math"

	"github.com/openrover/pilot/internal/config"
	"github.com/openrover/pilot/internal/log"
)

var inf = math.Inf(1)

// DistanceEstimator converts a bounding box width and object class into
// an estimated longitudinal distance by similar-triangles projection:
//
//	distance = knownRealWidth * focalLength / boxPixelWidth
//
// A non-positive pixel width means the box is degenerate and the
// estimate is +Inf: "no reliable estimate", never "very far but
// trustworthy". Results beyond the configured maximum plausible
// distance are also reported as +Inf so a degenerate tiny box cannot
// suppress legitimate braking.
type DistanceEstimator struct {
	knownWidths  map[string]float64
	defaultWidth float64
	focalLength  float64
	maxDistance  float64

	warned map[string]bool // labels already logged as unknown
}

// NewDistanceEstimator creates an estimator from configuration.
func NewDistanceEstimator(cfg config.Detection) *DistanceEstimator {
	return &DistanceEstimator{
		knownWidths:  cfg.KnownWidths,
		defaultWidth: cfg.DefaultWidth,
		focalLength:  cfg.FocalLength,
		maxDistance:  cfg.MaxDistance,
		warned:       make(map[string]bool),
	}
}

// Estimate returns the distance in meters for a box of the given pixel
// width and class label.
func (e *DistanceEstimator) Estimate(label string, pixelWidth int) float64 {
	if pixelWidth <= 0 {
		return inf
	}

	known, ok := e.knownWidths[label]
	if !ok {
		known = e.defaultWidth
		if !e.warned[label] {
			e.warned[label] = true
			log.Warn("no known width for label, using default",
				"label", label, "default_m", known)
		}
	}

	d := known * e.focalLength / float64(pixelWidth)
	if d > e.maxDistance {
		return inf
	}
	return d
}

// Annotate fills the Distance field of every detection in place and
// returns the same slice.
func (e *DistanceEstimator) Annotate(dets []Detection) []Detection {
	for i := range dets {
		dets[i].Distance = e.Estimate(dets[i].Label, dets[i].Box.Dx())
	}
	return dets
}
