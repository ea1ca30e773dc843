// Package detection runs the pretrained object detector over frames and
// estimates obstacle distances from bounding box sizes.
package detection

import (
	"errors"
	"image"
	"sort"
)

// ErrModelUnavailable signals that the detection model failed to load or
// run. The pipeline degrades to an empty detection list and keeps
// looping; the signal is raised once, not per cycle.
var ErrModelUnavailable = errors.New("detection model unavailable")

// Detection is one labeled, scored bounding box found in a frame.
type Detection struct {
	Label      string
	Confidence float64
	Box        image.Rectangle

	// Distance is the estimated longitudinal distance in meters.
	// Always >= 0 or +Inf, never negative or NaN.
	Distance float64
}

// Center returns the box centre in pixels.
func (d Detection) Center() image.Point {
	return image.Pt((d.Box.Min.X+d.Box.Max.X)/2, (d.Box.Min.Y+d.Box.Max.Y)/2)
}

// Valid reports whether the bounding box has positive extent.
func (d Detection) Valid() bool {
	return d.Box.Dx() > 0 && d.Box.Dy() > 0
}

// Detector finds objects in a JPEG frame.
type Detector interface {
	Detect(jpeg []byte) ([]Detection, error)
	Close() error
}

// IoU computes intersection over union of two boxes.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

// Suppress runs a greedy non-maximum suppression pass over the list,
// keeping the higher-confidence box whenever two boxes overlap beyond
// the IoU threshold. Boxes of different labels are merged too: the
// survivor keeps its own label, since one physical object must not be
// counted twice downstream. Invalid boxes are dropped. The input is not
// modified.
func Suppress(dets []Detection, iouThresh float64) []Detection {
	valid := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Valid() {
			valid = append(valid, d)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Confidence > valid[j].Confidence
	})

	kept := make([]Detection, 0, len(valid))
	for _, cand := range valid {
		overlapped := false
		for _, k := range kept {
			if IoU(cand.Box, k.Box) > iouThresh {
				overlapped = true
				break
			}
		}
		if !overlapped {
			kept = append(kept, cand)
		}
	}
	return kept
}

// MinDistance returns the smallest estimated distance in the list, or
// +Inf when the list is empty.
func MinDistance(dets []Detection) float64 {
	min := inf
	for _, d := range dets {
		if d.Distance < min {
			min = d.Distance
		}
	}
	return min
}
