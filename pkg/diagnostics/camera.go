// Package diagnostics inspects camera frames for hardware trouble:
// dark or covered lenses, defocus and frozen capture. It observes the
// stream and reports; it never alters the perception pipeline.
package diagnostics

import (
	"bytes"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/openrover/pilot/internal/log"
	"github.com/openrover/pilot/pkg/vision"
)

const (
	// darkBrightness is the normalised mean below which the image is
	// considered dark or covered.
	darkBrightness = 0.15

	// blurVariance is the Laplacian variance under which the image is
	// considered out of focus.
	blurVariance = 100.0

	// frozenStreak is how many identical consecutive frames mean the
	// capture pipeline has stalled.
	frozenStreak = 5

	fpsWindow = 30
)

// Report is one frame's health assessment.
type Report struct {
	Brightness float64 // normalised [0,1]
	Sharpness  float64 // Laplacian variance
	FPS        float64

	Dark    bool
	Blurred bool
	Frozen  bool
}

// Healthy reports whether no fault flag is raised.
func (r Report) Healthy() bool {
	return !r.Dark && !r.Blurred && !r.Frozen
}

// CameraMonitor tracks frame-to-frame camera health.
// Not safe for concurrent use.
type CameraMonitor struct {
	lastJPEG []byte
	streak   int
	times    []time.Time
	warned   bool
}

func NewCameraMonitor() *CameraMonitor {
	return &CameraMonitor{}
}

// Inspect assesses one frame and updates frame-rate and frozen-stream
// tracking.
func (m *CameraMonitor) Inspect(frame vision.Frame) (Report, error) {
	if frame.Empty() {
		return Report{}, fmt.Errorf("empty frame")
	}

	m.trackFreeze(frame.JPEG)
	fps := m.trackFPS(frame.Timestamp)

	brightness, sharpness, err := measure(frame.JPEG)
	if err != nil {
		return Report{}, err
	}

	r := assess(brightness, sharpness, m.streak)
	r.FPS = fps

	if !r.Healthy() && !m.warned {
		log.Warn("camera health degraded",
			"dark", r.Dark, "blurred", r.Blurred, "frozen", r.Frozen,
			"brightness", r.Brightness, "sharpness", r.Sharpness)
		m.warned = true
	} else if r.Healthy() {
		m.warned = false
	}
	return r, nil
}

// assess derives the fault flags. Pure, thresholds fixed.
func assess(brightness, sharpness float64, streak int) Report {
	return Report{
		Brightness: brightness,
		Sharpness:  sharpness,
		Dark:       brightness < darkBrightness,
		Blurred:    sharpness < blurVariance,
		Frozen:     streak >= frozenStreak,
	}
}

// trackFreeze counts consecutive byte-identical frames. A live sensor
// always carries noise; exact repeats mean a stalled pipeline.
func (m *CameraMonitor) trackFreeze(jpeg []byte) {
	if m.lastJPEG != nil && bytes.Equal(m.lastJPEG, jpeg) {
		m.streak++
	} else {
		m.streak = 0
	}
	m.lastJPEG = append(m.lastJPEG[:0], jpeg...)
}

// trackFPS keeps a sliding window of capture timestamps.
func (m *CameraMonitor) trackFPS(ts time.Time) float64 {
	if ts.IsZero() {
		return 0
	}
	m.times = append(m.times, ts)
	if len(m.times) > fpsWindow {
		m.times = m.times[1:]
	}
	if len(m.times) < 2 {
		return 0
	}
	span := m.times[len(m.times)-1].Sub(m.times[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(m.times)-1) / span
}

// measure computes mean brightness and Laplacian variance on the
// grayscale image.
func measure(jpeg []byte) (brightness, sharpness float64, err error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadGrayScale)
	if err != nil {
		return 0, 0, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return 0, 0, fmt.Errorf("empty image")
	}

	mean := img.Mean()
	brightness = mean.Val1 / 255.0

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(img, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	lapMean := gocv.NewMat()
	lapStd := gocv.NewMat()
	defer lapMean.Close()
	defer lapStd.Close()
	gocv.MeanStdDev(lap, &lapMean, &lapStd)
	std := lapStd.GetDoubleAt(0, 0)
	sharpness = std * std

	return brightness, sharpness, nil
}
