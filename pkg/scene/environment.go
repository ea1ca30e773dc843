package scene

import (
	"fmt"

	"gocv.io/x/gocv"
)

// TimeOfDay is the coarse lighting classification of the current frame.
type TimeOfDay int

const (
	Day TimeOfDay = iota
	Dusk
	Night
)

func (t TimeOfDay) String() string {
	switch t {
	case Night:
		return "NIGHT"
	case Dusk:
		return "DUSK"
	default:
		return "DAY"
	}
}

// Weather is a coarse visibility guess from frame statistics.
type Weather int

const (
	Clear Weather = iota
	Overcast
	Foggy
)

func (w Weather) String() string {
	switch w {
	case Overcast:
		return "OVERCAST"
	case Foggy:
		return "FOGGY"
	default:
		return "CLEAR"
	}
}

// Conditions summarise the driving environment of one frame.
type Conditions struct {
	TimeOfDay  TimeOfDay
	Weather    Weather
	Brightness float64 // mean luma, 0-1
}

// SpeedMultiplier scales cruise speed down under poor visibility.
func (c Conditions) SpeedMultiplier() float64 {
	m := 1.0
	switch c.TimeOfDay {
	case Night:
		m *= 0.7
	case Dusk:
		m *= 0.8
	}
	switch c.Weather {
	case Foggy:
		m *= 0.5
	case Overcast:
		m *= 0.9
	}
	return m
}

// EnvironmentDetector estimates lighting and visibility from frame
// statistics. Cheap enough to run every cycle.
type EnvironmentDetector struct{}

// Detect classifies the frame's brightness and contrast.
func (EnvironmentDetector) Detect(jpeg []byte) (Conditions, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadGrayScale)
	if err != nil {
		return Conditions{}, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return Conditions{}, fmt.Errorf("empty frame")
	}

	mean, stdDev := gocv.NewMat(), gocv.NewMat()
	defer mean.Close()
	defer stdDev.Close()
	gocv.MeanStdDev(img, &mean, &stdDev)

	brightness := mean.GetDoubleAt(0, 0) / 255.0
	contrast := stdDev.GetDoubleAt(0, 0) / 255.0

	return ClassifyConditions(brightness, contrast), nil
}

// ClassifyConditions maps frame statistics to Conditions.
// Exposed for tests; thresholds follow the calibration of the
// reference vehicle's camera.
func ClassifyConditions(brightness, contrast float64) Conditions {
	c := Conditions{Brightness: brightness}

	switch {
	case brightness < 0.3:
		c.TimeOfDay = Night
	case brightness < 0.5:
		c.TimeOfDay = Dusk
	default:
		c.TimeOfDay = Day
	}

	switch {
	case contrast < 0.05:
		c.Weather = Foggy
	case brightness < 0.4:
		c.Weather = Overcast
	default:
		c.Weather = Clear
	}

	return c
}
