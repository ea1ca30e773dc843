// Package config holds the immutable configuration snapshot for pilot.
//
// Configuration is loaded once at startup and handed to each component's
// constructor by value. Nothing reloads mid-run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Camera configures the frame source.
type Camera struct {
	DeviceID int `yaml:"device_id"`
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	FPS      int `yaml:"fps"`
}

// Lane configures the lane estimator.
type Lane struct {
	CannyLow      float32 `yaml:"canny_low"`
	CannyHigh     float32 `yaml:"canny_high"`
	HoughThresh   int     `yaml:"hough_threshold"`
	MinLineLength float32 `yaml:"min_line_length"`
	MaxLineGap    float32 `yaml:"max_line_gap"`
	MinSlope      float64 `yaml:"min_slope"`   // discard near-horizontal segments below this |slope|
	HoldCycles    int     `yaml:"hold_cycles"` // reuse last valid line for at most this many cycles
}

// Detection configures the object detector and distance estimation.
type Detection struct {
	ModelPath        string             `yaml:"model_path"`
	ConfidenceThresh float32            `yaml:"confidence_threshold"`
	NMSThresh        float32            `yaml:"nms_threshold"`
	InputWidth       int                `yaml:"input_width"`
	InputHeight      int                `yaml:"input_height"`
	SkipInterval     int                `yaml:"skip_interval"` // cycles between full model passes
	FocalLength      float64            `yaml:"focal_length"`
	DefaultWidth     float64            `yaml:"default_width"`    // meters, for unknown labels
	MaxDistance      float64            `yaml:"max_distance"`     // clamp; beyond this the estimate is untrusted
	KnownWidths      map[string]float64 `yaml:"known_widths"`     // real-world object widths in meters
	SuppressIoU      float64            `yaml:"suppress_iou"`     // pre-aggregation NMS threshold
	MinLightPixels   int                `yaml:"min_light_pixels"` // traffic light colour vote floor
}

// Decision configures the driving state machine.
type Decision struct {
	HaltThreshold  float64 `yaml:"halt_threshold"`  // meters
	AvoidThreshold float64 `yaml:"avoid_threshold"` // meters
	CruiseSpeed    int     `yaml:"cruise_speed"`
	SlowSpeed      int     `yaml:"slow_speed"`
	AvoidSpeed     int     `yaml:"avoid_speed"`
	SteerDeadBand  float64 `yaml:"steer_dead_band"` // |lateral offset| below this drives straight
	LaneHoldLimit  int     `yaml:"lane_hold_limit"` // consecutive laneless cycles before Slow
	AccelStep      int     `yaml:"accel_step"`      // speed units gained per cycle
	BrakeStep      int     `yaml:"brake_step"`      // speed units shed per cycle
}

// Safety configures the accident monitor.
type Safety struct {
	ImpactThreshold   float64 `yaml:"impact_threshold"`   // m/s^2 total acceleration
	RolloverThreshold float64 `yaml:"rollover_threshold"` // rad/s total angular rate
	AccidentAccel     float64 `yaml:"accident_accel"`     // sudden deceleration floor
	AccidentSpeed     float64 `yaml:"accident_speed"`     // near-zero speed ceiling
}

// Loop configures the control cycle.
type Loop struct {
	CycleBudget time.Duration `yaml:"cycle_budget"` // wall-clock per cycle, derives the actuation rate
	HoldCycles  int           `yaml:"hold_cycles"`  // cycles a stale perception result may be reused before it is dropped
}

// Telemetry configures the dashboard server.
type Telemetry struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// Config is the top-level read-only snapshot.
type Config struct {
	LogLevel  string    `yaml:"log_level"`
	Camera    Camera    `yaml:"camera"`
	Lane      Lane      `yaml:"lane"`
	Detection Detection `yaml:"detection"`
	Decision  Decision  `yaml:"decision"`
	Safety    Safety    `yaml:"safety"`
	Loop      Loop      `yaml:"loop"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Default returns the recommended configuration.
// Distance and safety numbers match the calibration of the reference vehicle.
func Default() Config {
	return Config{
		LogLevel: "info",
		Camera: Camera{
			DeviceID: 0,
			Width:    640,
			Height:   480,
			FPS:      30,
		},
		Lane: Lane{
			CannyLow:      50,
			CannyHigh:     150,
			HoughThresh:   20,
			MinLineLength: 25,
			MaxLineGap:    30,
			MinSlope:      0.1,
			HoldCycles:    5,
		},
		Detection: Detection{
			ModelPath:        "models/yolov8n.onnx",
			ConfidenceThresh: 0.4,
			NMSThresh:        0.45,
			InputWidth:       640,
			InputHeight:      640,
			SkipInterval:     5,
			FocalLength:      1000,
			DefaultWidth:     1.5,
			MaxDistance:      50,
			SuppressIoU:      0.5,
			MinLightPixels:   20,
			KnownWidths: map[string]float64{
				"person":        0.5,
				"bicycle":       0.75,
				"car":           1.8,
				"motorcycle":    0.8,
				"bus":           2.5,
				"truck":         2.5,
				"traffic light": 0.3,
				"stop sign":     0.6,
				"cat":           0.3,
				"dog":           0.4,
				"bird":          0.2,
			},
		},
		Decision: Decision{
			HaltThreshold:  2.0,
			AvoidThreshold: 4.0,
			CruiseSpeed:    50,
			SlowSpeed:      20,
			AvoidSpeed:     15,
			SteerDeadBand:  0.1,
			LaneHoldLimit:  5,
			AccelStep:      5,
			BrakeStep:      10,
		},
		Safety: Safety{
			ImpactThreshold:   15.0,
			RolloverThreshold: 6.0,
			AccidentAccel:     8.0,
			AccidentSpeed:     5.0,
		},
		Loop: Loop{
			CycleBudget: 100 * time.Millisecond,
			HoldCycles:  5,
		},
		Telemetry: Telemetry{
			Enabled: true,
			Port:    "8090",
		},
	}
}

// Load reads a YAML file over the defaults, then applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays the handful of settings that are convenient to flip
// without editing a file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PILOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PILOT_MODEL_PATH"); v != "" {
		cfg.Detection.ModelPath = v
	}
	if v := os.Getenv("PILOT_CAMERA_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.Camera.DeviceID = id
		}
	}
	if v := os.Getenv("PILOT_TELEMETRY_PORT"); v != "" {
		cfg.Telemetry.Port = v
	}
}

// Validate rejects configurations the control loop cannot run with.
func (c Config) Validate() error {
	if c.Decision.HaltThreshold <= 0 {
		return fmt.Errorf("config: halt_threshold must be positive, got %v", c.Decision.HaltThreshold)
	}
	if c.Decision.AvoidThreshold <= c.Decision.HaltThreshold {
		return fmt.Errorf("config: avoid_threshold (%v) must exceed halt_threshold (%v)",
			c.Decision.AvoidThreshold, c.Decision.HaltThreshold)
	}
	if c.Decision.CruiseSpeed < 0 || c.Decision.CruiseSpeed > 100 {
		return fmt.Errorf("config: cruise_speed must be in [0,100], got %d", c.Decision.CruiseSpeed)
	}
	if c.Detection.SkipInterval < 1 {
		return fmt.Errorf("config: skip_interval must be at least 1, got %d", c.Detection.SkipInterval)
	}
	if c.Detection.ConfidenceThresh <= 0 || c.Detection.ConfidenceThresh >= 1 {
		return fmt.Errorf("config: confidence_threshold must be in (0,1), got %v", c.Detection.ConfidenceThresh)
	}
	if c.Detection.FocalLength <= 0 {
		return fmt.Errorf("config: focal_length must be positive, got %v", c.Detection.FocalLength)
	}
	if c.Lane.HoldCycles < 0 {
		return fmt.Errorf("config: hold_cycles cannot be negative, got %d", c.Lane.HoldCycles)
	}
	if c.Loop.CycleBudget <= 0 {
		return fmt.Errorf("config: cycle_budget must be positive, got %v", c.Loop.CycleBudget)
	}
	if c.Loop.HoldCycles < 0 {
		return fmt.Errorf("config: loop hold_cycles cannot be negative, got %d", c.Loop.HoldCycles)
	}
	return nil
}
