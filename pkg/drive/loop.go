// Package drive runs the perception-to-action control loop: capture,
// perceive, decide, actuate, once per fixed-budget cycle.
package drive

import (
	"context"
	"time"

	"github.com/openrover/pilot/internal/config"
	"github.com/openrover/pilot/internal/log"
	"github.com/openrover/pilot/pkg/decision"
	"github.com/openrover/pilot/pkg/detection"
	"github.com/openrover/pilot/pkg/lane"
	"github.com/openrover/pilot/pkg/safety"
	"github.com/openrover/pilot/pkg/scene"
	"github.com/openrover/pilot/pkg/vision"
)

// SensorSource supplies the non-vision sensor snapshot for one cycle.
// Implementations read the IMU and ranging hardware. A read error
// degrades the cycle to vision-only; it never stops the loop.
type SensorSource interface {
	Read() (safety.Readings, scene.AuxReadings, error)
}

// Publisher receives per-cycle snapshots for observers such as the
// telemetry dashboard. Publish must not block the loop.
type Publisher interface {
	Publish(s scene.State, cmd decision.Command)
}

// detResult pairs the detections with the traffic light classified on
// the same frame, so the two never mix across cycles.
type detResult struct {
	dets  []detection.Detection
	light detection.LightState
}

// Loop owns one control cycle end to end. Every cycle emits exactly one
// command to the sink, degraded if necessary, and the loop never blocks
// past its cycle budget on a lagging perception stage.
//
// Each perception stage runs on one long-lived worker goroutine with at
// most one frame in flight, so the stage state (lane hold history,
// distance estimator) is only ever touched from a single goroutine. A
// stage that misses the deadline keeps computing; its result is adopted
// next cycle instead of being thrown away.
type Loop struct {
	cfg      config.Config
	source   vision.FrameSource
	lanes    *lane.Estimator
	detector detection.Detector
	distance *detection.DistanceEstimator
	lights   *detection.LightClassifier
	env      scene.EnvironmentDetector
	engine   *decision.Engine
	monitor  *safety.Monitor
	sink     ActuationSink

	sensors   SensorSource // optional
	publisher Publisher    // optional

	laneReq  chan vision.Frame
	laneRes  chan *lane.Geometry
	detReq   chan vision.Frame
	detRes   chan detResult
	laneBusy bool
	detBusy  bool

	// held perception results for cycles where a stage misses budget
	// or capture fails, aged out after cfg.Loop.HoldCycles reuses
	prevLane  *lane.Geometry
	prevDets  []detection.Detection
	prevLight detection.LightState
	laneAge   int
	detAge    int
}

// NewLoop wires the pipeline. sensors and publisher may be nil.
func NewLoop(cfg config.Config, source vision.FrameSource, detector detection.Detector,
	sink ActuationSink, sensors SensorSource, publisher Publisher) *Loop {
	return &Loop{
		cfg:       cfg,
		source:    source,
		lanes:     lane.NewEstimator(cfg.Lane),
		detector:  detector,
		distance:  detection.NewDistanceEstimator(cfg.Detection),
		lights:    detection.NewLightClassifier(cfg.Detection.MinLightPixels),
		engine:    decision.NewEngine(cfg.Decision, cfg.Camera.Width),
		monitor:   safety.NewMonitor(cfg.Safety),
		sink:      sink,
		sensors:   sensors,
		publisher: publisher,
		laneReq:   make(chan vision.Frame, 1),
		laneRes:   make(chan *lane.Geometry, 1),
		detReq:    make(chan vision.Frame, 1),
		detRes:    make(chan detResult, 1),
	}
}

// Run drives cycles at the configured budget until ctx is cancelled,
// then issues one final stop before releasing the hardware.
func (l *Loop) Run(ctx context.Context) error {
	go l.laneWorker()
	go l.detWorker()
	defer close(l.laneReq)
	defer close(l.detReq)

	ticker := time.NewTicker(l.cfg.Loop.CycleBudget)
	defer ticker.Stop()

	log.Info("control loop started", "budget", l.cfg.Loop.CycleBudget.String())

	for {
		select {
		case <-ctx.Done():
			return l.shutdown()
		case <-ticker.C:
			l.runCycle()
		}
	}
}

func (l *Loop) shutdown() error {
	log.Info("control loop stopping")
	if err := l.sink.Apply(decision.Command{Action: decision.Stop, Speed: 0}); err != nil {
		log.Error("final stop failed", "error", err)
	}
	return l.sink.Close()
}

// runCycle executes one full perception-to-action pass.
func (l *Loop) runCycle() {
	frame, err := l.source.Capture()
	if err != nil {
		log.Warn("frame capture failed, holding previous perception", "error", err)
		frame = vision.Frame{}
	}

	g, dets, light := l.perceive(frame)

	readings, aux, sensorsOK := l.checkSensors()

	var env scene.Conditions
	if !frame.Empty() {
		if c, err := l.env.Detect(frame.JPEG); err == nil {
			env = c
		}
	}

	state := scene.Aggregate(g, dets, aux, light, env, time.Now())

	var ev *safety.Event
	if sensorsOK {
		ev = l.monitor.Check(readings)
	}

	cmd := l.engine.Step(state, ev)
	if err := l.sink.Apply(cmd); err != nil {
		log.Error("actuation failed", "error", err, "action", cmd.Action.String())
	}

	if l.publisher != nil {
		l.publisher.Publish(state, cmd)
	}
}

// laneWorker serves lane requests one at a time; the estimator's hold
// state is only ever touched here.
func (l *Loop) laneWorker() {
	for frame := range l.laneReq {
		g, err := l.lanes.Estimate(frame)
		if err != nil {
			log.Debug("lane estimation failed", "error", err)
		}
		l.laneRes <- g
	}
}

func (l *Loop) detWorker() {
	for frame := range l.detReq {
		dets, err := l.detector.Detect(frame.JPEG)
		if err != nil {
			log.Debug("detection failed", "error", err)
		}
		dets = l.distance.Annotate(dets)
		dets = detection.Suppress(dets, l.cfg.Detection.SuppressIoU)
		light := l.lights.ClassifyAll(frame.JPEG, dets)
		l.detRes <- detResult{dets: dets, light: light}
	}
}

// perceive hands the frame to the stage workers and waits up to the
// cycle budget for fresh results. A stage still busy with an earlier
// frame is not fed again; a stage that misses the deadline falls back
// to its held result via holdLane and holdDetections.
func (l *Loop) perceive(frame vision.Frame) (*lane.Geometry, []detection.Detection, detection.LightState) {
	l.drainLate()

	if !frame.Empty() {
		if !l.laneBusy {
			l.laneReq <- frame
			l.laneBusy = true
		}
		if !l.detBusy {
			l.detReq <- frame
			l.detBusy = true
		}
	}

	deadline := time.NewTimer(l.cfg.Loop.CycleBudget)
	defer deadline.Stop()

	laneFresh, detFresh := false, false
wait:
	for l.laneBusy || l.detBusy {
		select {
		case g := <-l.laneRes:
			l.prevLane, l.laneAge, l.laneBusy = g, 0, false
			laneFresh = true
		case r := <-l.detRes:
			l.prevDets, l.prevLight, l.detAge, l.detBusy = r.dets, r.light, 0, false
			detFresh = true
		case <-deadline.C:
			log.Warn("perception missed cycle budget, reusing held results",
				"lane_pending", l.laneBusy, "detection_pending", l.detBusy)
			break wait
		}
	}

	g := l.prevLane
	if !laneFresh {
		g = l.holdLane()
	}
	dets, light := l.prevDets, l.prevLight
	if !detFresh {
		dets, light = l.holdDetections()
	}
	return g, dets, light
}

// drainLate adopts any result that arrived after its cycle's deadline,
// freeing the worker for the current frame.
func (l *Loop) drainLate() {
	select {
	case g := <-l.laneRes:
		l.prevLane, l.laneAge, l.laneBusy = g, 0, false
	default:
	}
	select {
	case r := <-l.detRes:
		l.prevDets, l.prevLight, l.detAge, l.detBusy = r.dets, r.light, 0, false
	default:
	}
}

// holdLane reuses the held lane geometry for one more cycle, dropping
// it once the reuse count passes the configured bound so the engine
// sees the lane as genuinely lost.
func (l *Loop) holdLane() *lane.Geometry {
	l.laneAge++
	if l.laneAge > l.cfg.Loop.HoldCycles {
		l.prevLane = nil
	}
	return l.prevLane
}

// holdDetections mirrors holdLane for the detection stage. Past the
// bound the detections drop to none and the light degrades to unknown
// rather than asserting a clear view.
func (l *Loop) holdDetections() ([]detection.Detection, detection.LightState) {
	l.detAge++
	if l.detAge > l.cfg.Loop.HoldCycles {
		l.prevDets = nil
		l.prevLight = detection.LightUnknown
	}
	return l.prevDets, l.prevLight
}

// PerceptionAge reports how many consecutive cycles the lane and
// detection results have been reused. Zero means fresh this cycle.
func (l *Loop) PerceptionAge() (laneAge, detAge int) {
	return l.laneAge, l.detAge
}

// checkSensors reads the auxiliary sensors if present. Sensor failure
// degrades the scene to vision-only; the safety monitor is only fed
// real samples, a missing IMU is not an impact.
func (l *Loop) checkSensors() (safety.Readings, scene.AuxReadings, bool) {
	if l.sensors == nil {
		return safety.Readings{}, scene.AuxReadings{}, false
	}
	readings, aux, err := l.sensors.Read()
	if err != nil {
		log.Warn("sensor read failed, running vision-only", "error", err)
		return safety.Readings{}, scene.AuxReadings{}, false
	}
	return readings, aux, true
}
