package drive

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/openrover/pilot/internal/config"
	"github.com/openrover/pilot/pkg/decision"
	"github.com/openrover/pilot/pkg/detection"
	"github.com/openrover/pilot/pkg/lane"
	"github.com/openrover/pilot/pkg/safety"
	"github.com/openrover/pilot/pkg/scene"
	"github.com/openrover/pilot/pkg/vision"
)

// fixedDetector returns the same detections every pass, without a model.
type fixedDetector struct {
	dets []detection.Detection
}

func (d *fixedDetector) Detect([]byte) ([]detection.Detection, error) {
	return d.dets, nil
}
func (d *fixedDetector) Close() error { return nil }

type fixedSensors struct {
	readings safety.Readings
	aux      scene.AuxReadings
	err      error
}

func (s *fixedSensors) Read() (safety.Readings, scene.AuxReadings, error) {
	return s.readings, s.aux, s.err
}

type countingPublisher struct {
	mu    sync.Mutex
	count int
	last  decision.Command
}

func (p *countingPublisher) Publish(_ scene.State, cmd decision.Command) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	p.last = cmd
}

func (p *countingPublisher) snapshot() (int, decision.Command) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count, p.last
}

// slowDetector overruns any reasonable cycle budget and records how
// many Detect calls ever ran at once.
type slowDetector struct {
	delay time.Duration

	mu     sync.Mutex
	active int
	max    int
}

func (d *slowDetector) Detect([]byte) ([]detection.Detection, error) {
	d.mu.Lock()
	d.active++
	if d.active > d.max {
		d.max = d.active
	}
	d.mu.Unlock()

	time.Sleep(d.delay)

	d.mu.Lock()
	d.active--
	d.mu.Unlock()
	return nil, nil
}
func (d *slowDetector) Close() error { return nil }

func (d *slowDetector) maxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.max
}

func completeGeometry() *lane.Geometry {
	return &lane.Geometry{
		Left:  &lane.Line{A: 100, B: 0.2},
		Right: &lane.Line{A: 540, B: -0.2},
	}
}

type failingSource struct{}

func (failingSource) Capture() (vision.Frame, error) {
	return vision.Frame{}, errors.New("camera gone")
}
func (failingSource) Close() error { return nil }

func fastConfig() config.Config {
	cfg := config.Default()
	cfg.Loop.CycleBudget = 2 * time.Millisecond
	return cfg
}

func testFrame() vision.Frame {
	return vision.Frame{JPEG: []byte{0xff, 0xd8, 0xff}, Width: 640, Height: 480, Timestamp: time.Now()}
}

func runFor(t *testing.T, l *Loop, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
}

func TestLoopEmitsEveryCycleAndStopsOnShutdown(t *testing.T) {
	source := vision.NewMockSource([]vision.Frame{testFrame()}, true)
	sink := NewMockSink()
	l := NewLoop(fastConfig(), source, &fixedDetector{}, sink, nil, nil)

	runFor(t, l, 50*time.Millisecond)

	cmds := sink.Commands()
	if len(cmds) < 2 {
		t.Fatalf("got %d commands over 50ms, want several", len(cmds))
	}
	final := cmds[len(cmds)-1]
	if final.Action != decision.Stop || final.Speed != 0 {
		t.Errorf("final command = %v/%d, want stop/0 on shutdown", final.Action, final.Speed)
	}
	if !sink.Closed() {
		t.Error("sink not closed on shutdown")
	}
}

func TestLoopEmitsDespiteCaptureFailure(t *testing.T) {
	sink := NewMockSink()
	l := NewLoop(fastConfig(), failingSource{}, &fixedDetector{}, sink, nil, nil)

	runFor(t, l, 30*time.Millisecond)

	if len(sink.Commands()) < 2 {
		t.Fatalf("got %d commands with a dead camera, want a command per cycle", len(sink.Commands()))
	}
}

func TestLoopCloseObstacleStops(t *testing.T) {
	source := vision.NewMockSource([]vision.Frame{testFrame()}, true)
	sink := NewMockSink()
	// 350px box of a known 0.5m object projects to ~1.4m, under the
	// halt threshold.
	det := &fixedDetector{dets: []detection.Detection{
		{Label: "person", Confidence: 0.9, Box: image.Rect(150, 100, 500, 400)},
	}}
	l := NewLoop(fastConfig(), source, det, sink, nil, nil)

	runFor(t, l, 50*time.Millisecond)

	cmds := sink.Commands()
	for i, cmd := range cmds {
		if cmd.Action != decision.Stop {
			t.Fatalf("command %d = %v, want stop with obstacle at 0.5m", i, cmd.Action)
		}
	}
}

func TestLoopSafetyEventPreempts(t *testing.T) {
	source := vision.NewMockSource([]vision.Frame{testFrame()}, true)
	sink := NewMockSink()
	sensors := &fixedSensors{readings: safety.Readings{AccelX: 20, AccelZ: 9.81, Speed: 30}}
	l := NewLoop(fastConfig(), source, &fixedDetector{}, sink, sensors, nil)

	runFor(t, l, 50*time.Millisecond)

	for i, cmd := range sink.Commands() {
		if cmd.Action != decision.Stop || cmd.Speed != 0 {
			t.Fatalf("command %d = %v/%d after impact, want stop/0", i, cmd.Action, cmd.Speed)
		}
	}
}

func TestLoopSensorFailureDegradesToVisionOnly(t *testing.T) {
	source := vision.NewMockSource([]vision.Frame{testFrame()}, true)
	sink := NewMockSink()
	sensors := &fixedSensors{err: errors.New("i2c timeout")}
	l := NewLoop(fastConfig(), source, &fixedDetector{}, sink, sensors, nil)

	runFor(t, l, 50*time.Millisecond)

	// A missing IMU must not read as an impact.
	cmds := sink.Commands()
	for i, cmd := range cmds[:len(cmds)-1] {
		if cmd.Action == decision.Stop {
			t.Fatalf("command %d is a stop on sensor failure, want degraded driving", i)
		}
	}
}

func TestLoopPublishesSnapshots(t *testing.T) {
	source := vision.NewMockSource([]vision.Frame{testFrame()}, true)
	sink := NewMockSink()
	pub := &countingPublisher{}
	l := NewLoop(fastConfig(), source, &fixedDetector{}, sink, nil, pub)

	runFor(t, l, 50*time.Millisecond)

	count, _ := pub.snapshot()
	if count < 2 {
		t.Fatalf("publisher saw %d snapshots, want one per cycle", count)
	}
}

func TestLoopHeldLaneExpiresToSlow(t *testing.T) {
	sink := NewMockSink()
	l := NewLoop(fastConfig(), failingSource{}, &fixedDetector{}, sink, nil, nil)
	// Lane geometry from before the camera died.
	l.prevLane = completeGeometry()

	runFor(t, l, 100*time.Millisecond)

	cmds := sink.Commands()
	if len(cmds) < 20 {
		t.Fatalf("got %d commands, want enough cycles to age out the held lane", len(cmds))
	}
	// Last command before the shutdown stop. The held lane must have
	// expired and forced a slow crawl, not blind cruising.
	last := cmds[len(cmds)-2]
	if last.Action != decision.Forward || last.Speed != l.cfg.Decision.SlowSpeed {
		t.Errorf("settled command = %v/%d, want forward/%d once the held lane expires",
			last.Action, last.Speed, l.cfg.Decision.SlowSpeed)
	}
	laneAge, detAge := l.PerceptionAge()
	if laneAge <= l.cfg.Loop.HoldCycles || detAge <= l.cfg.Loop.HoldCycles {
		t.Errorf("perception age = %d/%d, want past hold bound %d with a dead camera",
			laneAge, detAge, l.cfg.Loop.HoldCycles)
	}
}

func TestLoopPerceptionHoldAging(t *testing.T) {
	cfg := fastConfig()
	cfg.Loop.HoldCycles = 2
	l := NewLoop(cfg, failingSource{}, &fixedDetector{}, NewMockSink(), nil, nil)
	l.prevLane = completeGeometry()
	l.prevDets = []detection.Detection{{Label: "car", Confidence: 0.8, Box: image.Rect(0, 0, 50, 50)}}
	l.prevLight = detection.LightGreen

	// Within the bound the held results are reused.
	for i := 1; i <= 2; i++ {
		if g := l.holdLane(); g == nil {
			t.Fatalf("holdLane() = nil at reuse %d, want held geometry", i)
		}
		dets, light := l.holdDetections()
		if len(dets) != 1 || light != detection.LightGreen {
			t.Fatalf("holdDetections() = %d/%v at reuse %d, want held results", len(dets), light, i)
		}
	}

	// One past the bound everything drops.
	if g := l.holdLane(); g != nil {
		t.Error("holdLane() past bound still returns geometry")
	}
	dets, light := l.holdDetections()
	if dets != nil {
		t.Errorf("holdDetections() past bound = %d detections, want none", len(dets))
	}
	if light != detection.LightUnknown {
		t.Errorf("light past bound = %v, want %v", light, detection.LightUnknown)
	}
	if laneAge, detAge := l.PerceptionAge(); laneAge != 3 || detAge != 3 {
		t.Errorf("PerceptionAge() = %d/%d, want 3/3", laneAge, detAge)
	}
}

func TestLoopSlowDetectorRunsSingleFlight(t *testing.T) {
	source := vision.NewMockSource([]vision.Frame{testFrame()}, true)
	sink := NewMockSink()
	det := &slowDetector{delay: 15 * time.Millisecond}
	l := NewLoop(fastConfig(), source, det, sink, nil, nil)

	runFor(t, l, 60*time.Millisecond)

	if n := det.maxConcurrent(); n != 1 {
		t.Errorf("detector ran %d passes concurrently, want exactly one in flight", n)
	}
	if len(sink.Commands()) < 2 {
		t.Errorf("got %d commands, loop must keep emitting while detection overruns", len(sink.Commands()))
	}
}

func TestLogSinkDeduplicates(t *testing.T) {
	s := NewLogSink()
	for i := 0; i < 3; i++ {
		if err := s.Apply(decision.Command{Action: decision.Forward, Speed: 30}); err != nil {
			t.Fatalf("Apply() = %v", err)
		}
	}
	if err := s.Apply(decision.Command{Action: decision.Stop}); err != nil {
		t.Fatalf("Apply() = %v", err)
	}
}
