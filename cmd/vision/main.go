// vision runs the perception stack without driving: it captures
// frames, prints lane geometry, detections and camera health, and
// exits on Ctrl+C. Bench tool for tuning thresholds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openrover/pilot/internal/config"
	"github.com/openrover/pilot/internal/log"
	"github.com/openrover/pilot/pkg/detection"
	"github.com/openrover/pilot/pkg/diagnostics"
	"github.com/openrover/pilot/pkg/lane"
	"github.com/openrover/pilot/pkg/vision"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	interval := flag.Duration("interval", 500*time.Millisecond, "time between frames")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	if err := run(cfg, *interval); err != nil {
		log.Error("vision exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, interval time.Duration) error {
	source, err := vision.OpenCamera(cfg.Camera)
	if err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	defer source.Close()

	var detector detection.Detector
	if yolo, err := detection.NewYOLO(cfg.Detection); err != nil {
		log.Warn("model unavailable, lane-only mode", "error", err)
	} else {
		detector = yolo
		defer yolo.Close()
	}

	lanes := lane.NewEstimator(cfg.Lane)
	distance := detection.NewDistanceEstimator(cfg.Detection)
	lights := detection.NewLightClassifier(cfg.Detection.MinLightPixels)
	health := diagnostics.NewCameraMonitor()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			frame, err := source.Capture()
			if err != nil {
				log.Warn("capture failed", "error", err)
				continue
			}
			inspect(frame, lanes, detector, distance, lights, health, cfg)
		}
	}
}

func inspect(frame vision.Frame, lanes *lane.Estimator, detector detection.Detector,
	distance *detection.DistanceEstimator, lights *detection.LightClassifier,
	health *diagnostics.CameraMonitor, cfg config.Config) {

	if report, err := health.Inspect(frame); err == nil && !report.Healthy() {
		fmt.Printf("camera: dark=%v blurred=%v frozen=%v fps=%.1f\n",
			report.Dark, report.Blurred, report.Frozen, report.FPS)
	}

	g, err := lanes.Estimate(frame)
	switch {
	case err != nil:
		log.Warn("lane estimation failed", "error", err)
	case g == nil:
		fmt.Println("lane: none")
	case g.Complete():
		fmt.Printf("lane: offset=%+.3f curvature=%+.3f held=%d\n",
			g.LateralOffset, g.Curvature, g.HeldCycles)
	default:
		fmt.Println("lane: partial")
	}

	if detector == nil {
		return
	}
	dets, err := detector.Detect(frame.JPEG)
	if err != nil {
		log.Warn("detection failed", "error", err)
		return
	}
	dets = detection.Suppress(distance.Annotate(dets), cfg.Detection.SuppressIoU)
	for _, d := range dets {
		fmt.Printf("  %-14s conf=%.2f dist=%6.2fm box=%v\n", d.Label, d.Confidence, d.Distance, d.Box)
	}
	if light := lights.ClassifyAll(frame.JPEG, dets); light != detection.LightNone {
		fmt.Printf("  traffic light: %s\n", light)
	}
}
