// pilot drives the vehicle: capture, perceive, decide, actuate, once
// per control cycle, with the dashboard alongside.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openrover/pilot/internal/config"
	"github.com/openrover/pilot/internal/log"
	"github.com/openrover/pilot/pkg/detection"
	"github.com/openrover/pilot/pkg/drive"
	"github.com/openrover/pilot/pkg/telemetry"
	"github.com/openrover/pilot/pkg/vision"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)

	if err := run(cfg); err != nil {
		log.Error("pilot exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	source, err := vision.OpenCamera(cfg.Camera)
	if err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	defer source.Close()

	detector := openDetector(cfg)
	defer detector.Close()

	var publisher drive.Publisher
	if cfg.Telemetry.Enabled {
		server := telemetry.NewServer(cfg.Telemetry.Port)
		server.StartAsync()
		defer server.Shutdown()
		publisher = server
	}

	// TODO: wire the real IMU/ultrasonic SensorSource once the I2C
	// driver lands; until then the loop runs vision-only.
	loop := drive.NewLoop(cfg, source, detector, drive.NewLogSink(), nil, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutdown signal", "signal", sig.String())
		cancel()
	}()

	return loop.Run(ctx)
}

// openDetector loads the YOLO model, degrading to a model-less
// detector when it cannot be loaded. The vehicle still runs, with
// lane keeping and ranging only.
func openDetector(cfg config.Config) detection.Detector {
	yolo, err := detection.NewYOLO(cfg.Detection)
	if err != nil {
		log.Warn("detection model unavailable, driving without object detection", "error", err)
		return detection.NewCached(nil, cfg.Detection.SkipInterval)
	}
	return detection.NewCached(yolo, cfg.Detection.SkipInterval)
}
