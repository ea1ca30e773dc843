package vision

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/openrover/pilot/internal/config"
)

// CameraSource captures frames from a local V4L camera via OpenCV.
type CameraSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	mu      sync.Mutex
	width   int
	height  int
}

// OpenCamera opens the configured camera device.
func OpenCamera(cfg config.Camera) (*CameraSource, error) {
	capture, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.DeviceID, err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))

	return &CameraSource{
		capture: capture,
		mat:     gocv.NewMat(),
		width:   cfg.Width,
		height:  cfg.Height,
	}, nil
}

// Capture reads the next frame and encodes it as JPEG.
func (c *CameraSource) Capture() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ok := c.capture.Read(&c.mat); !ok || c.mat.Empty() {
		return Frame{}, fmt.Errorf("camera read failed")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, c.mat)
	if err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	jpeg := make([]byte, len(buf.GetBytes()))
	copy(jpeg, buf.GetBytes())

	return Frame{
		JPEG:      jpeg,
		Width:     c.mat.Cols(),
		Height:    c.mat.Rows(),
		Timestamp: time.Now(),
	}, nil
}

// Close releases the camera device.
func (c *CameraSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mat.Close()
	return c.capture.Close()
}
