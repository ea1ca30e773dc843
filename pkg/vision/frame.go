// Package vision provides frame capture for the driving pipeline.
package vision

import "time"

// Frame is one captured camera image. It is owned by the cycle that
// captured it and must not be retained past the cycle boundary.
type Frame struct {
	JPEG      []byte // Pre-decoded channel order is BGR inside the JPEG
	Width     int
	Height    int
	Timestamp time.Time
}

// Empty reports whether the frame carries no image data.
func (f Frame) Empty() bool {
	return len(f.JPEG) == 0
}

// FrameSource supplies frames at a device-determined rate.
type FrameSource interface {
	// Capture blocks until the next frame is available.
	Capture() (Frame, error)

	// Close releases the underlying device.
	Close() error
}
