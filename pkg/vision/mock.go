package vision

import (
	"io"
	"sync"
	"time"
)

// MockSource replays a fixed sequence of frames. Used in tests and by
// the simulation mode of cmd/vision.
type MockSource struct {
	mu     sync.Mutex
	frames []Frame
	next   int
	loop   bool
	closed bool
}

// NewMockSource creates a source that serves the given frames in order.
// When loop is true the sequence repeats forever.
func NewMockSource(frames []Frame, loop bool) *MockSource {
	return &MockSource{frames: frames, loop: loop}
}

// Capture returns the next frame, or io.EOF when the sequence is spent.
func (m *MockSource) Capture() (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || len(m.frames) == 0 {
		return Frame{}, io.EOF
	}
	if m.next >= len(m.frames) {
		if !m.loop {
			return Frame{}, io.EOF
		}
		m.next = 0
	}

	f := m.frames[m.next]
	m.next++
	f.Timestamp = time.Now()
	return f, nil
}

// Close marks the source exhausted.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
