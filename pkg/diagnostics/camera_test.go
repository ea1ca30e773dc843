package diagnostics

import (
	"testing"
	"time"
)

func TestAssess(t *testing.T) {
	tests := []struct {
		name       string
		brightness float64
		sharpness  float64
		streak     int
		dark       bool
		blurred    bool
		frozen     bool
	}{
		{"healthy", 0.5, 500, 0, false, false, false},
		{"dark lens", 0.05, 500, 0, true, false, false},
		{"defocused", 0.5, 20, 0, false, true, false},
		{"frozen stream", 0.5, 500, 5, false, false, true},
		{"short repeat is not frozen", 0.5, 500, 3, false, false, false},
		{"covered lens is dark and blurred", 0.02, 1, 0, true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := assess(tt.brightness, tt.sharpness, tt.streak)
			if r.Dark != tt.dark || r.Blurred != tt.blurred || r.Frozen != tt.frozen {
				t.Errorf("assess(%v, %v, %d) = dark %v blurred %v frozen %v, want %v %v %v",
					tt.brightness, tt.sharpness, tt.streak,
					r.Dark, r.Blurred, r.Frozen, tt.dark, tt.blurred, tt.frozen)
			}
			if r.Healthy() != (!tt.dark && !tt.blurred && !tt.frozen) {
				t.Errorf("Healthy() inconsistent with flags")
			}
		})
	}
}

func TestTrackFreeze(t *testing.T) {
	m := NewCameraMonitor()
	same := []byte{1, 2, 3, 4}

	m.trackFreeze(same)
	if m.streak != 0 {
		t.Fatalf("first frame streak = %d, want 0", m.streak)
	}
	for i := 1; i <= 5; i++ {
		m.trackFreeze(same)
		if m.streak != i {
			t.Fatalf("repeat %d: streak = %d", i, m.streak)
		}
	}

	m.trackFreeze([]byte{9, 9, 9})
	if m.streak != 0 {
		t.Errorf("fresh frame did not reset streak, got %d", m.streak)
	}
}

func TestTrackFreezeCopiesBuffer(t *testing.T) {
	m := NewCameraMonitor()
	buf := []byte{1, 2, 3}
	m.trackFreeze(buf)
	buf[0] = 42 // caller reuses its buffer

	m.trackFreeze([]byte{1, 2, 3})
	if m.streak != 1 {
		t.Errorf("streak = %d; monitor must compare its own copy, not the caller's buffer", m.streak)
	}
}

func TestTrackFPS(t *testing.T) {
	m := NewCameraMonitor()
	start := time.Unix(1700000000, 0)

	if fps := m.trackFPS(start); fps != 0 {
		t.Fatalf("single sample fps = %v, want 0", fps)
	}
	var fps float64
	for i := 1; i <= 10; i++ {
		fps = m.trackFPS(start.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	if fps < 9.9 || fps > 10.1 {
		t.Errorf("fps = %v for 100ms spacing, want ~10", fps)
	}

	if fps := m.trackFPS(time.Time{}); fps != 0 {
		t.Errorf("zero timestamp fps = %v, want 0", fps)
	}
}
