package detection

import (
	"errors"
	"sync"

	"github.com/openrover/pilot/internal/log"
)

// CachedDetector bounds per-cycle latency by reusing the previous
// detection list for up to skipInterval-1 intermediate cycles, always
// running a fresh model pass at the interval boundary. Staleness is
// observable through Age so the worst-case bound (a new obstacle is
// seen within skipInterval+1 cycles) stays testable.
//
// A model failure degrades to an empty list; ErrModelUnavailable is
// logged once, not per cycle.
type CachedDetector struct {
	inner        Detector
	skipInterval int

	mu       sync.Mutex
	last     []Detection
	age      int
	cycle    int
	degraded bool // model failure already reported
}

// NewCached wraps a detector with skip-interval caching.
// skipInterval of 1 disables caching: every cycle runs the model.
func NewCached(inner Detector, skipInterval int) *CachedDetector {
	if skipInterval < 1 {
		skipInterval = 1
	}
	return &CachedDetector{inner: inner, skipInterval: skipInterval}
}

// Detect returns fresh results at interval boundaries and the cached
// list in between.
func (c *CachedDetector) Detect(jpeg []byte) ([]Detection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cycle++
	if c.cycle%c.skipInterval != 0 && c.last != nil {
		c.age++
		return c.last, nil
	}

	if c.inner == nil {
		if !c.degraded {
			c.degraded = true
			log.Error("no detection model attached, running with empty detections")
		}
		c.last = []Detection{}
		c.age = 0
		return c.last, nil
	}

	dets, err := c.inner.Detect(jpeg)
	if err != nil {
		if !c.degraded && errors.Is(err, ErrModelUnavailable) {
			c.degraded = true
			log.Error("detection model unavailable, degrading to empty detections", "err", err)
		}
		// Degraded cycle still resets the cache: stale boxes must not
		// outlive the skip bound.
		c.last = []Detection{}
		c.age = 0
		if errors.Is(err, ErrModelUnavailable) {
			return c.last, nil
		}
		return c.last, err
	}

	c.last = dets
	c.age = 0
	return dets, nil
}

// Age returns how many cycles the current result has been reused.
func (c *CachedDetector) Age() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.age
}

// Close releases the wrapped detector.
func (c *CachedDetector) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
