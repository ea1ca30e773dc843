// Package safety watches inertial readings for impacts, rollovers and
// crash signatures, independently of the perception pipeline.
package safety

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/openrover/pilot/internal/config"
	"github.com/openrover/pilot/internal/log"
)

const gravity = 9.81

// Readings is one sample from the vehicle IMU plus the current
// commanded speed. Accelerations are m/s^2, rotations rad/s.
type Readings struct {
	AccelX, AccelY, AccelZ float64
	GyroX, GyroY, GyroZ    float64
	Speed                  float64
	Timestamp              time.Time
}

// totalAccel removes the gravity component from Z before computing
// the magnitude, so a vehicle at rest reads near zero.
func (r Readings) totalAccel() float64 {
	z := r.AccelZ - gravity
	return math.Sqrt(r.AccelX*r.AccelX + r.AccelY*r.AccelY + z*z)
}

func (r Readings) totalRotation() float64 {
	return math.Sqrt(r.GyroX*r.GyroX + r.GyroY*r.GyroY + r.GyroZ*r.GyroZ)
}

// Kind classifies a safety event.
type Kind int

const (
	Impact Kind = iota
	Rollover
	Accident
)

func (k Kind) String() string {
	switch k {
	case Impact:
		return "impact"
	case Rollover:
		return "rollover"
	case Accident:
		return "accident"
	}
	return "unknown"
}

// Event records a single tripped safety condition.
type Event struct {
	ID        string
	Kind      Kind
	Magnitude float64
	Timestamp time.Time
}

// Monitor evaluates IMU samples against configured thresholds. A
// tripped condition reports once and then stays latched until the
// reading drops back below threshold, so a sustained spike does not
// flood the decision layer with duplicate events.
type Monitor struct {
	cfg     config.Safety
	tripped map[Kind]bool
}

func NewMonitor(cfg config.Safety) *Monitor {
	return &Monitor{cfg: cfg, tripped: make(map[Kind]bool)}
}

// Check evaluates one sample. It returns the highest-severity new
// event, or nil when nothing newly tripped. Severity order is
// rollover, accident, impact.
func (m *Monitor) Check(r Readings) *Event {
	accel := r.totalAccel()
	rot := r.totalRotation()

	rollover := rot > m.cfg.RolloverThreshold
	accident := accel > m.cfg.AccidentAccel && r.Speed < m.cfg.AccidentSpeed
	impact := accel > m.cfg.ImpactThreshold

	var ev *Event
	switch {
	case rollover && !m.tripped[Rollover]:
		ev = m.newEvent(Rollover, rot, r.Timestamp)
	case accident && !m.tripped[Accident]:
		ev = m.newEvent(Accident, accel, r.Timestamp)
	case impact && !m.tripped[Impact]:
		ev = m.newEvent(Impact, accel, r.Timestamp)
	}

	m.tripped[Rollover] = rollover
	m.tripped[Accident] = accident
	m.tripped[Impact] = impact
	return ev
}

func (m *Monitor) newEvent(k Kind, mag float64, ts time.Time) *Event {
	if ts.IsZero() {
		ts = time.Now()
	}
	ev := &Event{ID: uuid.NewString(), Kind: k, Magnitude: mag, Timestamp: ts}
	log.Error("safety event", "kind", k.String(), "magnitude", mag, "id", ev.ID)
	return ev
}

// Reset clears all latched conditions, used after an operator
// acknowledges and clears an emergency.
func (m *Monitor) Reset() {
	for k := range m.tripped {
		m.tripped[k] = false
	}
}
