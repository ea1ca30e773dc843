package drive

import (
	"sync"

	"github.com/openrover/pilot/internal/log"
	"github.com/openrover/pilot/pkg/decision"
)

// ActuationSink executes one driving command per cycle. Implementations
// translate commands into hardware signals and may no-op safely when no
// hardware is attached.
type ActuationSink interface {
	Apply(cmd decision.Command) error
	Close() error
}

// LogSink logs commands instead of driving motors. It is the sink for
// simulation and bench runs, and only logs when the command changes so
// a steady cruise does not flood the output.
type LogSink struct {
	mu   sync.Mutex
	last decision.Command
	seen bool
}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Apply(cmd decision.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen && cmd == s.last {
		return nil
	}
	s.last = cmd
	s.seen = true
	log.Info("drive", "action", cmd.Action.String(), "speed", cmd.Speed)
	return nil
}

func (s *LogSink) Close() error { return nil }

// MockSink records every command it receives, for tests.
type MockSink struct {
	mu       sync.Mutex
	commands []decision.Command
	closed   bool
}

func NewMockSink() *MockSink { return &MockSink{} }

func (s *MockSink) Apply(cmd decision.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
	return nil
}

func (s *MockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Commands returns a copy of everything applied so far.
func (s *MockSink) Commands() []decision.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]decision.Command, len(s.commands))
	copy(out, s.commands)
	return out
}

func (s *MockSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
