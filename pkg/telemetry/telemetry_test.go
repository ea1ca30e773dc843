package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/openrover/pilot/pkg/decision"
	"github.com/openrover/pilot/pkg/lane"
	"github.com/openrover/pilot/pkg/scene"
)

// addClient registers a bare client without websocket pumps; the hub
// only ever touches the send channel.
func addClient(h *Hub, buffer int) *Client {
	c := &Client{hub: h, send: make(chan Message, buffer)}
	h.register <- c
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached within 1s")
}

func TestHubStopTerminatesRun(t *testing.T) {
	h := NewHub("test")
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	c := addClient(h, 4)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after Stop, want 0", n)
	}
	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("client received data after Stop, want closed send channel")
		}
	default:
		t.Error("client send channel left open after Stop")
	}

	h.Stop() // second call must be a no-op
}

func TestHubBroadcastReachesClients(t *testing.T) {
	h := NewHub("test")
	go h.Run()

	c := addClient(h, 16)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.Broadcast(Message{Type: JSONMessage, Data: []byte(`{"ok":true}`)})

	select {
	case msg := <-c.send:
		if msg.Type != JSONMessage {
			t.Errorf("message type = %v, want JSON", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("client never received broadcast")
	}
}

func TestHubDropsSlowClientWithoutBlocking(t *testing.T) {
	h := NewHub("test")
	go h.Run()

	slow := addClient(h, 1) // never drained
	fast := addClient(h, 64)
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	// Flood past the slow client's buffer. The hub must shed it and
	// keep serving the fast one.
	for i := 0; i < 10; i++ {
		h.Broadcast(Message{Type: BinaryMessage, Data: []byte{byte(i)}})
	}
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	delivered := 0
	for {
		select {
		case _, ok := <-fast.send:
			if !ok {
				t.Fatal("fast client was dropped")
			}
			delivered++
			if delivered >= 2 {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("fast client got %d messages during flood", delivered)
		}
	}
}

func TestHubBroadcastNeverBlocksWhenFull(t *testing.T) {
	h := NewHub("test") // Run never started: channel fills up
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Broadcast(Message{Type: BinaryMessage})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full channel")
	}
}

func TestSnapshotStatus(t *testing.T) {
	st := scene.State{
		Lane:                &lane.Geometry{Left: &lane.Line{}, Right: &lane.Line{}, LateralOffset: 0.25},
		MinObstacleDistance: 3.5,
		Timestamp:           time.UnixMilli(1700000000000),
	}
	got := snapshotStatus(st, decision.Command{Action: decision.Left, Speed: 15})

	if got.Action != "left" || got.Speed != 15 {
		t.Errorf("command fields = %s/%d, want left/15", got.Action, got.Speed)
	}
	if got.ObstacleM != 3.5 || !got.LaneComplete || got.LaneOffset != 0.25 {
		t.Errorf("scene fields = %+v", got)
	}
	if got.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d", got.Timestamp)
	}
}

func TestSnapshotStatusInfiniteDistance(t *testing.T) {
	st := scene.State{MinObstacleDistance: math.Inf(1), Timestamp: time.Now()}
	got := snapshotStatus(st, decision.Command{Action: decision.Forward, Speed: 50})
	if got.ObstacleM != -1 {
		t.Errorf("ObstacleM = %v for clear road, want -1 (JSON has no infinity)", got.ObstacleM)
	}
	if got.LaneComplete {
		t.Error("LaneComplete true with nil lane")
	}
}
