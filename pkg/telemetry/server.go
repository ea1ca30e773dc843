package telemetry

import (
	"math"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/openrover/pilot/internal/log"
	"github.com/openrover/pilot/pkg/decision"
	"github.com/openrover/pilot/pkg/scene"
)

// Status is the dashboard's view of one control cycle.
type Status struct {
	Action       string  `json:"action"`
	Speed        int     `json:"speed"`
	ObstacleM    float64 `json:"obstacle_m"` // -1 when nothing in range
	TrafficLight string  `json:"traffic_light"`
	LaneComplete bool    `json:"lane_complete"`
	LaneOffset   float64 `json:"lane_offset"`
	TimeOfDay    string  `json:"time_of_day"`
	Weather      string  `json:"weather"`
	Detections   int     `json:"detections"`
	Timestamp    int64   `json:"timestamp_ms"`
}

// LogEntry represents a log line for the dashboard
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, warn, error
	Message string `json:"message"`
}

// Server is the vehicle dashboard server. It receives per-cycle
// snapshots from the control loop and fans them out to websocket
// clients; it never pushes back on the loop.
type Server struct {
	app  *fiber.App
	port string

	status   Status
	statusMu sync.RWMutex

	// Log buffer (last 500 entries)
	logs   []LogEntry
	logsMu sync.RWMutex

	sceneHub  *Hub
	logHub    *Hub
	cameraHub *Hub
}

// NewServer creates the dashboard server on the given port.
func NewServer(port string) *Server {
	s := &Server{
		port:      port,
		logs:      make([]LogEntry, 0, 500),
		sceneHub:  NewHub("scene"),
		logHub:    NewHub("logs"),
		cameraHub: NewHub("camera"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "pilot dashboard",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/logs", s.handleGetLogs)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/scene", websocket.New(func(c *websocket.Conn) {
		NewClient(s.sceneHub, c).Run()
	}))
	app.Get("/ws/logs", websocket.New(func(c *websocket.Conn) {
		NewClient(s.logHub, c).Run()
	}))
	app.Get("/ws/camera", websocket.New(func(c *websocket.Conn) {
		NewClient(s.cameraHub, c).Run()
	}))

	s.app = app
	return s
}

// Start runs the hubs and serves. Blocks.
func (s *Server) Start() error {
	go s.sceneHub.Run()
	go s.logHub.Run()
	go s.cameraHub.Run()

	log.Info("dashboard listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync serves in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("dashboard server failed", "error", err)
		}
	}()
}

// Publish accepts one cycle's snapshot from the control loop. It only
// updates in-memory state and fires non-blocking broadcasts.
func (s *Server) Publish(st scene.State, cmd decision.Command) {
	status := snapshotStatus(st, cmd)

	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()

	s.sceneHub.BroadcastJSON(status)
}

// snapshotStatus flattens a scene and command into the wire shape.
// Infinite distances become -1: JSON has no infinity.
func snapshotStatus(st scene.State, cmd decision.Command) Status {
	obstacle := -1.0
	if !math.IsInf(st.MinObstacleDistance, 1) {
		obstacle = st.MinObstacleDistance
	}

	status := Status{
		Action:       cmd.Action.String(),
		Speed:        cmd.Speed,
		ObstacleM:    obstacle,
		TrafficLight: st.TrafficLight.String(),
		TimeOfDay:    st.Environment.TimeOfDay.String(),
		Weather:      st.Environment.Weather.String(),
		Detections:   len(st.Detections),
		Timestamp:    st.Timestamp.UnixMilli(),
	}
	if st.Lane != nil {
		status.LaneComplete = st.Lane.Complete()
		status.LaneOffset = st.Lane.LateralOffset
	}
	return status
}

// AddLog adds a log entry and broadcasts it to clients.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > 500 {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

// SendCameraFrame streams a JPEG frame to camera clients.
func (s *Server) SendCameraFrame(jpeg []byte) {
	s.cameraHub.BroadcastBinary(jpeg)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return c.JSON(s.status)
}

func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// Shutdown stops the hub loops, disconnecting their clients, then
// gracefully stops the web server.
func (s *Server) Shutdown() error {
	s.sceneHub.Stop()
	s.logHub.Stop()
	s.cameraHub.Stop()
	return s.app.Shutdown()
}
