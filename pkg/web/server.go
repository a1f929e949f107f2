// Package web serves the browser UI, the MJPEG feed, the REST control API
// and the websocket command and telemetry channels.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/camera"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/dispatch"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/hub"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/robot"
)

// Defaults.
const (
	DefaultAddr      = ":5000"
	DefaultStaticDir = "dist"
	DefaultUser      = "admin"
	DefaultPassword  = "123456"
)

// ErrNoRig is returned by New without a rig.
var ErrNoRig = errors.New("web: rig required")

// Config configures the server.
type Config struct {
	Addr      string
	StaticDir string // browser UI, served at /

	// Command channel credentials.
	User     string
	Password string

	Logger *slog.Logger
}

// DefaultConfig returns the legacy port and credentials.
func DefaultConfig() Config {
	return Config{
		Addr:      DefaultAddr,
		StaticDir: DefaultStaticDir,
		User:      DefaultUser,
		Password:  DefaultPassword,
	}
}

// FrameSource provides JPEG frames for /video_feed.
type FrameSource interface {
	Subscribe() (<-chan []byte, func())
	Frames() uint64
}

// Deps are the components the server fronts. Rig and Dispatcher are
// required; a nil Camera, Frames, Telemetry or Info disables its routes.
type Deps struct {
	Rig        *robot.Rig
	Dispatcher *dispatch.Dispatcher
	Telemetry  *hub.Hub
	Monitor    *robot.Monitor
	Camera     *camera.Manager
	Frames     FrameSource
	Info       dispatch.InfoReader
}

// Server is the HTTP front end.
type Server struct {
	app  *fiber.App
	cfg  Config
	deps Deps
	log  *slog.Logger

	sessions atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
}

// New builds the fiber app and its routes.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Rig == nil {
		return nil, ErrNoRig
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = dispatch.New(deps.Rig, dispatch.WithInfo(deps.Info))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  cfg.Logger.With("component", "web"),
		done: make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "RaspClaws",
		DisableStartupMessage: true,
	})

	// CORS for the UI dev server
	app.Use(cors.New())

	app.Get("/video_feed", s.handleVideoFeed)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/info", s.handleInfo)
	api.Post("/command", s.handleCommand)
	api.Get("/servos/:group", s.handleServoState)
	api.Post("/servos/:group/goal", s.handleServoGoal)
	api.Post("/servos/:group/wiggle", s.handleServoWiggle)
	api.Post("/servos/:group/stop", s.handleServoStop)
	api.Post("/servos/:group/resume", s.handleServoResume)
	api.Post("/servos/:group/init", s.handleServoInit)
	api.Post("/servos/:group/raw", s.handleServoRaw)
	api.Put("/servos/:group/init-position", s.handleServoInitPosition)
	api.Get("/calibration", s.handleCalibration)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handlePutCamera)
	api.Get("/camera/presets", s.handleCameraPresets)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", s.commandHandler())
	if deps.Telemetry != nil {
		app.Get("/ws/telemetry", deps.Telemetry.Handler())
	}

	// Static UI last so it never shadows the API.
	if cfg.StaticDir != "" {
		app.Static("/api/img", filepath.Join(cfg.StaticDir, "img"))
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s, nil
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the configured address until Shutdown.
func (s *Server) Listen() error {
	s.log.Info("web server listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("web server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.Listen() }()

	select {
	case err := <-errc:
		return fmt.Errorf("web: listen: %w", err)
	case <-ctx.Done():
	}
	return s.Shutdown(5 * time.Second)
}

// Shutdown ends open video streams and stops the server.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.stopOnce.Do(func() { close(s.done) })
	return s.app.ShutdownWithTimeout(timeout)
}

// Sessions returns the number of authenticated command sessions.
func (s *Server) Sessions() int64 {
	return s.sessions.Load()
}
