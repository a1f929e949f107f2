package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/calibration"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/camera"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/dispatch"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/robot"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/servo"
)

// infoTimeout bounds the CPU sampling window of /api/info.
const infoTimeout = 3 * time.Second

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, robot.ErrUnknownGroup):
		return fiber.StatusNotFound
	case errors.Is(err, servo.ErrOutOfRange),
		errors.Is(err, servo.ErrArityMismatch),
		errors.Is(err, servo.ErrInvalidConfig),
		errors.Is(err, camera.ErrUnknownPreset),
		errors.Is(err, camera.ErrInvalidConfig):
		return fiber.StatusBadRequest
	case errors.Is(err, servo.ErrClosed),
		errors.Is(err, dispatch.ErrUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// handleStatus returns a summary of every component.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	rig := s.deps.Rig
	groups := make([]fiber.Map, 0, 3)
	for _, st := range rig.Snapshots() {
		groups = append(groups, fiber.Map{
			"name":      st.Name,
			"mode":      st.ModeName,
			"running":   st.Running,
			"positions": st.Positions(),
		})
	}

	status := fiber.Map{
		"groups":   groups,
		"settings": s.deps.Dispatcher.Settings(),
		"sessions": s.Sessions(),
	}
	if rig.Lights != nil {
		status["light"] = rig.Lights.Mode()
	}
	if rig.Switches != nil {
		status["switches"] = rig.Switches.State()
	}
	if s.deps.Monitor != nil {
		status["monitor"] = s.deps.Monitor.Stats()
	}
	if s.deps.Telemetry != nil {
		status["telemetry"] = s.deps.Telemetry.Stats()
	}
	if s.deps.Frames != nil {
		status["frames"] = s.deps.Frames.Frames()
	}
	return c.JSON(status)
}

// handleInfo returns host health.
func (s *Server) handleInfo(c *fiber.Ctx) error {
	if s.deps.Info == nil {
		return fail(c, dispatch.ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), infoTimeout)
	defer cancel()

	info, err := s.deps.Info.Read(ctx)
	resp := fiber.Map{"info": info}
	if err != nil {
		resp["warning"] = err.Error()
	}
	return c.JSON(resp)
}

// handleCommand runs a command-channel request over HTTP.
func (s *Server) handleCommand(c *fiber.Ctx) error {
	resp := s.deps.Dispatcher.Dispatch(c.UserContext(), c.Body())
	return c.JSON(resp)
}

// =============================================================================
// Servo groups
// =============================================================================

// GoalRequest is the body of POST /servos/:group/goal. With speeds the
// move runs at constant speed, otherwise it is timed.
type GoalRequest struct {
	IDs    []int     `json:"ids"`
	Angles []float64 `json:"angles"`
	Speeds []float64 `json:"speeds,omitempty"`
}

// WiggleRequest is the body of POST /servos/:group/wiggle.
type WiggleRequest struct {
	ID        int     `json:"id"`
	Direction int     `json:"direction"`
	Speed     float64 `json:"speed"`
}

// InitRequest is the body of POST /servos/:group/init. Without ids the
// whole group returns to rest.
type InitRequest struct {
	IDs []int `json:"ids,omitempty"`
}

// RawRequest is the body of POST /servos/:group/raw.
type RawRequest struct {
	ID    int `json:"id"`
	Value int `json:"value"`
}

// InitPositionRequest is the body of PUT /servos/:group/init-position.
type InitPositionRequest struct {
	ID    int  `json:"id"`
	Value int  `json:"value"`
	Move  bool `json:"move"`
}

func (s *Server) group(c *fiber.Ctx) (robot.ServoGroup, error) {
	return s.deps.Rig.Group(c.Params("group"))
}

// servoReply returns the group state after a successful command.
func servoReply(c *fiber.Ctx, g robot.ServoGroup, err error) error {
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(g.Snapshot())
}

func (s *Server) handleServoState(c *fiber.Ctx) error {
	g, err := s.group(c)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(g.Snapshot())
}

func (s *Server) handleServoGoal(c *fiber.Ctx) error {
	g, err := s.group(c)
	if err != nil {
		return fail(c, err)
	}
	var req GoalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if req.Speeds != nil {
		return servoReply(c, g, g.SetGoalAngleWithSpeed(req.IDs, req.Angles, req.Speeds))
	}
	return servoReply(c, g, g.SetGoalAngle(req.IDs, req.Angles))
}

func (s *Server) handleServoWiggle(c *fiber.Ctx) error {
	g, err := s.group(c)
	if err != nil {
		return fail(c, err)
	}
	var req WiggleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	return servoReply(c, g, g.Wiggle(req.ID, req.Direction, req.Speed))
}

func (s *Server) handleServoStop(c *fiber.Ctx) error {
	g, err := s.group(c)
	if err != nil {
		return fail(c, err)
	}
	g.StopWiggle()
	return c.JSON(g.Snapshot())
}

func (s *Server) handleServoResume(c *fiber.Ctx) error {
	g, err := s.group(c)
	if err != nil {
		return fail(c, err)
	}
	return servoReply(c, g, g.Resume())
}

func (s *Server) handleServoInit(c *fiber.Ctx) error {
	g, err := s.group(c)
	if err != nil {
		return fail(c, err)
	}
	var req InitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
	}
	if len(req.IDs) > 0 {
		return servoReply(c, g, g.InitChannels(req.IDs))
	}
	return servoReply(c, g, g.Init())
}

func (s *Server) handleServoRaw(c *fiber.Ctx) error {
	g, err := s.group(c)
	if err != nil {
		return fail(c, err)
	}
	var req RawRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	return servoReply(c, g, g.SetRawPosition(req.ID, req.Value))
}

func (s *Server) handleServoInitPosition(c *fiber.Ctx) error {
	g, err := s.group(c)
	if err != nil {
		return fail(c, err)
	}
	var req InitPositionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := g.SetInitPosition(req.ID, req.Value, req.Move); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"group":          g.Name(),
		"init_positions": g.InitPositions(),
	})
}

// handleCalibration returns the stored rest positions.
func (s *Server) handleCalibration(c *fiber.Ctx) error {
	store := s.deps.Rig.Calibration
	if store == nil {
		return fail(c, dispatch.ErrUnavailable)
	}
	return c.JSON(fiber.Map{
		"init_positions": store.InitPositions(),
		"pwm":            store.Section(calibration.SectionPWM),
	})
}

// =============================================================================
// Camera
// =============================================================================

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.deps.Camera == nil {
		return fail(c, dispatch.ErrUnavailable)
	}
	return c.JSON(s.deps.Camera.GetConfig())
}

// handlePutCamera applies a partial config update or a preset.
func (s *Server) handlePutCamera(c *fiber.Ctx) error {
	if s.deps.Camera == nil {
		return fail(c, dispatch.ErrUnavailable)
	}
	var update camera.Update
	if err := c.BodyParser(&update); err != nil {
		return badRequest(c, err)
	}
	cfg, err := s.deps.Camera.Apply(update)
	if err != nil {
		return fail(c, err)
	}
	s.log.Info("camera config updated", "config", cfg)
	return c.JSON(cfg)
}

func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"presets":      camera.PresetNames(),
		"capabilities": camera.Capabilities(),
	})
}
