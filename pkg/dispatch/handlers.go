package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/calibration"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/protocol"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/robot"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/servo"
)

// =============================================================================
// Camera head
// =============================================================================

// look wiggles the pan or tilt channel until the matching stop word.
func (d *Dispatcher) look(channel, direction int) handler {
	return func(context.Context, *protocol.Request) (interface{}, error) {
		group := d.rig.Pan()
		if channel == robot.TiltChannel {
			group = d.rig.Tilt()
		}
		return nil, group.Wiggle(channel, direction, lookSpeed)
	}
}

func (d *Dispatcher) stopLook(name string) handler {
	return func(context.Context, *protocol.Request) (interface{}, error) {
		group, err := d.rig.Group(name)
		if err != nil {
			return nil, err
		}
		group.StopWiggle()
		return nil, nil
	}
}

// =============================================================================
// Calibration
// =============================================================================

// nudge moves a leg channel's rest position by delta and drives it there.
func (d *Dispatcher) nudge(delta int) handler {
	return func(_ context.Context, req *protocol.Request) (interface{}, error) {
		ch, err := channelArg(req)
		if err != nil {
			return nil, err
		}
		gear := d.rig.Gear()
		value := gear.InitPositions()[ch] + delta
		if err := gear.SetInitPosition(ch, value, true); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// saveInit persists one leg channel's rest position.
func (d *Dispatcher) saveInit(_ context.Context, req *protocol.Request) (interface{}, error) {
	if d.rig.Calibration == nil {
		return nil, fmt.Errorf("%w: calibration store", ErrUnavailable)
	}
	ch, err := channelArg(req)
	if err != nil {
		return nil, err
	}
	value := d.rig.Gear().InitPositions()[ch]
	if err := d.rig.Calibration.Write(calibration.SectionPWM, calibration.InitKey(ch), value); err != nil {
		return nil, err
	}
	d.log.Info("rest position saved", "channel", ch, "value", value)
	return value, nil
}

// applyInit drives every leg channel to its rest position.
func (d *Dispatcher) applyInit(context.Context, *protocol.Request) (interface{}, error) {
	gear := d.rig.Gear()
	return nil, gear.InitChannels(gear.Channels())
}

// resetInit rewrites the stored rest positions to the default. The
// running engines keep their current values until the next start.
func (d *Dispatcher) resetInit(context.Context, *protocol.Request) (interface{}, error) {
	if d.rig.Calibration == nil {
		return nil, fmt.Errorf("%w: calibration store", ErrUnavailable)
	}
	if err := d.rig.Calibration.ResetInitPositions(); err != nil {
		return nil, err
	}
	d.log.Info("stored rest positions reset", "value", servo.DefaultInitPosition)
	return nil, nil
}

func channelArg(req *protocol.Request) (int, error) {
	ch, err := req.IntArg(0)
	if err != nil {
		return 0, err
	}
	if ch < 0 || ch >= servo.NumChannels {
		return 0, fmt.Errorf("%w: channel %d", servo.ErrOutOfRange, ch)
	}
	return ch, nil
}

// =============================================================================
// Peripherals
// =============================================================================

// switchPort handles Switch_<port>_on and Switch_<port>_off.
func (d *Dispatcher) switchPort(_ context.Context, req *protocol.Request) (interface{}, error) {
	parts := strings.Split(req.Word(), "_")
	if len(parts) != 3 || (parts[2] != "on" && parts[2] != "off") {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, req.Word())
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, req.Word())
	}
	if d.rig.Switches == nil {
		return nil, fmt.Errorf("%w: switches", ErrUnavailable)
	}
	if err := d.rig.Switches.Set(port, parts[2] == "on"); err != nil {
		return nil, err
	}
	return d.rig.Switches.State(), nil
}

// stopCV ends any vision mode and turns every switch off.
func (d *Dispatcher) stopCV(context.Context, *protocol.Request) (interface{}, error) {
	if d.rig.Switches != nil {
		d.rig.Switches.AllOff()
	}
	return nil, nil
}

func (d *Dispatcher) lights(fn func(robot.LightController) error) handler {
	return func(context.Context, *protocol.Request) (interface{}, error) {
		if d.rig.Lights == nil {
			return nil, fmt.Errorf("%w: lights", ErrUnavailable)
		}
		if err := fn(d.rig.Lights); err != nil {
			return nil, err
		}
		return d.rig.Lights.Mode(), nil
	}
}

// =============================================================================
// Structured servo commands
// =============================================================================

func (d *Dispatcher) servoCommand(req *protocol.Request) (robot.ServoGroup, *protocol.ServoCommand, error) {
	var cmd protocol.ServoCommand
	if err := req.ParseData(&cmd); err != nil {
		return nil, nil, err
	}
	group, err := d.rig.Group(cmd.Group)
	if err != nil {
		return nil, nil, err
	}
	return group, &cmd, nil
}

func (d *Dispatcher) servoGoal(_ context.Context, req *protocol.Request) (interface{}, error) {
	group, cmd, err := d.servoCommand(req)
	if err != nil {
		return nil, err
	}
	return nil, group.SetGoalAngle(cmd.IDs, cmd.Angles)
}

func (d *Dispatcher) servoSpeed(_ context.Context, req *protocol.Request) (interface{}, error) {
	group, cmd, err := d.servoCommand(req)
	if err != nil {
		return nil, err
	}
	return nil, group.SetGoalAngleWithSpeed(cmd.IDs, cmd.Angles, cmd.Speeds)
}

func (d *Dispatcher) servoWiggle(_ context.Context, req *protocol.Request) (interface{}, error) {
	group, cmd, err := d.servoCommand(req)
	if err != nil {
		return nil, err
	}
	return nil, group.Wiggle(cmd.ID, cmd.Direction, cmd.Speed)
}

func (d *Dispatcher) servoStop(_ context.Context, req *protocol.Request) (interface{}, error) {
	group, _, err := d.servoCommand(req)
	if err != nil {
		return nil, err
	}
	group.StopWiggle()
	return group.Snapshot().Positions(), nil
}

func (d *Dispatcher) servoResume(_ context.Context, req *protocol.Request) (interface{}, error) {
	group, _, err := d.servoCommand(req)
	if err != nil {
		return nil, err
	}
	return nil, group.Resume()
}

// servoInit drives the listed channels to rest immediately, or the whole
// group through the worker when no ids are given.
func (d *Dispatcher) servoInit(_ context.Context, req *protocol.Request) (interface{}, error) {
	group, cmd, err := d.servoCommand(req)
	if err != nil {
		return nil, err
	}
	if len(cmd.IDs) > 0 {
		return nil, group.InitChannels(cmd.IDs)
	}
	return nil, group.Init()
}

func (d *Dispatcher) servoRaw(_ context.Context, req *protocol.Request) (interface{}, error) {
	group, cmd, err := d.servoCommand(req)
	if err != nil {
		return nil, err
	}
	return nil, group.SetRawPosition(cmd.ID, cmd.Value)
}

func (d *Dispatcher) servoInitPos(_ context.Context, req *protocol.Request) (interface{}, error) {
	group, cmd, err := d.servoCommand(req)
	if err != nil {
		return nil, err
	}
	return nil, group.SetInitPosition(cmd.ID, cmd.Value, cmd.Move)
}
