package robot

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/servo"
)

// Servo group names.
const (
	GroupGear = "gear" // legs
	GroupPan  = "pan"  // camera pan, channel 12
	GroupTilt = "tilt" // camera tilt, channel 13
)

// Camera head channels.
const (
	PanChannel  = 12
	TiltChannel = 13
)

// GroupChannels returns the channels a servo group drives on the shared
// board. Unknown names get none.
func GroupChannels(name string) []int {
	switch name {
	case GroupGear:
		ids := make([]int, 0, PanChannel)
		for ch := 0; ch < PanChannel; ch++ {
			ids = append(ids, ch)
		}
		return ids
	case GroupPan:
		return []int{PanChannel}
	case GroupTilt:
		return []int{TiltChannel}
	default:
		return nil
	}
}

// ErrUnknownGroup is returned for a servo group name the rig does not have.
var ErrUnknownGroup = errors.New("robot: unknown servo group")

// Rig is the assembled robot. Lights, switches and calibration are optional.
type Rig struct {
	groups map[string]ServoGroup
	order  []string

	Lights      LightController
	Switches    SwitchController
	Calibration CalibrationStore

	log       *slog.Logger
	closers   []io.Closer
	closeOnce sync.Once
	closeErr  error
}

// RigOption configures a Rig.
type RigOption func(*Rig)

// WithLights attaches the LED controller.
func WithLights(l LightController) RigOption {
	return func(r *Rig) { r.Lights = l }
}

// WithSwitches attaches the switch ports.
func WithSwitches(s SwitchController) RigOption {
	return func(r *Rig) { r.Switches = s }
}

// WithCalibration attaches the calibration store.
func WithCalibration(c CalibrationStore) RigOption {
	return func(r *Rig) { r.Calibration = c }
}

// WithCloser registers a resource to release on Close. Closers run in
// reverse registration order.
func WithCloser(c io.Closer) RigOption {
	return func(r *Rig) { r.closers = append(r.closers, c) }
}

// WithRigLogger sets the structured logger.
func WithRigLogger(logger *slog.Logger) RigOption {
	return func(r *Rig) { r.log = logger }
}

// NewRig assembles the three servo groups.
func NewRig(gear, pan, tilt ServoGroup, opts ...RigOption) *Rig {
	r := &Rig{
		groups: map[string]ServoGroup{
			GroupGear: gear,
			GroupPan:  pan,
			GroupTilt: tilt,
		},
		order: []string{GroupGear, GroupPan, GroupTilt},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Gear returns the locomotion group.
func (r *Rig) Gear() ServoGroup { return r.groups[GroupGear] }

// Pan returns the camera pan group.
func (r *Rig) Pan() ServoGroup { return r.groups[GroupPan] }

// Tilt returns the camera tilt group.
func (r *Rig) Tilt() ServoGroup { return r.groups[GroupTilt] }

// Group looks up a servo group by name.
func (r *Rig) Group(name string) (ServoGroup, error) {
	g, ok := r.groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
	}
	return g, nil
}

// GroupNames returns the group names in a stable order.
func (r *Rig) GroupNames() []string {
	return append([]string(nil), r.order...)
}

// Snapshots returns the state of every group, in GroupNames order.
func (r *Rig) Snapshots() []servo.State {
	out := make([]servo.State, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.groups[name].Snapshot())
	}
	return out
}

// ApplyCalibration loads stored rest positions into every group.
func (r *Rig) ApplyCalibration() error {
	if r.Calibration == nil {
		return nil
	}
	positions := r.Calibration.InitPositions()
	var errs []error
	for _, name := range r.order {
		if err := r.groups[name].SetInitPositions(positions); err != nil {
			errs = append(errs, fmt.Errorf("robot: calibrate %s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	r.log.Info("calibration applied", "init_positions", positions)
	return nil
}

// Close releases every registered resource once. Engines stop first so
// no command reaches a closed port.
func (r *Rig) Close() error {
	r.closeOnce.Do(func() {
		if r.Switches != nil {
			r.Switches.AllOff()
		}
		var errs []error
		for i := len(r.closers) - 1; i >= 0; i-- {
			if err := r.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
		r.log.Info("rig closed")
	})
	return r.closeErr
}
