// Package dispatch turns command-channel requests into robot actions.
//
// The same Dispatcher serves the websocket command channel and MQTT.
// Plain command words ("lookleft", "SiLeft 3", "Switch_1_on") and
// structured servo requests ({"title": "servo_goal", ...}) both produce
// a protocol.Response.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/light"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/protocol"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/robot"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/sysinfo"
)

var (
	// ErrUnknownCommand is returned for a word no handler claims.
	ErrUnknownCommand = errors.New("dispatch: unknown command")
	// ErrUnsupported is returned for gait and computer-vision commands.
	ErrUnsupported = errors.New("dispatch: unsupported")
	// ErrUnavailable is returned when the peripheral a command needs is not attached.
	ErrUnavailable = errors.New("dispatch: peripheral unavailable")
)

// Head look commands wiggle at this speed, in degrees per second.
const lookSpeed = 7

// Defaults for the client-side settings.
const (
	DefaultSpeed = 100
	DefaultMode  = "PT"
)

// breathColor is the idle breathing color.
var breathColor = light.Color{R: 70, G: 70, B: 255}

// InfoReader reads host health.
type InfoReader interface {
	Read(ctx context.Context) (sysinfo.Info, error)
}

// Settings are the client-selected values the command channel keeps.
type Settings struct {
	Speed int    `json:"speed"`
	Mode  string `json:"mode"`
}

// handler runs one command word.
type handler func(ctx context.Context, req *protocol.Request) (interface{}, error)

// Dispatcher routes requests to the rig.
type Dispatcher struct {
	rig  *robot.Rig
	info InfoReader
	log  *slog.Logger

	words    map[string]handler
	prefixes []prefixHandler
	titles   map[string]handler

	mu       sync.Mutex
	settings Settings
}

type prefixHandler struct {
	prefix string
	run    handler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithInfo sets the host health reader used by get_info.
func WithInfo(r InfoReader) Option {
	return func(d *Dispatcher) { d.info = r }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = logger }
}

// New creates a dispatcher for rig.
func New(rig *robot.Rig, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		rig:      rig,
		log:      slog.Default(),
		settings: Settings{Speed: DefaultSpeed, Mode: DefaultMode},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.register()
	return d
}

// Settings returns the current client settings.
func (d *Dispatcher) Settings() Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// Dispatch parses a raw frame and runs it.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) protocol.Response {
	req, err := protocol.ParseRequest(raw)
	if err != nil {
		d.log.Warn("bad request", "error", err)
		return protocol.Error("", err)
	}
	return d.Handle(ctx, req)
}

// Handle runs a parsed request. Errors are reported in the response.
func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Request) protocol.Response {
	title, run := d.lookup(req)
	if run == nil {
		d.log.Warn("unknown command", "command", req.Command, "title", req.Title)
		return protocol.Error(title, ErrUnknownCommand)
	}

	data, err := run(ctx, req)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ErrUnsupported) {
			level = slog.LevelDebug
		}
		d.log.Log(ctx, level, "command failed", "title", title, "error", err)
		return protocol.Error(title, err)
	}
	d.log.Debug("command handled", "title", title)
	return protocol.OK(title, data)
}

func (d *Dispatcher) lookup(req *protocol.Request) (string, handler) {
	if req.Structured() {
		return req.Title, d.titles[req.Title]
	}
	word := req.Word()
	if run, ok := d.words[word]; ok {
		return word, run
	}
	for _, p := range d.prefixes {
		if strings.HasPrefix(word, p.prefix) {
			return word, p.run
		}
	}
	return word, nil
}

func (d *Dispatcher) register() {
	d.words = map[string]handler{
		"lookleft":  d.look(robot.PanChannel, 1),
		"lookright": d.look(robot.PanChannel, -1),
		"LRstop":    d.stopLook(robot.GroupPan),
		"up":        d.look(robot.TiltChannel, -1),
		"down":      d.look(robot.TiltChannel, 1),
		"UDstop":    d.stopLook(robot.GroupTilt),

		"SiLeft":  d.nudge(-1),
		"SiRight": d.nudge(1),
		"PWMMS":   d.saveInit,
		"PWMINIT": d.applyInit,
		"PWMD":    d.resetInit,

		"stopCV":    d.stopCV,
		"police":    d.lights(func(l robot.LightController) error { return l.Police() }),
		"policeOff": d.lights(func(l robot.LightController) error { return l.Pause() }),
		"breath":    d.lights(func(l robot.LightController) error { return l.Breath(breathColor) }),
		"rainbow":   d.lights(func(l robot.LightController) error { return l.Rainbow() }),
		"firefly":   d.lights(func(l robot.LightController) error { return l.Firefly() }),
		"lightsOff": d.lights(func(l robot.LightController) error { return l.Pause() }),

		"get_info": d.getInfo,
		"wsB":      d.setSpeed,
		"AR":       d.setMode("AR"),
		"PT":       d.setMode("PT"),
	}
	for _, w := range unsupportedWords {
		d.words[w] = unsupported
	}
	d.prefixes = []prefixHandler{
		{prefix: "Switch_", run: d.switchPort},
		{prefix: "CVFL", run: unsupported},
	}

	d.titles = map[string]handler{
		protocol.TitleServoGoal:    d.servoGoal,
		protocol.TitleServoSpeed:   d.servoSpeed,
		protocol.TitleServoWiggle:  d.servoWiggle,
		protocol.TitleServoStop:    d.servoStop,
		protocol.TitleServoResume:  d.servoResume,
		protocol.TitleServoInit:    d.servoInit,
		protocol.TitleServoRaw:     d.servoRaw,
		protocol.TitleServoInitPos: d.servoInitPos,
		protocol.TitleFindColorSet: unsupported,
	}
}

// Gait and computer-vision words the browser UI sends.
var unsupportedWords = []string{
	"forward", "backward", "left", "right", "DS", "TS", "KD",
	"automatic", "automaticOff",
	"scan", "findColor", "motionGet", "trackLine", "trackLineOff",
}

func unsupported(_ context.Context, req *protocol.Request) (interface{}, error) {
	name := req.Title
	if name == "" {
		name = req.Word()
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
}

func (d *Dispatcher) getInfo(ctx context.Context, _ *protocol.Request) (interface{}, error) {
	if d.info == nil {
		return nil, fmt.Errorf("%w: system info", ErrUnavailable)
	}
	info, err := d.info.Read(ctx)
	if err != nil {
		// Partial readings are still reported.
		d.log.Warn("system info incomplete", "error", err)
	}
	return info.Legacy(), nil
}

func (d *Dispatcher) setSpeed(_ context.Context, req *protocol.Request) (interface{}, error) {
	speed, err := req.IntArg(0)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings.Speed = speed
	return d.settings, nil
}

func (d *Dispatcher) setMode(mode string) handler {
	return func(context.Context, *protocol.Request) (interface{}, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.settings.Mode = mode
		d.log.Info("control mode selected", "mode", mode)
		return d.settings, nil
	}
}
