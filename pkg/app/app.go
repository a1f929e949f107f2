package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AGKireev/Adeept-RaspClaws/internal/log"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/actuator"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/calibration"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/camera"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/dispatch"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/hub"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/light"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/mqttbridge"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/robot"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/servo"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/switches"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/sysinfo"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/web"
)

// startupColor is the breathing color shown once the controller is up.
var startupColor = light.Color{R: 70, G: 70, B: 255}

const shutdownTimeout = 5 * time.Second

// portCloser is a servo port that owns a device handle.
type portCloser interface {
	servo.Port
	io.Closer
}

// App is the assembled controller.
type App struct {
	config Config
	log    *slog.Logger

	rig        *robot.Rig
	dispatcher *dispatch.Dispatcher
	telemetry  *hub.Hub
	monitor    *robot.Monitor
	camera     *camera.Manager
	capture    *camera.Capture
	server     *web.Server
	bridge     *mqttbridge.Bridge

	// openPort and openLights are replaced in tests.
	openPort   func(Config) (portCloser, error)
	openLights func(Config) (light.Strip, io.Closer, error)

	shutdownOnce sync.Once
}

// New creates the app from cfg after applying environment overrides.
func New(cfg Config) (*App, error) {
	cfg.LoadEnvConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		config:     cfg,
		log:        log.Component("app"),
		openPort:   openPort,
		openLights: openLights,
	}, nil
}

// Init opens the hardware and builds every component.
// Call this after New() and before Run().
func (a *App) Init() error {
	cfg := a.config
	a.log.Info("starting raspclaws", "actuator", cfg.Actuator, "addr", cfg.Addr)

	port, err := a.openPort(cfg)
	if err != nil {
		return fmt.Errorf("servo port: %w", err)
	}

	var engines [3]*servo.Engine
	for i, name := range []string{robot.GroupGear, robot.GroupPan, robot.GroupTilt} {
		e, err := servo.NewEngine(name, port,
			servo.WithLogger(log.Component("servo")),
			servo.WithAutoTiming(cfg.AutoDuration, cfg.AutoSteps),
			servo.WithTickInterval(cfg.TickInterval),
			servo.WithChannels(robot.GroupChannels(name)...),
		)
		if err != nil {
			for _, started := range engines[:i] {
				started.Close()
			}
			port.Close()
			return fmt.Errorf("servo engine %s: %w", name, err)
		}
		e.Start()
		engines[i] = e
	}

	opts := []robot.RigOption{
		robot.WithRigLogger(log.Component("rig")),
		robot.WithCloser(port),
	}
	opts = append(opts, a.initPeripherals()...)
	for _, e := range engines {
		opts = append(opts, robot.WithCloser(e))
	}
	a.rig = robot.NewRig(engines[0], engines[1], engines[2], opts...)

	if err := a.rig.ApplyCalibration(); err != nil {
		a.log.Warn("calibration not applied", "error", err)
	}
	if err := a.rig.Gear().Init(); err != nil {
		a.log.Warn("legs not moved to rest", "error", err)
	}

	info := sysinfo.New()
	a.dispatcher = dispatch.New(a.rig,
		dispatch.WithInfo(info),
		dispatch.WithLogger(log.Component("dispatch")),
	)

	a.telemetry = hub.New("telemetry", log.Component("hub"))
	a.monitor = robot.NewMonitor(a.rig, a.rig.Lights, cfg.MonitorRate, log.Component("monitor"))
	a.monitor.AddSink(a.telemetry)

	var frames web.FrameSource
	if cfg.Camera {
		camCfg := camera.DefaultConfig()
		camCfg.Device = cfg.CameraDev
		a.camera = camera.NewManager(camCfg)
		a.capture = camera.NewCapture(nil, log.Component("camera"))
		a.camera.OnConfigChange = a.capture.Apply
		frames = a.capture
	}

	a.server, err = web.New(web.Config{
		Addr:      cfg.Addr,
		StaticDir: cfg.StaticDir,
		User:      cfg.User,
		Password:  cfg.Password,
		Logger:    log.Component("web"),
	}, web.Deps{
		Rig:        a.rig,
		Dispatcher: a.dispatcher,
		Telemetry:  a.telemetry,
		Monitor:    a.monitor,
		Camera:     a.camera,
		Frames:     frames,
		Info:       info,
	})
	if err != nil {
		a.rig.Close()
		return fmt.Errorf("web server: %w", err)
	}

	if cfg.MQTTBroker != "" {
		a.bridge, err = mqttbridge.New(mqttbridge.Config{
			Broker: cfg.MQTTBroker,
			Prefix: cfg.MQTTPrefix,
			Logger: log.Component("mqtt"),
		}, a.dispatcher)
		if err != nil {
			a.rig.Close()
			return fmt.Errorf("mqtt bridge: %w", err)
		}
		a.monitor.AddSink(a.bridge)
	}
	return nil
}

// initPeripherals opens the LED strip, switch ports and calibration store.
// A peripheral that fails to open is left out of the rig.
func (a *App) initPeripherals() []robot.RigOption {
	cfg := a.config
	var opts []robot.RigOption

	if cfg.Lights {
		strip, closer, err := a.openLights(cfg)
		if err != nil {
			a.log.Warn("lights unavailable", "error", err)
		} else {
			lights := light.NewEngine(strip,
				light.WithLogger(log.Component("light")),
				light.WithPixels(cfg.Pixels),
			)
			lights.Start()
			if err := lights.Breath(startupColor); err != nil {
				a.log.Warn("startup lights failed", "error", err)
			}
			if closer != nil {
				opts = append(opts, robot.WithCloser(closer))
			}
			opts = append(opts, robot.WithLights(lights), robot.WithCloser(lights))
		}
	}

	if cfg.Switches && cfg.Actuator != ActuatorSim {
		bank, err := switches.Open(log.Component("switches"))
		if err != nil {
			a.log.Warn("switches unavailable", "error", err)
		} else {
			opts = append(opts, robot.WithSwitches(bank), robot.WithCloser(bank))
		}
	}

	path := cfg.CalibrationAt
	if path == "" {
		var err error
		if path, err = calibration.DefaultPath(); err != nil {
			a.log.Warn("calibration unavailable", "error", err)
			return opts
		}
	}
	store, err := calibration.Open(path)
	if err != nil {
		a.log.Warn("calibration unavailable", "path", path, "error", err)
		return opts
	}
	a.log.Info("calibration loaded", "path", store.Path())
	return append(opts, robot.WithCalibration(store))
}

// Run starts the background loops and blocks until ctx is cancelled or
// the web server fails.
func (a *App) Run(ctx context.Context) error {
	if a.server == nil {
		return errors.New("app: Init not called")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.telemetry.Run(ctx)
	go a.monitor.Run(ctx)
	if a.capture != nil {
		go func() {
			if err := a.capture.Run(ctx, a.camera.GetConfig()); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("camera stopped", "error", err)
			}
		}()
	}
	if a.bridge != nil {
		go func() {
			if err := a.bridge.Connect(ctx); err != nil {
				a.log.Warn("mqtt connect failed", "error", err)
			}
		}()
	}

	a.log.Info("raspclaws ready", "addr", a.config.Addr)
	return a.server.Run(ctx)
}

// Shutdown stops the front ends and releases the hardware. Safe to call
// more than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		if a.bridge != nil {
			a.bridge.Close()
		}
		if a.server != nil {
			if err := a.server.Shutdown(shutdownTimeout); err != nil {
				a.log.Warn("web shutdown", "error", err)
			}
		}
		if a.rig != nil {
			if err := a.rig.Close(); err != nil {
				a.log.Warn("rig close", "error", err)
			}
		}
		a.log.Info("goodbye")
	})
}

// Dispatcher returns the command dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Rig returns the assembled robot.
func (a *App) Rig() *robot.Rig { return a.rig }

func openPort(cfg Config) (portCloser, error) {
	logger := log.Component("actuator")
	switch cfg.Actuator {
	case ActuatorMaestro:
		m, err := actuator.OpenMaestro(actuator.MaestroConfig{Device: cfg.SerialDevice, Logger: logger})
		if err != nil {
			return nil, err
		}
		return m, nil
	case ActuatorSim:
		return actuator.NewRecorder(0, logger), nil
	default:
		p, err := actuator.OpenPCA9685(actuator.PCA9685Config{Bus: cfg.I2CBus, Address: cfg.I2CAddress, Logger: logger})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func openLights(cfg Config) (light.Strip, io.Closer, error) {
	if cfg.Actuator == ActuatorSim {
		return light.Discard{}, nil, nil
	}
	strip, err := light.OpenNRZStrip(cfg.SPIPort, cfg.Pixels)
	if err != nil {
		return nil, nil, err
	}
	return strip, strip, nil
}
