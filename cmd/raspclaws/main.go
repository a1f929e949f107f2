// RaspClaws controller: servo engines, lights, camera stream and the
// command channel behind one HTTP port.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/AGKireev/Adeept-RaspClaws/internal/config"
	"github.com/AGKireev/Adeept-RaspClaws/internal/log"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/app"
)

func main() {
	cfg := parseFlags()

	level := config.LogLevel()
	if cfg.Debug {
		level = "debug"
	}
	log.Init(level)

	a, err := app.New(cfg)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	if err := a.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() app.Config {
	cfg := app.DefaultConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	addr := flag.String("addr", cfg.Addr, "HTTP listen address (overrides RASPCLAWS_ADDR)")
	static := flag.String("static", cfg.StaticDir, "Directory of the browser UI")
	actuator := flag.String("actuator", cfg.Actuator, "Servo backend: pca9685, maestro, sim")
	i2cBus := flag.String("i2c-bus", "", "I2C bus for the PCA9685 (default: first bus)")
	i2cAddr := flag.Uint("i2c-addr", 0, "PCA9685 I2C address (default 0x40)")
	serialDev := flag.String("serial", "", "Serial device for the Maestro, e.g. /dev/ttyACM0")
	calib := flag.String("calibration", "", "Calibration file (overrides RASPCLAWS_CALIBRATION)")
	spiPort := flag.String("spi", "", "SPI port for the LED strip (default: first port)")
	pixels := flag.Int("pixels", cfg.Pixels, "Number of LEDs on the strip")
	noLights := flag.Bool("no-lights", false, "Disable the LED strip")
	noSwitches := flag.Bool("no-switches", false, "Disable the GPIO switch ports")
	noCamera := flag.Bool("no-camera", false, "Disable the camera stream")
	cameraDev := flag.Int("camera", 0, "Camera device index")
	rate := flag.Duration("telemetry-rate", cfg.MonitorRate, "Telemetry sample interval")
	broker := flag.String("mqtt", "", "MQTT broker URL (overrides MQTT_BROKER)")
	flag.Parse()

	cfg.Debug = *debug
	cfg.Addr, cfg.StaticDir, cfg.Actuator = *addr, *static, *actuator
	cfg.I2CBus, cfg.I2CAddress, cfg.SerialDevice = *i2cBus, uint16(*i2cAddr), *serialDev
	cfg.CalibrationAt, cfg.SPIPort, cfg.Pixels = *calib, *spiPort, *pixels
	cfg.Lights, cfg.Switches, cfg.Camera = !*noLights, !*noSwitches, !*noCamera
	cfg.CameraDev, cfg.MonitorRate, cfg.MQTTBroker = *cameraDev, *rate, *broker

	// Credentials only come from the environment.
	cfg.User = config.User()
	cfg.Password = config.Password()

	return cfg
}
