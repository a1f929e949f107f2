// Package app wires the RaspClaws controller: servo engines, peripherals,
// camera, telemetry and the network front ends.
package app

import (
	"fmt"
	"time"

	"github.com/AGKireev/Adeept-RaspClaws/internal/config"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/light"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/robot"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/servo"
)

// Actuator backends.
const (
	ActuatorPCA9685 = "pca9685"
	ActuatorMaestro = "maestro"
	ActuatorSim     = "sim"
)

// Config holds all configuration for the controller.
// Flag parsing is done in cmd/raspclaws/main.go; this struct is data only.
type Config struct {
	// Debug enables verbose debug logging.
	Debug bool

	// HTTP front end.
	Addr      string
	StaticDir string
	User      string
	Password  string

	// Actuator backend and its device.
	Actuator      string // pca9685, maestro or sim
	I2CBus        string // PCA9685 bus, "" for the first
	I2CAddress    uint16
	SerialDevice  string // Maestro port
	CalibrationAt string // calibration file, "" for the default path

	// Servo timing.
	AutoDuration time.Duration
	AutoSteps    int
	TickInterval time.Duration

	// Peripherals. Failing to open one is logged, not fatal.
	Lights    bool
	SPIPort   string
	Pixels    int
	Switches  bool
	Camera    bool
	CameraDev int

	// Telemetry.
	MonitorRate time.Duration

	// MQTT bridge, disabled when Broker is empty.
	MQTTBroker string
	MQTTPrefix string
}

// DefaultConfig returns defaults for a stock robot.
func DefaultConfig() Config {
	return Config{
		Addr:         config.DefaultAddr,
		StaticDir:    "dist",
		User:         config.DefaultUser,
		Password:     config.DefaultPassword,
		Actuator:     ActuatorPCA9685,
		AutoDuration: servo.DefaultAutoDuration,
		AutoSteps:    servo.DefaultAutoSteps,
		TickInterval: servo.DefaultTickInterval,
		Lights:       true,
		Pixels:       light.DefaultPixels,
		Switches:     true,
		Camera:       true,
		MonitorRate:  robot.DefaultMonitorRate,
		MQTTPrefix:   config.DefaultMQTTPrefix,
	}
}

// LoadEnvConfig fills unset values from the environment.
func (c *Config) LoadEnvConfig() {
	if c.Addr == "" || c.Addr == config.DefaultAddr {
		c.Addr = config.Addr()
	}
	if c.User == config.DefaultUser {
		c.User = config.User()
	}
	if c.Password == config.DefaultPassword {
		c.Password = config.Password()
	}
	if c.CalibrationAt == "" {
		c.CalibrationAt = config.CalibrationPath()
	}
	if c.MQTTBroker == "" {
		c.MQTTBroker = config.MQTTBroker()
	}
	if c.MQTTPrefix == "" || c.MQTTPrefix == config.DefaultMQTTPrefix {
		c.MQTTPrefix = config.MQTTPrefix()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Actuator {
	case ActuatorPCA9685, ActuatorSim:
	case ActuatorMaestro:
		if c.SerialDevice == "" {
			return &ConfigError{Field: "SerialDevice", Message: "required for the maestro actuator"}
		}
	default:
		return &ConfigError{Field: "Actuator", Message: fmt.Sprintf("unknown backend %q", c.Actuator)}
	}
	if c.Addr == "" {
		return &ConfigError{Field: "Addr", Message: "listen address required"}
	}
	if c.Pixels <= 0 {
		return &ConfigError{Field: "Pixels", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s - %s", e.Field, e.Message)
}
