package actuator

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"
)

const pcaChannels = 16

// PCA9685Config selects the bus and chip.
type PCA9685Config struct {
	Bus     string // i2creg name, "" for the first bus
	Address uint16 // defaults to 0x40
	Logger  *slog.Logger
}

// pwmSetter is the subset of *pca9685.Dev the port uses.
type pwmSetter interface {
	SetPwm(channel int, on, off gpio.Duty) error
}

// PCA9685 drives servos through a PCA9685 PWM board. The control step is
// written as the off tick with the on tick at 0.
type PCA9685 struct {
	mu     sync.Mutex
	dev    pwmSetter
	bus    i2c.BusCloser
	log    *slog.Logger
	closed bool
}

// OpenPCA9685 initializes the host drivers, opens the I2C bus and sets the
// board to 50 Hz.
func OpenPCA9685(cfg PCA9685Config) (*PCA9685, error) {
	if cfg.Address == 0 {
		cfg.Address = pca9685.I2CAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("actuator: host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("actuator: open i2c %q: %w", cfg.Bus, err)
	}
	dev, err := pca9685.NewI2C(bus, cfg.Address)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("actuator: pca9685 at 0x%02x: %w", cfg.Address, err)
	}
	if err := dev.SetPwmFreq(50 * physic.Hertz); err != nil {
		bus.Close()
		return nil, fmt.Errorf("actuator: set pwm frequency: %w", err)
	}

	cfg.Logger.Info("pca9685 ready", "bus", bus.String(), "address", fmt.Sprintf("0x%02x", cfg.Address))
	return &PCA9685{dev: dev, bus: bus, log: cfg.Logger}, nil
}

// Command implements servo.Port.
func (p *PCA9685) Command(channel, step int) error {
	if channel < 0 || channel >= pcaChannels {
		return fmt.Errorf("%w: %d", ErrChannel, channel)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.dev.SetPwm(channel, 0, gpio.Duty(step))
}

// Close releases the bus. Outputs keep their last duty cycle.
func (p *PCA9685) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.bus == nil {
		return nil
	}
	return p.bus.Close()
}
