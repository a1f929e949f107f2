package actuator

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tarm/serial"
)

const (
	maestroSetTarget = 0x84
	maestroChannels  = 24
)

// MaestroConfig selects the serial device of a Pololu Maestro.
type MaestroConfig struct {
	Device string // e.g. /dev/ttyACM0
	Baud   int
	Logger *slog.Logger
}

// Maestro drives servos through a Pololu Maestro using the compact protocol.
type Maestro struct {
	mu     sync.Mutex
	port   io.Writer
	closer io.Closer
	log    *slog.Logger
	closed bool
}

// OpenMaestro opens the serial port. The controller auto-detects the baud
// rate from the first byte sent.
func OpenMaestro(cfg MaestroConfig) (*Maestro, error) {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("actuator: open %s: %w", cfg.Device, err)
	}
	m, err := NewMaestro(port, cfg.Logger)
	if err != nil {
		port.Close()
		return nil, err
	}
	m.closer = port
	return m, nil
}

// NewMaestro wraps an already open port.
func NewMaestro(port io.Writer, logger *slog.Logger) (*Maestro, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// 0xaa for baud detection
	if _, err := port.Write([]byte{0xaa}); err != nil {
		return nil, fmt.Errorf("actuator: maestro baud sync: %w", err)
	}
	logger.Info("maestro ready")
	return &Maestro{port: port, log: logger}, nil
}

// Command implements servo.Port.
func (m *Maestro) Command(channel, step int) error {
	if channel < 0 || channel >= maestroChannels {
		return fmt.Errorf("%w: %d", ErrChannel, channel)
	}
	target := quarterMicros(step)
	cmd := []byte{maestroSetTarget, byte(channel), byte(target & 0x7f), byte((target >> 7) & 0x7f)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, err := m.port.Write(cmd); err != nil {
		return fmt.Errorf("actuator: maestro channel %d: %w", channel, err)
	}
	return nil
}

// Close closes the serial port if this Maestro opened it.
func (m *Maestro) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}
