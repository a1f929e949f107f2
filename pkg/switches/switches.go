// Package switches controls the three GPIO-driven switch ports on the
// robot HAT (BCM 5, 6 and 13).
package switches

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// ErrPort is returned for a port number other than 1, 2 or 3.
var ErrPort = errors.New("switches: bad port")

// Ports maps switch port numbers to BCM pins.
var Ports = map[int]int{
	1: 5,
	2: 6,
	3: 13,
}

// outputPin is the part of rpio.Pin a switch needs.
type outputPin interface {
	Output()
	High()
	Low()
}

// Bank drives the switch ports and remembers their state.
type Bank struct {
	mu    sync.Mutex
	pins  map[int]outputPin
	state map[int]bool
	log   *slog.Logger
	close func() error
}

// Open maps GPIO memory and configures every port as an output, switched off.
func Open(logger *slog.Logger) (*Bank, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("switches: gpio open: %w", err)
	}
	pins := make(map[int]outputPin, len(Ports))
	for port, bcm := range Ports {
		pins[port] = rpio.Pin(bcm)
	}
	b := newBank(pins, logger)
	b.close = rpio.Close
	return b, nil
}

func newBank(pins map[int]outputPin, logger *slog.Logger) *Bank {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bank{
		pins:  pins,
		state: make(map[int]bool, len(pins)),
		log:   logger,
	}
	for port, pin := range pins {
		pin.Output()
		pin.Low()
		b.state[port] = false
	}
	return b
}

// Set switches a port on or off.
func (b *Bank) Set(port int, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pin, ok := b.pins[port]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPort, port)
	}
	if on {
		pin.High()
	} else {
		pin.Low()
	}
	b.state[port] = on
	b.log.Debug("switch set", "port", port, "on", on)
	return nil
}

// AllOff switches every port off.
func (b *Bank) AllOff() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for port, pin := range b.pins {
		pin.Low()
		b.state[port] = false
	}
}

// State returns whether each port is on.
func (b *Bank) State() map[int]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int]bool, len(b.state))
	for k, v := range b.state {
		out[k] = v
	}
	return out
}

// Close switches everything off and unmaps GPIO memory.
func (b *Bank) Close() error {
	b.AllOff()
	if b.close == nil {
		return nil
	}
	return b.close()
}
