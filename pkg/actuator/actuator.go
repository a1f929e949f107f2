// Package actuator provides servo.Port implementations for the boards the
// robot can drive: a PCA9685 over I2C, a Pololu Maestro over serial, and an
// in-memory Recorder for simulation and tests.
//
// Every implementation receives PCA9685 control steps (12-bit ticks of a
// 50 Hz period) and converts them to its own signal representation.
package actuator

import (
	"errors"
	"math"
)

var (
	// ErrChannel is returned for a channel the board does not have.
	ErrChannel = errors.New("actuator: bad channel")

	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("actuator: closed")
)

// Period of one PWM frame at 50 Hz, and the PCA9685 resolution within it.
const (
	framePeriodMicros = 20000
	pwmResolution     = 4096
)

// PulseMicros converts a control step to the pulse width it represents, in microseconds.
func PulseMicros(step int) float64 {
	return float64(step) * framePeriodMicros / pwmResolution
}

// quarterMicros converts a control step to Maestro target units (0.25 us).
func quarterMicros(step int) uint16 {
	return uint16(math.Round(PulseMicros(step) * 4))
}
