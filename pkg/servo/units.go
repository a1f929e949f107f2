// Package servo implements the multi-channel servo motion engine.
//
// An Engine owns a fixed table of 16 PWM channels and a single worker
// goroutine that interpolates every channel from its current position toward
// its goal. Positions are kept in control-step space (100..520, the legacy
// PCA9685 tick values) and only translated to a physical angle when a Port
// is commanded.
//
// Motion modes:
//   - TimedAuto: reach the goal in a fixed number of equal ticks
//   - ConstantSpeed: move at a per-channel angular speed until the goal
//   - Wiggle: drive one channel in one direction until stopped or a bound
//   - Init: snap every channel to its calibrated rest position
//
// All CommandAPI methods may be called from any goroutine.
package servo

import "math"

// Control-step space and its physical mapping.
const (
	NumChannels = 16

	CtrlRangeMin = 100 // step sent for 0 degrees
	CtrlRangeMax = 520 // step sent for AngleRange degrees
	AngleRange   = 180.0

	DefaultInitPosition = 300
)

const ctrlSpan = CtrlRangeMax - CtrlRangeMin

// ToPhysicalAngle converts a control step into degrees within [0, AngleRange].
// The result is not rounded.
func ToPhysicalAngle(step int) float64 {
	angle := float64(step-CtrlRangeMin) / float64(ctrlSpan) * AngleRange
	return clampf(angle, 0, AngleRange)
}

// StepsFromAngleDelta converts an angle offset in degrees to a step offset.
// Rounds half to even, like every other step computation in this package.
func StepsFromAngleDelta(degrees float64) int {
	return roundStep(degrees * ctrlSpan / AngleRange)
}

// roundStep rounds a fractional step half to even.
func roundStep(v float64) int {
	return int(math.RoundToEven(v))
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampf(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
