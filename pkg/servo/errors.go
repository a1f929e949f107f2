package servo

import "errors"

var (
	// ErrOutOfRange is returned when a channel id or requested position violates channel bounds.
	ErrOutOfRange = errors.New("servo: value out of range")

	// ErrArityMismatch is returned when batch id/value slices differ in length.
	ErrArityMismatch = errors.New("servo: id and value counts differ")

	// ErrInvalidConfig is returned for unusable timing or calibration settings.
	ErrInvalidConfig = errors.New("servo: invalid configuration")

	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("servo: engine closed")
)
