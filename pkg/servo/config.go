package servo

import (
	"fmt"
	"log/slog"
	"time"
)

// Default timing, matching the legacy controller.
const (
	DefaultAutoDuration = 2 * time.Second
	DefaultAutoSteps    = 30
	DefaultTickInterval = 37 * time.Millisecond
)

// Config holds engine timing and per-channel calibration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// TimedAuto: total segment duration split into AutoSteps equal ticks.
	AutoDuration time.Duration
	AutoSteps    int

	// Tick period for ConstantSpeed and Wiggle.
	TickInterval time.Duration

	// Per-channel calibration, in control steps.
	Directions    [NumChannels]int
	MinPos        [NumChannels]int
	MaxPos        [NumChannels]int
	InitPositions [NumChannels]int

	// Channels the engine drives. Empty means all of them.
	Channels []int

	Logger *slog.Logger
}

// Option is a functional option for configuring an Engine.
type Option func(*Config)

// WithLogger sets the structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithAutoTiming sets the TimedAuto segment duration and tick count.
func WithAutoTiming(duration time.Duration, steps int) Option {
	return func(c *Config) {
		c.AutoDuration = duration
		c.AutoSteps = steps
	}
}

// WithTickInterval sets the ConstantSpeed/Wiggle tick period.
func WithTickInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.TickInterval = interval
	}
}

// WithInitPositions sets the calibrated rest positions.
func WithInitPositions(positions [NumChannels]int) Option {
	return func(c *Config) {
		c.InitPositions = positions
	}
}

// WithDirection sets the mounting direction of a channel.
func WithDirection(channel, direction int) Option {
	return func(c *Config) {
		if channel >= 0 && channel < NumChannels {
			c.Directions[channel] = direction
		}
	}
}

// WithBounds narrows the safe range of a channel.
func WithBounds(channel, minPos, maxPos int) Option {
	return func(c *Config) {
		if channel >= 0 && channel < NumChannels {
			c.MinPos[channel] = minPos
			c.MaxPos[channel] = maxPos
		}
	}
}

// WithChannels restricts the engine to the listed channels. Engines that
// share a port must own disjoint sets.
func WithChannels(ids ...int) Option {
	return func(c *Config) {
		c.Channels = append([]int(nil), ids...)
	}
}

// DefaultConfig returns the legacy timing with full-range channels at rest.
func DefaultConfig() Config {
	cfg := Config{
		AutoDuration: DefaultAutoDuration,
		AutoSteps:    DefaultAutoSteps,
		TickInterval: DefaultTickInterval,
		Logger:       slog.Default(),
	}
	for i := 0; i < NumChannels; i++ {
		cfg.Directions[i] = 1
		cfg.MinPos[i] = CtrlRangeMin
		cfg.MaxPos[i] = CtrlRangeMax
		cfg.InitPositions[i] = DefaultInitPosition
	}
	return cfg
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate rejects settings the worker cannot divide by or that break channel bounds.
func (c *Config) Validate() error {
	if err := validateAutoTiming(c.AutoDuration, c.AutoSteps); err != nil {
		return err
	}
	if err := validateTickInterval(c.TickInterval); err != nil {
		return err
	}
	for _, id := range c.Channels {
		if id < 0 || id >= NumChannels {
			return fmt.Errorf("%w: channel %d", ErrInvalidConfig, id)
		}
	}
	for i := 0; i < NumChannels; i++ {
		if c.MinPos[i] >= c.MaxPos[i] {
			return fmt.Errorf("%w: channel %d bounds [%d, %d]", ErrInvalidConfig, i, c.MinPos[i], c.MaxPos[i])
		}
		if c.Directions[i] != 1 && c.Directions[i] != -1 {
			return fmt.Errorf("%w: channel %d direction %d", ErrInvalidConfig, i, c.Directions[i])
		}
		if c.InitPositions[i] < c.MinPos[i] || c.InitPositions[i] > c.MaxPos[i] {
			return fmt.Errorf("%w: channel %d init position %d", ErrInvalidConfig, i, c.InitPositions[i])
		}
	}
	return nil
}

// ownedMask expands Channels into a per-channel flag.
func (c *Config) ownedMask() [NumChannels]bool {
	var mask [NumChannels]bool
	if len(c.Channels) == 0 {
		for i := range mask {
			mask[i] = true
		}
		return mask
	}
	for _, id := range c.Channels {
		mask[id] = true
	}
	return mask
}

func validateAutoTiming(duration time.Duration, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("%w: auto steps %d", ErrInvalidConfig, steps)
	}
	if duration <= 0 {
		return fmt.Errorf("%w: auto duration %v", ErrInvalidConfig, duration)
	}
	return nil
}

func validateTickInterval(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: tick interval %v", ErrInvalidConfig, interval)
	}
	return nil
}
