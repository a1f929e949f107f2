package servo

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Port drives the physical outputs. Implementations translate a control
// step into whatever pulse or angle representation the hardware needs.
type Port interface {
	Command(channel, step int) error
}

// unsent marks a channel that has not been commanded since start.
const unsent = -1

// Engine moves up to 16 channels toward their goals on a single worker goroutine.
// A robot typically runs one engine per actuator group (locomotion, pan, tilt),
// all sharing a port. An engine only ever commands the channels it owns.
type Engine struct {
	name string
	port Port
	log  *slog.Logger

	// mu guards everything below. CommandAPI batches and worker sweeps
	// both run under it, so a sweep never sees a half-written batch.
	mu           sync.Mutex
	autoDuration time.Duration
	autoSteps    int
	tickInterval time.Duration
	channels     [NumChannels]Channel
	owned        [NumChannels]bool
	lastSent     [NumChannels]int
	segmentGoals [NumChannels]int // goals captured at segment start
	mode         Mode
	running      bool
	started      bool
	closed       bool
	wiggleID     int
	wiggleDir    int
	errorCount   uint64

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// sleep blocks for d and reports false if the engine is shutting down.
	sleep func(d time.Duration) bool
}

// NewEngine creates an engine with all channels resting at their init positions.
// The worker does not run until Start is called.
func NewEngine(name string, port Port, opts ...Option) (*Engine, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: nil port", ErrInvalidConfig)
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := &Engine{
		name:         name,
		port:         port,
		log:          cfg.Logger.With("engine", name),
		autoDuration: cfg.AutoDuration,
		autoSteps:    cfg.AutoSteps,
		tickInterval: cfg.TickInterval,
		mode:         ModeTimedAuto,
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		owned:        cfg.ownedMask(),
	}
	e.sleep = e.pacingSleep

	for i := range e.channels {
		rest := cfg.InitPositions[i]
		e.channels[i] = Channel{
			Index:        i,
			Position:     rest,
			Buffered:     float64(rest),
			Goal:         rest,
			LastPosition: rest,
			InitPosition: rest,
			Direction:    cfg.Directions[i],
			MinPos:       cfg.MinPos[i],
			MaxPos:       cfg.MaxPos[i],
			Owned:        e.owned[i],
		}
		e.lastSent[i] = unsent
		e.segmentGoals[i] = rest
	}
	return e, nil
}

// Name returns the engine's group name.
func (e *Engine) Name() string {
	return e.name
}

// Channels returns the ids the engine owns, ascending.
func (e *Engine) Channels() []int {
	ids := make([]int, 0, NumChannels)
	for i, ok := range e.owned {
		if ok {
			ids = append(ids, i)
		}
	}
	return ids
}

// Start launches the worker goroutine. Calling it again has no effect.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true
	go e.run()
	e.log.Debug("servo worker started")
}

// Close stops the worker and waits for it to exit. Outputs stay at their
// last commanded position. Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.running = false
		started := e.started
		e.mu.Unlock()

		close(e.stop)
		if started {
			<-e.done
		}
		e.log.Info("servo engine closed")
	})
	return nil
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	mode := e.mode
	if !e.running {
		mode = ModeIdle
	}
	return State{
		Name:     e.name,
		Mode:     mode,
		ModeName: mode.String(),
		Running:  e.running,
		Channels: e.channels,
	}
}

// run is the worker loop: block on the gate, dispatch the mode, repeat.
func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		e.mu.Lock()
		running := e.running
		e.mu.Unlock()

		if !running {
			select {
			case <-e.wake:
			case <-e.stop:
				return
			}
			continue
		}
		e.dispatch()
	}
}

// dispatch runs the current mode's step function once.
// A panic inside a step pauses the engine instead of killing the worker.
func (e *Engine) dispatch() {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("servo step panicked", "panic", r)
			e.Pause()
		}
	}()

	e.mu.Lock()
	mode := e.mode
	e.mu.Unlock()

	switch mode {
	case ModeInit:
		e.moveInit()
	case ModeTimedAuto:
		e.moveAuto()
	case ModeConstantSpeed:
		e.moveSpeed()
	case ModeWiggle:
		e.moveWiggle()
	default:
		e.Pause()
	}
}

// pacingSleep waits for d unless the engine is closed first.
func (e *Engine) pacingSleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-e.stop:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-e.stop:
		return false
	}
}

// pace sleeps whatever is left of tick after the work started at start.
func (e *Engine) pace(tick time.Duration, start time.Time) bool {
	return e.sleep(tick - time.Since(start))
}

// resumeLocked opens the gate and wakes the worker. Caller holds mu.
func (e *Engine) resumeLocked() {
	e.running = true
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// pauseLocked closes the gate and commits positions. Caller holds mu.
func (e *Engine) pauseLocked() {
	e.running = false
	e.commitLocked()
}

// commitLocked makes the current positions the start of the next segment.
func (e *Engine) commitLocked() {
	for i := range e.channels {
		e.channels[i].LastPosition = e.channels[i].Position
	}
}

// captureGoalsLocked records the goals a new segment is heading for.
func (e *Engine) captureGoalsLocked() {
	for i := range e.channels {
		e.segmentGoals[i] = e.channels[i].Goal
	}
}

// preemptedLocked reports whether the running segment of mode must stop:
// the gate closed, the mode changed, or a goal moved since the segment began.
func (e *Engine) preemptedLocked(mode Mode) bool {
	if !e.running || e.mode != mode {
		return true
	}
	for i := range e.channels {
		if e.channels[i].Goal != e.segmentGoals[i] {
			return true
		}
	}
	return false
}

// writeLocked stores a clamped position and commands it if it changed since
// the last send. A failed command stops that channel's motion.
func (e *Engine) writeLocked(c *Channel, pos int) {
	c.Position = clamp(pos, c.MinPos, c.MaxPos)
	if e.lastSent[c.Index] == c.Position {
		return
	}
	if err := e.commandLocked(c.Index, c.Position); err != nil {
		c.Goal = c.Position
		c.LastPosition = c.Position
		e.segmentGoals[c.Index] = c.Goal
		e.lastSent[c.Index] = c.Position
	}
}

// commandLocked sends a step to the port unconditionally.
func (e *Engine) commandLocked(channel, step int) error {
	if err := e.port.Command(channel, step); err != nil {
		e.errorCount++
		e.log.Warn("servo command failed",
			"channel", channel,
			"step", step,
			"error", err,
			"errors", e.errorCount,
		)
		return fmt.Errorf("servo: command channel %d: %w", channel, err)
	}
	e.lastSent[channel] = step
	return nil
}
