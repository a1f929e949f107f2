package servo

import (
	"fmt"
	"time"
)

// SetGoalAngle sets per-channel goals as angle offsets from the rest
// position and starts a TimedAuto segment toward them.
func (e *Engine) SetGoalAngle(ids []int, angles []float64) error {
	if len(ids) != len(angles) {
		e.log.Error("servo goal batch rejected", "ids", len(ids), "angles", len(angles))
		return fmt.Errorf("%w: %d ids, %d angles", ErrArityMismatch, len(ids), len(angles))
	}
	return e.setGoals(ModeTimedAuto, ids, angles, nil)
}

// SetGoalAngleWithSpeed is SetGoalAngle with a per-channel speed in degrees
// per second. It runs in ConstantSpeed mode.
func (e *Engine) SetGoalAngleWithSpeed(ids []int, angles, speeds []float64) error {
	if len(ids) != len(angles) || len(ids) != len(speeds) {
		e.log.Error("servo speed batch rejected",
			"ids", len(ids),
			"angles", len(angles),
			"speeds", len(speeds),
		)
		return fmt.Errorf("%w: %d ids, %d angles, %d speeds", ErrArityMismatch, len(ids), len(angles), len(speeds))
	}
	return e.setGoals(ModeConstantSpeed, ids, angles, speeds)
}

func (e *Engine) setGoals(mode Mode, ids []int, angles, speeds []float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	for _, id := range ids {
		if err := e.checkChannel(id); err != nil {
			return err
		}
	}

	e.mode = mode
	for i, id := range ids {
		c := &e.channels[id]
		c.Goal = c.goalFromAngle(angles[i])
		if speeds != nil {
			c.Speed = speeds[i]
		}
	}
	e.resumeLocked()
	return nil
}

// SetInitPosition changes a channel's rest position. The value must lie
// strictly inside the channel bounds. With moveNow the output jumps there.
// While a segment is running only the output moves; the goal and segment
// start are left to the worker, which may overwrite the position on a later tick.
func (e *Engine) SetInitPosition(id, value int, moveNow bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err := e.checkChannel(id); err != nil {
		return err
	}
	c := &e.channels[id]
	if value <= c.MinPos || value >= c.MaxPos {
		return fmt.Errorf("%w: channel %d init position %d not in (%d, %d)", ErrOutOfRange, id, value, c.MinPos, c.MaxPos)
	}

	c.InitPosition = value
	if !moveNow {
		return nil
	}
	if e.running {
		c.Position = value
		return e.commandLocked(id, value)
	}
	return e.snapLocked(c, value)
}

// SetRawPosition writes a control step straight to a channel and pauses the engine.
func (e *Engine) SetRawPosition(id, step int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err := e.checkChannel(id); err != nil {
		return err
	}
	c := &e.channels[id]
	if step < c.MinPos || step > c.MaxPos {
		return fmt.Errorf("%w: channel %d step %d not in [%d, %d]", ErrOutOfRange, id, step, c.MinPos, c.MaxPos)
	}

	e.pauseLocked()
	return e.snapLocked(c, step)
}

// Wiggle moves one channel continuously at speed degrees per second until
// StopWiggle or a bound. Only the sign of direction matters.
func (e *Engine) Wiggle(id, direction int, speed float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err := e.checkChannel(id); err != nil {
		return err
	}
	if direction == 0 {
		return fmt.Errorf("%w: wiggle direction 0", ErrOutOfRange)
	}

	e.commitLocked()
	c := &e.channels[id]
	c.Speed = speed
	c.Buffered = float64(c.Position)
	e.wiggleID = id
	e.wiggleDir = 1
	if direction < 0 {
		e.wiggleDir = -1
	}
	e.mode = ModeWiggle
	e.resumeLocked()
	return nil
}

// StopWiggle halts a wiggle at the current position.
func (e *Engine) StopWiggle() {
	e.Pause()
}

// Pause closes the worker gate and makes the current positions the new
// segment start. It takes effect at the next tick boundary.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseLocked()
}

// Resume reopens the gate without touching mode or goals.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.resumeLocked()
	return nil
}

// Init asks the worker to drive every owned channel to its rest position.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.mode = ModeInit
	e.resumeLocked()
	return nil
}

// InitChannels drives the selected channels straight to their rest
// positions and pauses.
func (e *Engine) InitChannels(ids []int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	for _, id := range ids {
		if err := e.checkChannel(id); err != nil {
			return err
		}
	}

	e.pauseLocked()
	var firstErr error
	for _, id := range ids {
		c := &e.channels[id]
		if err := e.snapLocked(c, c.InitPosition); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MoveAngle jumps one channel to an angle offset from its rest position
// without interpolation.
func (e *Engine) MoveAngle(id int, angle float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err := e.checkChannel(id); err != nil {
		return err
	}
	c := &e.channels[id]
	err := e.snapLocked(c, c.goalFromAngle(angle))
	e.segmentGoals[id] = c.Goal
	return err
}

// InitPositions returns the rest position of every channel.
func (e *Engine) InitPositions() [NumChannels]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out [NumChannels]int
	for i, c := range e.channels {
		out[i] = c.InitPosition
	}
	return out
}

// SetInitPositions replaces the rest position of every owned channel.
// Entries for other channels are ignored. The batch is validated first and
// rejected as a whole. Outputs do not move.
func (e *Engine) SetInitPositions(positions [NumChannels]int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	for i, v := range positions {
		if !e.owned[i] {
			continue
		}
		c := e.channels[i]
		if v <= c.MinPos || v >= c.MaxPos {
			return fmt.Errorf("%w: channel %d init position %d not in (%d, %d)", ErrOutOfRange, i, v, c.MinPos, c.MaxPos)
		}
	}
	for i, v := range positions {
		if e.owned[i] {
			e.channels[i].InitPosition = v
		}
	}
	return nil
}

// SetAutoDuration changes the TimedAuto segment length. The running segment keeps its timing.
func (e *Engine) SetAutoDuration(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := validateAutoTiming(d, e.autoSteps); err != nil {
		return err
	}
	e.autoDuration = d
	return nil
}

// SetTickInterval changes the ConstantSpeed and Wiggle tick period.
func (e *Engine) SetTickInterval(d time.Duration) error {
	if err := validateTickInterval(d); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickInterval = d
	return nil
}

// ErrorCount returns how many port commands have failed since start.
func (e *Engine) ErrorCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorCount
}

// checkChannel rejects ids outside the board and channels another engine owns.
func (e *Engine) checkChannel(id int) error {
	if id < 0 || id >= NumChannels {
		return fmt.Errorf("%w: channel %d", ErrOutOfRange, id)
	}
	if !e.owned[id] {
		return fmt.Errorf("%w: channel %d not owned by %s", ErrOutOfRange, id, e.name)
	}
	return nil
}
