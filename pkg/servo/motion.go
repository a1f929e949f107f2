package servo

import "time"

// moveInit snaps every owned channel to its rest position and pauses.
func (e *Engine) moveInit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.mode != ModeInit {
		return
	}
	for i := range e.channels {
		if !e.owned[i] {
			continue
		}
		e.snapLocked(&e.channels[i], e.channels[i].InitPosition)
	}
	e.pauseLocked()
	e.log.Debug("servo init complete")
}

// snapLocked moves a channel straight to pos, bypassing interpolation.
func (e *Engine) snapLocked(c *Channel, pos int) error {
	pos = clamp(pos, c.MinPos, c.MaxPos)
	c.Position = pos
	c.LastPosition = pos
	c.Goal = pos
	c.Buffered = float64(pos)
	return e.commandLocked(c.Index, pos)
}

// moveAuto runs one TimedAuto segment: AutoSteps equal ticks from the
// segment start toward the goal. A goal change between ticks commits the
// current positions and returns so the next dispatch starts a fresh segment.
func (e *Engine) moveAuto() {
	e.mu.Lock()
	e.captureGoalsLocked()
	steps := e.autoSteps
	tick := e.autoDuration / time.Duration(steps)
	e.mu.Unlock()

	for i := 0; i < steps; i++ {
		start := time.Now()
		if !e.autoTick(i, steps) {
			return
		}
		if !e.pace(tick, start) {
			return
		}
	}
	e.finishAuto()
}

// autoTick writes tick i of a TimedAuto segment. Returns false if the segment was preempted.
func (e *Engine) autoTick(i, steps int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.preemptedLocked(ModeTimedAuto) {
		e.commitLocked()
		return false
	}
	for ch := range e.channels {
		if !e.owned[ch] {
			continue
		}
		c := &e.channels[ch]
		delta := float64(c.Goal-c.LastPosition) / float64(steps) * float64(i+1)
		e.writeLocked(c, roundStep(float64(c.LastPosition)+delta))
	}
	return true
}

// finishAuto commits a completed segment. The engine pauses unless a new
// goal arrived during the final pacing sleep.
func (e *Engine) finishAuto() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.preemptedLocked(ModeTimedAuto) {
		e.commitLocked()
		return
	}
	e.pauseLocked()
	e.log.Debug("servo auto segment complete")
}

// moveSpeed runs one ConstantSpeed segment until every channel sits on its goal.
func (e *Engine) moveSpeed() {
	e.mu.Lock()
	e.captureGoalsLocked()
	for i := range e.channels {
		e.channels[i].Buffered = float64(e.channels[i].LastPosition)
	}
	tick := e.tickInterval
	e.mu.Unlock()

	for {
		start := time.Now()
		if !e.speedPass(tick) {
			return
		}
		if !e.pace(tick, start) {
			return
		}
	}
}

// speedPass advances every moving owned channel by one tick of its speed.
// Returns false when the segment is finished or preempted.
//
// Each write rounds the float accumulator independently, so positions can
// drift a step from the ideal trajectory over long segments.
func (e *Engine) speedPass(tick time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.preemptedLocked(ModeConstantSpeed) {
		e.commitLocked()
		return false
	}
	if e.convergedLocked() {
		e.pauseLocked()
		e.log.Debug("servo speed segment complete")
		return false
	}

	for ch := range e.channels {
		if !e.owned[ch] {
			continue
		}
		c := &e.channels[ch]
		if c.LastPosition == c.Goal {
			continue
		}
		rate := float64(StepsFromAngleDelta(c.Speed)) * tick.Seconds()
		if rate <= 0 {
			e.stallLocked(c)
			continue
		}
		if c.LastPosition < c.Goal {
			c.Buffered += rate
			e.writeLocked(c, min(roundStep(c.Buffered), c.Goal))
		} else {
			c.Buffered -= rate
			e.writeLocked(c, max(roundStep(c.Buffered), c.Goal))
		}
	}
	e.commitLocked()
	return true
}

// convergedLocked reports whether every owned channel has reached its goal.
func (e *Engine) convergedLocked() bool {
	for i := range e.channels {
		if e.owned[i] && e.channels[i].Position != e.channels[i].Goal {
			return false
		}
	}
	return true
}

// stallLocked stops a channel whose speed rounds to no movement.
func (e *Engine) stallLocked(c *Channel) {
	e.log.Warn("servo speed too low to move, stopping channel",
		"channel", c.Index,
		"speed", c.Speed,
		"position", c.Position,
		"goal", c.Goal,
	)
	c.Goal = c.Position
	e.segmentGoals[c.Index] = c.Goal
}

// moveWiggle advances the wiggle channel by one tick. The worker keeps
// dispatching it until StopWiggle is called or a bound is reached.
func (e *Engine) moveWiggle() {
	start := time.Now()
	tick, ok := e.wiggleTick()
	if !ok {
		return
	}
	e.pace(tick, start)
}

func (e *Engine) wiggleTick() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.mode != ModeWiggle {
		return 0, false
	}

	c := &e.channels[e.wiggleID]
	tick := e.tickInterval
	step := float64(e.wiggleDir*c.Direction) * float64(StepsFromAngleDelta(c.Speed)) * tick.Seconds()
	c.Buffered = clampf(c.Buffered+step, float64(c.MinPos), float64(c.MaxPos))

	pos := roundStep(c.Buffered)
	c.Position = pos
	c.LastPosition = pos

	if c.Buffered > float64(c.MinPos) && c.Buffered < float64(c.MaxPos) {
		e.writeLocked(c, pos)
		return tick, true
	}
	e.pauseLocked()
	e.log.Info("servo wiggle reached limit", "channel", c.Index, "position", pos)
	return tick, true
}
