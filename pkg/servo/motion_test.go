package servo

import (
	"testing"
	"time"
)

func TestMoveAuto_ConvergesAndPauses(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	if err := e.SetGoalAngle([]int{0}, []float64{400}); err != nil {
		t.Fatalf("SetGoalAngle: %v", err)
	}
	if got := e.Snapshot().Channels[0].Goal; got != CtrlRangeMax {
		t.Fatalf("goal: got %d, want clamp to %d", got, CtrlRangeMax)
	}

	e.moveAuto()

	s := e.Snapshot()
	if s.Running {
		t.Error("engine should pause after the segment")
	}
	if s.Channels[0].Position != CtrlRangeMax || s.Channels[0].LastPosition != CtrlRangeMax {
		t.Errorf("channel 0: position %d last %d, want %d", s.Channels[0].Position, s.Channels[0].LastPosition, CtrlRangeMax)
	}

	sent := port.steps(0)
	if len(sent) != DefaultAutoSteps {
		t.Fatalf("sent %d steps, want %d", len(sent), DefaultAutoSteps)
	}
	prev := DefaultInitPosition
	for i, step := range sent {
		if step <= prev {
			t.Errorf("tick %d: step %d not above %d", i, step, prev)
		}
		prev = step
	}
	if sent[0] != 307 {
		t.Errorf("first tick: got %d, want 307", sent[0])
	}
}

func TestMoveAuto_DeadZoneSkipsIdleChannels(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)
	e.SetGoalAngle([]int{0}, []float64{30})

	e.moveAuto()

	// Idle channels are commanded once, then left alone.
	if got := len(port.steps(5)); got != 1 {
		t.Errorf("idle channel commanded %d times, want 1", got)
	}
}

func TestMoveAuto_GoalChangeRestartsSegment(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	sleeps := 0
	e.sleep = func(time.Duration) bool {
		sleeps++
		if sleeps == 5 {
			e.SetGoalAngle([]int{0}, []float64{-100})
		}
		return true
	}

	e.SetGoalAngle([]int{0}, []float64{90})
	e.moveAuto()

	s := e.Snapshot()
	if !s.Running {
		t.Fatal("preempted segment must leave the engine running")
	}
	mid := s.Channels[0].Position
	if mid <= DefaultInitPosition || mid >= 510 {
		t.Fatalf("interrupted at %d, want partway up", mid)
	}
	if s.Channels[0].LastPosition != mid {
		t.Errorf("last %d not committed to %d", s.Channels[0].LastPosition, mid)
	}

	e.moveAuto()

	s = e.Snapshot()
	if s.Running {
		t.Error("second segment should complete and pause")
	}
	if s.Channels[0].Position != CtrlRangeMin {
		t.Errorf("position: got %d, want %d", s.Channels[0].Position, CtrlRangeMin)
	}
	sent := port.steps(0)
	if sent[len(sent)-1] != CtrlRangeMin {
		t.Errorf("last command %d, want %d", sent[len(sent)-1], CtrlRangeMin)
	}
}

func TestMoveSpeed_GoalChangeRestartsSegment(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	sleeps := 0
	e.sleep = func(time.Duration) bool {
		sleeps++
		if sleeps == 5 {
			e.SetGoalAngleWithSpeed([]int{0}, []float64{-60}, []float64{60})
		}
		return true
	}

	if err := e.SetGoalAngleWithSpeed([]int{0}, []float64{60}, []float64{60}); err != nil {
		t.Fatalf("SetGoalAngleWithSpeed: %v", err)
	}
	e.moveSpeed()

	s := e.Snapshot()
	if !s.Running || s.Mode != ModeConstantSpeed {
		t.Fatalf("preempted segment must leave the engine running: running=%v mode=%s", s.Running, s.ModeName)
	}
	mid := s.Channels[0].Position
	if mid <= DefaultInitPosition || mid >= 440 {
		t.Fatalf("interrupted at %d, want partway up", mid)
	}
	if s.Channels[0].LastPosition != mid {
		t.Errorf("last %d not committed to %d", s.Channels[0].LastPosition, mid)
	}
	if s.Channels[0].Goal != 160 {
		t.Errorf("goal: got %d, want 160", s.Channels[0].Goal)
	}

	e.moveSpeed()

	s = e.Snapshot()
	if s.Running {
		t.Error("second segment should converge and pause")
	}
	if s.Channels[0].Position != 160 {
		t.Errorf("position: got %d, want 160", s.Channels[0].Position)
	}
	sent := port.steps(0)
	turn := -1
	for i, step := range sent {
		if step == mid {
			turn = i
		}
	}
	if turn < 0 {
		t.Fatalf("interrupt position %d never commanded: %v", mid, sent)
	}
	for i := turn + 1; i < len(sent); i++ {
		if sent[i] >= sent[i-1] {
			t.Errorf("tick %d: %d after %d, want falling", i, sent[i], sent[i-1])
		}
	}
	if sent[len(sent)-1] != 160 {
		t.Errorf("last command %d, want 160", sent[len(sent)-1])
	}
}

func TestMoveAuto_PortErrorStopsChannel(t *testing.T) {
	port := &mockPort{fail: map[int]bool{0: true}}
	e := newTestEngine(t, port)

	e.SetGoalAngle([]int{0, 1}, []float64{60, 60})
	e.moveAuto()

	s := e.Snapshot()
	if s.Channels[0].Goal != s.Channels[0].Position {
		t.Errorf("failing channel goal %d, position %d: want stopped", s.Channels[0].Goal, s.Channels[0].Position)
	}
	if s.Channels[1].Position != 440 {
		t.Errorf("healthy channel: got %d, want 440", s.Channels[1].Position)
	}
	if e.ErrorCount() == 0 {
		t.Error("error count not incremented")
	}
}

func TestMoveSpeed_MonotonicNoOvershoot(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	if err := e.SetGoalAngleWithSpeed([]int{0, 1}, []float64{60, -60}, []float64{60, 45}); err != nil {
		t.Fatalf("SetGoalAngleWithSpeed: %v", err)
	}
	e.moveSpeed()

	s := e.Snapshot()
	if s.Running {
		t.Error("engine should pause once converged")
	}
	if s.Channels[0].Position != 440 || s.Channels[1].Position != 160 {
		t.Errorf("positions: got %d/%d, want 440/160", s.Channels[0].Position, s.Channels[1].Position)
	}

	up := port.steps(0)
	for i := 1; i < len(up); i++ {
		if up[i] <= up[i-1] || up[i] > 440 {
			t.Errorf("channel 0 tick %d: %d after %d", i, up[i], up[i-1])
		}
	}
	down := port.steps(1)
	for i := 1; i < len(down); i++ {
		if down[i] >= down[i-1] || down[i] < 160 {
			t.Errorf("channel 1 tick %d: %d after %d", i, down[i], down[i-1])
		}
	}
	// 140 steps at 5.18 steps per tick; 439.86 rounds onto the goal.
	if len(up) != 27 {
		t.Errorf("channel 0 ticks: got %d, want 27", len(up))
	}
}

func TestMoveSpeed_DirectionIsApplied(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port, WithDirection(3, -1))

	e.SetGoalAngleWithSpeed([]int{3}, []float64{60}, []float64{90})
	e.moveSpeed()

	if got := e.Snapshot().Channels[3].Position; got != 160 {
		t.Errorf("reversed channel: got %d, want 160", got)
	}
}

func TestMoveSpeed_TooSlowStalls(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	e.SetGoalAngleWithSpeed([]int{0}, []float64{30}, []float64{0.1})
	e.moveSpeed()

	s := e.Snapshot()
	if s.Running {
		t.Error("stalled segment should pause")
	}
	if s.Channels[0].Goal != DefaultInitPosition || s.Channels[0].Position != DefaultInitPosition {
		t.Errorf("stalled channel: goal %d position %d", s.Channels[0].Goal, s.Channels[0].Position)
	}
	if n := len(port.steps(0)); n != 0 {
		t.Errorf("stalled channel commanded %d times", n)
	}
}

func TestMoveWiggle_StopsAtBound(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	if err := e.Wiggle(0, 1, 180); err != nil {
		t.Fatalf("Wiggle: %v", err)
	}
	for i := 0; i < 100 && e.Snapshot().Running; i++ {
		e.moveWiggle()
	}

	s := e.Snapshot()
	if s.Running {
		t.Fatal("wiggle never reached the bound")
	}
	if s.Channels[0].Position != CtrlRangeMax {
		t.Errorf("position: got %d, want %d", s.Channels[0].Position, CtrlRangeMax)
	}
	sent := port.steps(0)
	if len(sent) == 0 {
		t.Fatal("no wiggle commands")
	}
	for _, step := range sent {
		if step >= CtrlRangeMax {
			t.Errorf("commanded %d at or beyond the bound", step)
		}
	}
}

func TestMoveWiggle_StopWiggleHolds(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	e.Wiggle(12, -1, 30)
	e.moveWiggle()
	e.moveWiggle()
	e.StopWiggle()
	held := e.Snapshot().Channels[12].Position
	e.moveWiggle()

	s := e.Snapshot()
	if s.Running {
		t.Error("engine still running after StopWiggle")
	}
	if s.Channels[12].Position != held || held >= DefaultInitPosition {
		t.Errorf("position %d, held %d", s.Channels[12].Position, held)
	}
	if s.Channels[12].LastPosition != held {
		t.Errorf("last %d not committed", s.Channels[12].LastPosition)
	}
}

func TestMoveInit_DrivesAllChannels(t *testing.T) {
	port := &mockPort{}
	var rest [NumChannels]int
	for i := range rest {
		rest[i] = 200 + i*10
	}
	e := newTestEngine(t, port, WithInitPositions(rest))
	e.SetGoalAngle([]int{0}, []float64{45})
	e.moveAuto()

	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	e.moveInit()

	s := e.Snapshot()
	if s.Running {
		t.Error("init should pause")
	}
	for i, c := range s.Channels {
		if c.Position != rest[i] || c.Goal != rest[i] || c.LastPosition != rest[i] {
			t.Errorf("channel %d: %+v", i, c)
		}
		steps := port.steps(i)
		if len(steps) == 0 || steps[len(steps)-1] != rest[i] {
			t.Errorf("channel %d not commanded to %d", i, rest[i])
		}
	}
}
