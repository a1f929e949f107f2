package servo

import (
	"errors"
	"testing"
	"time"
)

func TestSetGoalAngle_Errors(t *testing.T) {
	e := newTestEngine(t, &mockPort{})

	if err := e.SetGoalAngle([]int{0, 1}, []float64{10}); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("arity: got %v", err)
	}
	if err := e.SetGoalAngleWithSpeed([]int{0}, []float64{10}, nil); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("speed arity: got %v", err)
	}
	if err := e.SetGoalAngle([]int{0, 16}, []float64{10, 10}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("bad id: got %v", err)
	}

	// Rejected batches leave everything untouched.
	s := e.Snapshot()
	if s.Running || s.Channels[0].Goal != DefaultInitPosition {
		t.Errorf("rejected batch mutated state: running=%v goal=%d", s.Running, s.Channels[0].Goal)
	}
}

func TestSetGoalAngle_SetsModeAndResumes(t *testing.T) {
	e := newTestEngine(t, &mockPort{})

	e.SetGoalAngleWithSpeed([]int{2}, []float64{-30}, []float64{20})
	s := e.Snapshot()
	if !s.Running || s.Mode != ModeConstantSpeed {
		t.Errorf("got running=%v mode=%v", s.Running, s.Mode)
	}
	if s.Channels[2].Goal != 230 || s.Channels[2].Speed != 20 {
		t.Errorf("channel 2: %+v", s.Channels[2])
	}

	e.SetGoalAngle([]int{2}, []float64{-30})
	if got := e.Snapshot().ModeName; got != "timed" {
		t.Errorf("mode: got %q, want timed", got)
	}
}

func TestSetInitPosition(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	for _, v := range []int{CtrlRangeMin, CtrlRangeMax, 50} {
		if err := e.SetInitPosition(0, v, true); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("value %d: got %v, want ErrOutOfRange", v, err)
		}
	}
	if port.callCount() != 0 {
		t.Error("rejected init position was commanded")
	}

	if err := e.SetInitPosition(0, 320, false); err != nil {
		t.Fatalf("SetInitPosition: %v", err)
	}
	s := e.Snapshot()
	if s.Channels[0].InitPosition != 320 || s.Channels[0].Position != DefaultInitPosition {
		t.Errorf("without moveNow: %+v", s.Channels[0])
	}

	if err := e.SetInitPosition(1, 280, true); err != nil {
		t.Fatalf("SetInitPosition moveNow: %v", err)
	}
	c := e.Snapshot().Channels[1]
	if c.Position != 280 || c.Goal != 280 || c.LastPosition != 280 || c.Buffered != 280 {
		t.Errorf("with moveNow: %+v", c)
	}
	if got := port.steps(1); len(got) != 1 || got[0] != 280 {
		t.Errorf("commands: %v", got)
	}
}

func TestSetInitPosition_RunningSegmentKeepsGoal(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	if err := e.SetGoalAngle([]int{1}, []float64{60}); err != nil {
		t.Fatalf("SetGoalAngle: %v", err)
	}
	if err := e.SetInitPosition(1, 280, true); err != nil {
		t.Fatalf("SetInitPosition: %v", err)
	}
	s := e.Snapshot()
	c := s.Channels[1]
	if !s.Running || c.Goal != 440 || c.LastPosition != DefaultInitPosition {
		t.Errorf("running segment disturbed: running=%v %+v", s.Running, c)
	}
	if c.Position != 280 || c.InitPosition != 280 {
		t.Errorf("output not moved: %+v", c)
	}
	if got := port.steps(1); len(got) != 1 || got[0] != 280 {
		t.Errorf("commands: %v", got)
	}

	e.moveAuto()
	if got := e.Snapshot().Channels[1].Position; got != 440 {
		t.Errorf("segment did not finish at its goal: %d", got)
	}
}

func TestSetRawPosition(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	if err := e.SetRawPosition(4, 99); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("below range: got %v", err)
	}
	if err := e.SetRawPosition(4, 521); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("above range: got %v", err)
	}

	e.SetGoalAngle([]int{4}, []float64{20})
	if err := e.SetRawPosition(4, CtrlRangeMax); err != nil {
		t.Fatalf("SetRawPosition at bound: %v", err)
	}
	s := e.Snapshot()
	if s.Running {
		t.Error("raw position should pause")
	}
	if s.Channels[4].Position != CtrlRangeMax || s.Channels[4].Goal != CtrlRangeMax {
		t.Errorf("channel 4: %+v", s.Channels[4])
	}
}

func TestWiggle_Validation(t *testing.T) {
	e := newTestEngine(t, &mockPort{})

	if err := e.Wiggle(0, 0, 10); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("zero direction: got %v", err)
	}
	if err := e.Wiggle(-1, 1, 10); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("bad id: got %v", err)
	}
	if err := e.Wiggle(3, -7, 10); err != nil {
		t.Fatalf("Wiggle: %v", err)
	}
	if e.wiggleDir != -1 {
		t.Errorf("direction not normalized: %d", e.wiggleDir)
	}
	if s := e.Snapshot(); !s.Running || s.Mode != ModeWiggle {
		t.Errorf("got running=%v mode=%v", s.Running, s.Mode)
	}
}

func TestPauseResume(t *testing.T) {
	e := newTestEngine(t, &mockPort{})

	e.SetGoalAngle([]int{0}, []float64{30})
	e.Pause()
	s := e.Snapshot()
	if s.Running || s.Mode != ModeIdle {
		t.Errorf("after Pause: running=%v mode=%v", s.Running, s.Mode)
	}

	if err := e.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	s = e.Snapshot()
	if !s.Running || s.Mode != ModeTimedAuto || s.Channels[0].Goal != 370 {
		t.Errorf("after Resume: running=%v mode=%v goal=%d", s.Running, s.Mode, s.Channels[0].Goal)
	}
}

func TestMoveAngle(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	if err := e.MoveAngle(1, 60); err != nil {
		t.Fatalf("MoveAngle: %v", err)
	}
	c := e.Snapshot().Channels[1]
	if c.Position != 440 || c.LastPosition != 440 || c.Goal != 440 {
		t.Errorf("channel 1: %+v", c)
	}
	if got := port.steps(1); len(got) != 1 || got[0] != 440 {
		t.Errorf("commands: %v", got)
	}
	if err := e.MoveAngle(NumChannels, 10); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("bad id: got %v", err)
	}
}

func TestInitChannels(t *testing.T) {
	port := &mockPort{}
	e := newTestEngine(t, port)

	e.MoveAngle(0, 30)
	e.MoveAngle(1, 30)
	if err := e.InitChannels([]int{0}); err != nil {
		t.Fatalf("InitChannels: %v", err)
	}
	s := e.Snapshot()
	if s.Channels[0].Position != DefaultInitPosition {
		t.Errorf("channel 0: got %d", s.Channels[0].Position)
	}
	if s.Channels[1].Position != 370 {
		t.Errorf("unselected channel moved: got %d", s.Channels[1].Position)
	}
	if err := e.InitChannels([]int{0, 20}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("bad id: got %v", err)
	}
}

func TestSetInitPositions(t *testing.T) {
	e := newTestEngine(t, &mockPort{})

	var positions [NumChannels]int
	for i := range positions {
		positions[i] = 250 + i
	}
	positions[7] = CtrlRangeMax
	if err := e.SetInitPositions(positions); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("got %v, want ErrOutOfRange", err)
	}
	if got := e.InitPositions()[0]; got != DefaultInitPosition {
		t.Errorf("rejected batch applied: channel 0 = %d", got)
	}

	positions[7] = 257
	if err := e.SetInitPositions(positions); err != nil {
		t.Fatalf("SetInitPositions: %v", err)
	}
	if got := e.InitPositions(); got != positions {
		t.Errorf("got %v, want %v", got, positions)
	}
}

func TestTimingSetters(t *testing.T) {
	e := newTestEngine(t, &mockPort{})

	if err := e.SetAutoDuration(0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero duration: got %v", err)
	}
	if err := e.SetTickInterval(-time.Second); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("negative tick: got %v", err)
	}
	if err := e.SetAutoDuration(time.Second); err != nil {
		t.Errorf("SetAutoDuration: %v", err)
	}
	if err := e.SetTickInterval(20 * time.Millisecond); err != nil {
		t.Errorf("SetTickInterval: %v", err)
	}
}
