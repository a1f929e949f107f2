// Package robot assembles the servo engines and peripherals of a RaspClaws
// into one Rig and streams their state.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces that can be composed as needed. Consumers should
// depend only on the interfaces they actually use.
package robot

import (
	"github.com/AGKireev/Adeept-RaspClaws/pkg/light"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/servo"
)

// GoalSetter moves channels toward angle goals.
type GoalSetter interface {
	SetGoalAngle(ids []int, angles []float64) error
	SetGoalAngleWithSpeed(ids []int, angles, speeds []float64) error
}

// Wiggler drives one channel continuously (pan/tilt look commands).
type Wiggler interface {
	Wiggle(id, direction int, speed float64) error
	StopWiggle()
}

// Calibrator adjusts rest positions.
type Calibrator interface {
	SetInitPosition(id, value int, moveNow bool) error
	InitPositions() [servo.NumChannels]int
	SetInitPositions(positions [servo.NumChannels]int) error
}

// StateReader provides engine snapshots.
type StateReader interface {
	Name() string
	Channels() []int
	Snapshot() servo.State
}

// ServoGroup is the composite interface for one servo engine.
// Use this when you need complete control of a group.
type ServoGroup interface {
	GoalSetter
	Wiggler
	Calibrator
	StateReader

	SetRawPosition(id, step int) error
	MoveAngle(id int, angle float64) error
	InitChannels(ids []int) error
	Init() error
	Pause()
	Resume() error
}

// LightController drives the LED strip.
type LightController interface {
	Police() error
	Breath(c light.Color) error
	Rainbow() error
	Firefly() error
	SetColor(c light.Color) error
	Pause() error
	Mode() light.Mode
}

// SwitchController drives the GPIO switch ports.
type SwitchController interface {
	Set(port int, on bool) error
	AllOff()
	State() map[int]bool
}

// CalibrationStore persists rest positions and other calibration values.
type CalibrationStore interface {
	Write(section, key string, value int) error
	Section(section string) map[string]int
	InitPositions() [servo.NumChannels]int
	SetInitPositions(positions [servo.NumChannels]int) error
	ResetInitPositions() error
}

// Ensure the concrete types implement the interfaces
var (
	_ ServoGroup      = (*servo.Engine)(nil)
	_ LightController = (*light.Engine)(nil)
)
