package servo

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.AutoDuration != 2*time.Second || cfg.AutoSteps != 30 {
		t.Errorf("auto timing: got %v/%d", cfg.AutoDuration, cfg.AutoSteps)
	}
	if cfg.TickInterval != 37*time.Millisecond {
		t.Errorf("tick interval: got %v", cfg.TickInterval)
	}
	for i := 0; i < NumChannels; i++ {
		if cfg.InitPositions[i] != DefaultInitPosition {
			t.Errorf("channel %d init: got %d", i, cfg.InitPositions[i])
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"zero steps", []Option{WithAutoTiming(time.Second, 0)}},
		{"zero duration", []Option{WithAutoTiming(0, 10)}},
		{"negative tick", []Option{WithTickInterval(-time.Millisecond)}},
		{"inverted bounds", []Option{WithBounds(3, 400, 200)}},
		{"bad direction", []Option{WithDirection(2, 0)}},
		{"init outside bounds", []Option{WithBounds(1, 350, 500)}},
		{"channel past board", []Option{WithChannels(0, NumChannels)}},
		{"negative channel", []Option{WithChannels(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Apply(tt.opts...)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("got %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_OptionsIgnoreBadChannel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apply(WithDirection(99, -1), WithBounds(-1, 0, 1))
	if err := cfg.Validate(); err != nil {
		t.Errorf("out-of-range channel options should be ignored: %v", err)
	}
}

func TestNewEngine_RejectsNilPort(t *testing.T) {
	if _, err := NewEngine("gear", nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("got %v, want ErrInvalidConfig", err)
	}
}
