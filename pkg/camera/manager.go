package camera

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrUnknownPreset = errors.New("camera: unknown preset")
	ErrInvalidConfig = errors.New("camera: invalid config")
)

// Update is a partial config change as sent by PUT /api/camera. Nil fields
// keep their current value. Preset, when set, is applied first and keeps
// the current device.
type Update struct {
	Preset         string `json:"preset,omitempty"`
	Device         *int   `json:"device,omitempty"`
	Width          *int   `json:"width,omitempty"`
	Height         *int   `json:"height,omitempty"`
	Framerate      *int   `json:"framerate,omitempty"`
	Quality        *int   `json:"quality,omitempty"`
	FlipVertical   *bool  `json:"flip_vertical,omitempty"`
	FlipHorizontal *bool  `json:"flip_horizontal,omitempty"`
}

// Manager owns the live capture config. OnConfigChange is called with
// every accepted config, outside the lock; if it fails the previous
// config is restored.
type Manager struct {
	mu     sync.RWMutex
	config Config

	OnConfigChange func(cfg Config) error
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current config.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates and stores cfg, then hands it to OnConfigChange.
func (m *Manager) SetConfig(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	m.mu.Lock()
	prev := m.config
	m.config = cfg
	apply := m.OnConfigChange
	m.mu.Unlock()

	if apply == nil {
		return nil
	}
	if err := apply(cfg); err != nil {
		m.mu.Lock()
		if m.config == cfg {
			m.config = prev
		}
		m.mu.Unlock()
		return fmt.Errorf("camera: apply config: %w", err)
	}
	return nil
}

// Apply merges u into the current config and stores the result.
func (m *Manager) Apply(u Update) (Config, error) {
	cfg := m.GetConfig()
	if u.Preset != "" {
		preset := GetPreset(u.Preset)
		if preset == nil {
			return cfg, fmt.Errorf("%w: %q", ErrUnknownPreset, u.Preset)
		}
		device := cfg.Device
		cfg = *preset
		cfg.Device = device
	}
	setInt(&cfg.Device, u.Device)
	setInt(&cfg.Width, u.Width)
	setInt(&cfg.Height, u.Height)
	setInt(&cfg.Framerate, u.Framerate)
	setInt(&cfg.Quality, u.Quality)
	if u.FlipVertical != nil {
		cfg.FlipVertical = *u.FlipVertical
	}
	if u.FlipHorizontal != nil {
		cfg.FlipHorizontal = *u.FlipHorizontal
	}

	if err := m.SetConfig(cfg); err != nil {
		return m.GetConfig(), err
	}
	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
