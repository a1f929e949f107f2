// Package calibration persists servo calibration in a YAML file.
//
// The file holds named sections of integer values. Servo rest positions
// live in the "pwm" section under keys init_pwm0 through init_pwm15.
package calibration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/servo"
)

// SectionPWM holds the servo rest positions.
const SectionPWM = "pwm"

// ErrNotFound is returned by Read for a missing section or key.
var ErrNotFound = errors.New("calibration: not found")

// InitKey returns the pwm-section key of a channel's rest position.
func InitKey(channel int) string {
	return fmt.Sprintf("init_pwm%d", channel)
}

// Store is a YAML-backed calibration store. Safe for concurrent use.
type Store struct {
	path     string
	sections map[string]map[string]int
	mu       sync.RWMutex
}

// fileData is the YAML structure of the calibration file.
type fileData struct {
	Version   int                       `yaml:"version"`
	UpdatedAt string                    `yaml:"updated_at"`
	Sections  map[string]map[string]int `yaml:"sections"`
}

const currentVersion = 1

// Open loads the store at path. A missing file is created on first write.
func Open(path string) (*Store, error) {
	s := &Store{
		path:     path,
		sections: make(map[string]map[string]int),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("calibration: create directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DefaultPath returns ~/.raspclaws/calibration.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("calibration: home directory: %w", err)
	}
	return filepath.Join(home, ".raspclaws", "calibration.yaml"), nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("calibration: read %s: %w", s.path, err)
	}
	var stored fileData
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("calibration: parse %s: %w", s.path, err)
	}
	if stored.Sections != nil {
		s.sections = stored.Sections
	}
	return nil
}

// save writes the file atomically. Caller holds mu.
func (s *Store) save() error {
	stored := fileData{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Sections:  s.sections,
	}
	data, err := yaml.Marshal(stored)
	if err != nil {
		return fmt.Errorf("calibration: marshal: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("calibration: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("calibration: rename temp file: %w", err)
	}
	return nil
}

// Read returns one value.
func (s *Store) Read(section, key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.sections[section][key]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrNotFound, section, key)
	}
	return v, nil
}

// Section returns a copy of one section.
func (s *Store) Section(section string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.sections[section]))
	for k, v := range s.sections[section] {
		out[k] = v
	}
	return out
}

// Write stores one value and saves the file.
func (s *Store) Write(section, key string, value int) error {
	return s.WriteSection(section, map[string]int{key: value})
}

// WriteSection merges values into a section and saves the file once.
func (s *Store) WriteSection(section string, values map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[section]
	if !ok {
		sec = make(map[string]int, len(values))
		s.sections[section] = sec
	}
	for k, v := range values {
		sec[k] = v
	}
	return s.save()
}

// InitPositions returns the stored rest positions. Channels without an
// entry get servo.DefaultInitPosition.
func (s *Store) InitPositions() [servo.NumChannels]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out [servo.NumChannels]int
	pwm := s.sections[SectionPWM]
	for i := range out {
		v, ok := pwm[InitKey(i)]
		if !ok {
			v = servo.DefaultInitPosition
		}
		out[i] = v
	}
	return out
}

// SetInitPositions stores every rest position.
func (s *Store) SetInitPositions(positions [servo.NumChannels]int) error {
	values := make(map[string]int, servo.NumChannels)
	for i, v := range positions {
		values[InitKey(i)] = v
	}
	return s.WriteSection(SectionPWM, values)
}

// ResetInitPositions sets every rest position back to the default.
func (s *Store) ResetInitPositions() error {
	var positions [servo.NumChannels]int
	for i := range positions {
		positions[i] = servo.DefaultInitPosition
	}
	return s.SetInitPositions(positions)
}
