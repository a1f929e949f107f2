package robot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/protocol"
	"github.com/AGKireev/Adeept-RaspClaws/pkg/servo"
)

// DefaultMonitorRate samples state at 10 Hz.
const DefaultMonitorRate = 100 * time.Millisecond

// heartbeatTicks forces a sample out even when nothing moved, so late
// subscribers see the current state.
const heartbeatTicks = 50

// TelemetrySink receives telemetry samples.
type TelemetrySink interface {
	PublishTelemetry(data protocol.TelemetryData) error
}

// SnapshotSource provides engine states for the monitor.
type SnapshotSource interface {
	Snapshots() []servo.State
}

// MonitorStats are the monitor's counters.
type MonitorStats struct {
	Ticks   uint64 `json:"ticks"`
	Skipped uint64 `json:"skipped"`
	Sent    uint64 `json:"sent"`
	Errors  uint64 `json:"errors"`
}

// Monitor samples engine state at a fixed rate and pushes changed samples
// to its sinks. Unchanged samples are skipped (dead-zone), except for a
// periodic heartbeat.
type Monitor struct {
	source SnapshotSource
	lights LightController
	rate   time.Duration
	log    *slog.Logger

	mu    sync.RWMutex
	sinks []TelemetrySink

	// Owned by the Run goroutine.
	lastSent      []servo.State
	lastLight     string
	lastErrorTime time.Time
	seq           uint64

	statsMu sync.Mutex
	stats   MonitorStats
}

// NewMonitor creates a monitor sampling source every rate. lights may be nil.
func NewMonitor(source SnapshotSource, lights LightController, rate time.Duration, logger *slog.Logger) *Monitor {
	if rate <= 0 {
		rate = DefaultMonitorRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		source: source,
		lights: lights,
		rate:   rate,
		log:    logger,
	}
}

// AddSink registers a sink. Safe to call while running.
func (m *Monitor) AddSink(s TelemetrySink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Stats returns a copy of the counters.
func (m *Monitor) Stats() MonitorStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// Run samples until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick takes one sample and publishes it if it changed.
func (m *Monitor) tick() {
	states := m.source.Snapshots()
	lightMode := ""
	if m.lights != nil {
		lightMode = string(m.lights.Mode())
	}

	m.statsMu.Lock()
	m.stats.Ticks++
	ticks := m.stats.Ticks
	m.statsMu.Unlock()

	heartbeat := ticks%heartbeatTicks == 0
	if !heartbeat && lightMode == m.lastLight && sameStates(states, m.lastSent) {
		m.statsMu.Lock()
		m.stats.Skipped++
		m.statsMu.Unlock()
		return
	}

	m.seq++
	data := telemetryFrom(m.seq, states, lightMode)

	m.mu.RLock()
	sinks := append([]TelemetrySink(nil), m.sinks...)
	m.mu.RUnlock()

	failed := 0
	for _, s := range sinks {
		if err := s.PublishTelemetry(data); err != nil {
			failed++
			// Log errors but don't spam: at most once per 5 seconds
			if m.lastErrorTime.IsZero() || time.Since(m.lastErrorTime) > 5*time.Second {
				m.log.Warn("telemetry sink failed", "error", err)
				m.lastErrorTime = time.Now()
			}
		}
	}

	m.lastSent = states
	m.lastLight = lightMode

	m.statsMu.Lock()
	m.stats.Sent++
	m.stats.Errors += uint64(failed)
	stats := m.stats
	m.statsMu.Unlock()

	if heartbeat {
		m.log.Debug("monitor heartbeat",
			"ticks", stats.Ticks,
			"skipped", stats.Skipped,
			"sent", stats.Sent,
			"errors", stats.Errors,
		)
	}
}

// sameStates compares the fields telemetry carries.
func sameStates(a, b []servo.State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Mode != b[i].Mode || a[i].Running != b[i].Running {
			return false
		}
		for ch := range a[i].Channels {
			if a[i].Channels[ch].Position != b[i].Channels[ch].Position ||
				a[i].Channels[ch].Goal != b[i].Channels[ch].Goal {
				return false
			}
		}
	}
	return true
}

// telemetryFrom converts snapshots into a wire sample.
func telemetryFrom(seq uint64, states []servo.State, lightMode string) protocol.TelemetryData {
	data := protocol.TelemetryData{
		Seq:     seq,
		Engines: make([]protocol.EngineTelemetry, 0, len(states)),
		Light:   lightMode,
	}
	for _, s := range states {
		owned := s.Owned()
		e := protocol.EngineTelemetry{
			Name:      s.Name,
			Mode:      s.ModeName,
			Running:   s.Running,
			Channels:  make([]int, len(owned)),
			Positions: make([]int, len(owned)),
			Goals:     make([]int, len(owned)),
			Angles:    make([]float64, len(owned)),
		}
		for i, c := range owned {
			e.Channels[i] = c.Index
			e.Positions[i] = c.Position
			e.Goals[i] = c.Goal
			e.Angles[i] = c.Angle()
		}
		data.Engines = append(data.Engines, e)
	}
	return data
}
