package actuator

import (
	"fmt"
	"log/slog"
	"sync"
)

// Command is one recorded port write.
type Command struct {
	Channel int `json:"channel"`
	Step    int `json:"step"`
}

// Recorder is a servo.Port that keeps the last step per channel in memory.
// It backs the simulation mode when no board is attached.
type Recorder struct {
	mu      sync.Mutex
	last    map[int]int
	history []Command
	limit   int
	log     *slog.Logger
}

// NewRecorder keeps up to limit commands of history. A limit of 0 keeps none.
func NewRecorder(limit int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		last:  make(map[int]int),
		limit: limit,
		log:   logger,
	}
}

// Command implements servo.Port.
func (r *Recorder) Command(channel, step int) error {
	if channel < 0 {
		return fmt.Errorf("%w: %d", ErrChannel, channel)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[channel] = step
	if r.limit > 0 {
		r.history = append(r.history, Command{channel, step})
		if len(r.history) > r.limit {
			r.history = r.history[len(r.history)-r.limit:]
		}
	}
	r.log.Debug("simulated servo command", "channel", channel, "step", step)
	return nil
}

// Last returns the last step sent to channel.
func (r *Recorder) Last(channel int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	step, ok := r.last[channel]
	return step, ok
}

// History returns a copy of the retained commands, oldest first.
func (r *Recorder) History() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.history))
	copy(out, r.history)
	return out
}

// Close implements io.Closer.
func (r *Recorder) Close() error {
	return nil
}
