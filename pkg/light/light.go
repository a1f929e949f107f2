// Package light animates the robot's 16-pixel LED strip.
//
// An Engine runs one worker goroutine that renders the active animation
// (police, breath, rainbow, firefly) into a frame buffer and pushes it to a
// Strip. Immediate writes (SetColor, SetSome) and Pause may be issued from
// any goroutine and take effect before the next animation frame.
package light

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultPixels is the pixel count of the stock strip.
const DefaultPixels = 16

// ErrClosed is returned by commands issued after Close.
var ErrClosed = errors.New("light: engine closed")

// Color is an 8-bit RGB triple.
type Color struct {
	R, G, B uint8
}

// Common colors.
var (
	Black = Color{}
	Red   = Color{R: 255}
	Blue  = Color{B: 255}
)

// Scale returns c with every channel multiplied by num/den.
func (c Color) Scale(num, den int) Color {
	return Color{
		R: uint8(int(c.R) * num / den),
		G: uint8(int(c.G) * num / den),
		B: uint8(int(c.B) * num / den),
	}
}

// Gray returns a white of the given brightness.
func Gray(v int) Color {
	u := uint8(max(0, min(255, v)))
	return Color{u, u, u}
}

// Strip receives whole frames, one Color per pixel.
type Strip interface {
	Render(frame []Color) error
}

// Mode names the running animation.
type Mode string

const (
	ModeNone    Mode = "none"
	ModePolice  Mode = "police"
	ModeBreath  Mode = "breath"
	ModeRainbow Mode = "rainbow"
	ModeFirefly Mode = "firefly"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.log = logger
	}
}

// WithPixels sets the strip length.
func WithPixels(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.frame = make([]Color, n)
		}
	}
}

// WithRand sets the randomness source of the firefly animation.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = r
	}
}

// Engine owns the frame buffer and the animation worker.
type Engine struct {
	strip Strip
	log   *slog.Logger
	rng   *rand.Rand

	mu      sync.Mutex
	frame   []Color
	mode    Mode
	breath  Color
	anim    animation
	gen     uint64 // bumped on every mode change
	started bool
	closed  bool

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewEngine creates an idle engine. Call Start to run animations.
func NewEngine(strip Strip, opts ...Option) *Engine {
	e := &Engine{
		strip: strip,
		log:   slog.Default(),
		frame: make([]Color, DefaultPixels),
		mode:  ModeNone,
		kick:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	return e
}

// Start launches the animation worker.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true
	go e.run()
}

// Close stops the worker. The strip keeps its last frame.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		started := e.started
		e.mu.Unlock()
		close(e.stop)
		if started {
			<-e.done
		}
	})
	return nil
}

// Mode returns the running animation, or ModeNone.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Frame returns a copy of the current frame buffer.
func (e *Engine) Frame() []Color {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Color, len(e.frame))
	copy(out, e.frame)
	return out
}

// SetColor paints every pixel immediately.
func (e *Engine) SetColor(c Color) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	fill(e.frame, c)
	return e.renderLocked()
}

// SetSome paints the listed pixels immediately.
func (e *Engine) SetSome(c Color, ids []int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	for _, id := range ids {
		if id < 0 || id >= len(e.frame) {
			return fmt.Errorf("light: pixel %d out of range", id)
		}
	}
	for _, id := range ids {
		e.frame[id] = c
	}
	return e.renderLocked()
}

// Police starts the blue/red strobe.
func (e *Engine) Police() error {
	return e.setMode(ModePolice, Black)
}

// Breath fades c in and out.
func (e *Engine) Breath(c Color) error {
	return e.setMode(ModeBreath, c)
}

// Rainbow cycles a color wheel along the strip.
func (e *Engine) Rainbow() error {
	return e.setMode(ModeRainbow, Black)
}

// Firefly flickers every pixel independently in dim white.
func (e *Engine) Firefly() error {
	return e.setMode(ModeFirefly, Black)
}

// Pause stops the animation and blanks the strip.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.mode = ModeNone
	e.anim = nil
	e.gen++
	e.wakeLocked()
	fill(e.frame, Black)
	return e.renderLocked()
}

func (e *Engine) setMode(mode Mode, c Color) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.mode = mode
	e.breath = c
	e.anim = e.newAnimationLocked()
	e.gen++
	e.wakeLocked()
	e.log.Debug("light mode changed", "mode", mode)
	return nil
}

func (e *Engine) newAnimationLocked() animation {
	n := len(e.frame)
	switch e.mode {
	case ModePolice:
		return newPolice(n)
	case ModeBreath:
		return newBreath(e.breath)
	case ModeRainbow:
		return &rainbow{}
	case ModeFirefly:
		return newFirefly(n, e.rng)
	default:
		return nil
	}
}

func (e *Engine) wakeLocked() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

func (e *Engine) renderLocked() error {
	if err := e.strip.Render(e.frame); err != nil {
		e.log.Warn("led strip write failed", "error", err)
		return fmt.Errorf("light: render: %w", err)
	}
	return nil
}

// run renders one animation frame per iteration and sleeps for the delay
// the animation asks for. A mode change cuts the sleep short.
func (e *Engine) run() {
	defer close(e.done)
	for {
		delay, idle := e.step()
		if idle {
			select {
			case <-e.kick:
			case <-e.stop:
				return
			}
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-e.kick:
			timer.Stop()
		case <-e.stop:
			timer.Stop()
			return
		}
	}
}

// step advances the active animation by one frame.
func (e *Engine) step() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.anim == nil {
		return 0, true
	}
	delay := e.anim.next(e.frame)
	e.renderLocked()
	return delay, false
}

func fill(frame []Color, c Color) {
	for i := range frame {
		frame[i] = c
	}
}
