package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned by a Source that produced an empty frame.
var ErrNoFrame = errors.New("camera: no frame")

// Source produces JPEG-encoded frames.
type Source interface {
	Grab() ([]byte, error)
	Close() error
}

// Opener opens a Source for a config.
type Opener func(cfg Config) (Source, error)

// gocvSource reads a V4L2 device through OpenCV.
type gocvSource struct {
	cap     *gocv.VideoCapture
	img     gocv.Mat
	flipped gocv.Mat
	cfg     Config
}

// OpenGoCV is the default Opener.
func OpenGoCV(cfg Config) (Source, error) {
	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("camera: open device %d: %w", cfg.Device, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	return &gocvSource{
		cap:     vc,
		img:     gocv.NewMat(),
		flipped: gocv.NewMat(),
		cfg:     cfg,
	}, nil
}

func (s *gocvSource) Grab() ([]byte, error) {
	if ok := s.cap.Read(&s.img); !ok || s.img.Empty() {
		return nil, ErrNoFrame
	}
	frame := s.img
	if code, ok := s.cfg.flipCode(); ok {
		gocv.Flip(s.img, &s.flipped, code)
		frame = s.flipped
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{gocv.IMWriteJpegQuality, s.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("camera: encode: %w", err)
	}
	defer buf.Close()
	// GetBytes aliases native memory released by Close.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func (s *gocvSource) Close() error {
	s.img.Close()
	s.flipped.Close()
	return s.cap.Close()
}

// Capture runs the frame loop, keeps the latest frame and fans frames out
// to subscribers. Slow subscribers miss frames rather than block the loop.
type Capture struct {
	open Opener
	log  *slog.Logger

	mu     sync.RWMutex
	latest []byte
	frames uint64
	subs   map[chan []byte]struct{}

	reconfigure chan Config
}

// NewCapture creates a capture loop. A nil opener uses OpenGoCV.
func NewCapture(open Opener, logger *slog.Logger) *Capture {
	if open == nil {
		open = OpenGoCV
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		open:        open,
		log:         logger,
		subs:        make(map[chan []byte]struct{}),
		reconfigure: make(chan Config, 1),
	}
}

// Apply hands a new config to the running loop. It matches the
// Manager.OnConfigChange signature.
func (c *Capture) Apply(cfg Config) error {
	select {
	case <-c.reconfigure:
	default:
	}
	c.reconfigure <- cfg
	return nil
}

// Latest returns the most recent frame.
func (c *Capture) Latest() ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.latest != nil
}

// Frames returns how many frames have been published.
func (c *Capture) Frames() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames
}

// Subscribe returns a channel of frames and a function that ends the subscription.
func (c *Capture) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
		})
	}
}

func (c *Capture) publish(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = frame
	c.frames++
	for ch := range c.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Run captures frames until ctx is done. If the device cannot be opened or
// stops producing frames, it retries after a short backoff.
func (c *Capture) Run(ctx context.Context, cfg Config) error {
	const (
		retryDelay  = 2 * time.Second
		maxFailures = 30
	)

	for {
		src, err := c.open(cfg)
		if err != nil {
			c.log.Warn("camera open failed", "device", cfg.Device, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case cfg = <-c.reconfigure:
				continue
			case <-time.After(retryDelay):
				continue
			}
		}
		c.log.Info("camera started",
			"device", cfg.Device,
			"width", cfg.Width,
			"height", cfg.Height,
			"fps", cfg.Framerate,
		)

		next, err := c.loop(ctx, src, cfg, maxFailures)
		src.Close()
		if err != nil {
			return err
		}
		if next != nil {
			cfg = *next
			continue
		}
		c.log.Warn("camera stopped producing frames, reopening")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// loop grabs frames from src at the configured rate. It returns a new config
// to reopen with, nil after too many consecutive failures, or ctx's error.
func (c *Capture) loop(ctx context.Context, src Source, cfg Config, maxFailures int) (*Config, error) {
	ticker := time.NewTicker(time.Second / time.Duration(cfg.Framerate))
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case next := <-c.reconfigure:
			return &next, nil
		case <-ticker.C:
		}

		frame, err := src.Grab()
		if err != nil {
			failures++
			if failures == 1 {
				c.log.Debug("camera grab failed", "error", err)
			}
			if failures >= maxFailures {
				return nil, nil
			}
			continue
		}
		failures = 0
		c.publish(frame)
	}
}
