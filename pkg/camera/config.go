// Package camera captures JPEG frames from the robot's camera and serves
// them to any number of MJPEG viewers. Capture settings are tunable at
// runtime through a Manager.
package camera

// Config holds the capture parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	Device    int `json:"device"`    // V4L2 device index
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100

	// The stock camera mount is upside down on some kits.
	FlipVertical   bool `json:"flip_vertical"`
	FlipHorizontal bool `json:"flip_horizontal"`
}

// Limits of the supported USB and CSI cameras.
const (
	MaxWidth     = 1920
	MaxHeight    = 1080
	MaxFramerate = 60
)

// DefaultConfig returns 640x480 at 20 FPS, light enough for a Pi 4 to
// stream while driving servos.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     640,
		Height:    480,
		Framerate: 20,
		Quality:   80,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must be 0 or greater")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 1920")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 1080")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 60")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}

// flipCode returns the gocv flip code for the config, and false if no flip is needed.
func (c Config) flipCode() (int, bool) {
	switch {
	case c.FlipVertical && c.FlipHorizontal:
		return -1, true
	case c.FlipVertical:
		return 0, true
	case c.FlipHorizontal:
		return 1, true
	default:
		return 0, false
	}
}

// Capabilities returns the supported ranges.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"presets":       PresetNames(),
	}
}
