package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLow     = "low"
	Preset720p    = "720p"
	PresetSmooth  = "smooth"
	PresetFlipped = "flipped"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLow:     LowBandwidthConfig(),
		Preset720p:    HD720Config(),
		PresetSmooth:  SmoothConfig(),
		PresetFlipped: FlippedConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLow,
		Preset720p,
		PresetSmooth,
		PresetFlipped,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LowBandwidthConfig returns 320x240 for weak Wi-Fi links.
func LowBandwidthConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.Quality = 60
	return cfg
}

// HD720Config returns 720p at a reduced framerate.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	cfg.Framerate = 10
	return cfg
}

// SmoothConfig trades quality for 30 FPS.
func SmoothConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 30
	cfg.Quality = 60
	return cfg
}

// FlippedConfig is the default rotated by 180 degrees.
func FlippedConfig() Config {
	cfg := DefaultConfig()
	cfg.FlipVertical = true
	cfg.FlipHorizontal = true
	return cfg
}
