package ui

// Config contains window/input/audio related settings.
type Config struct {
	Title      string // window title
	Scale      int    // integer upscaling factor
	SampleRate int    // audio output rate
	// Audio buffering target in milliseconds; higher survives stutter,
	// lower reduces latency.
	AudioBufferMs int
}

// Defaults fills missing fields with reasonable values.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "dmg2025"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.AudioBufferMs <= 0 {
		c.AudioBufferMs = 50
	}
}
