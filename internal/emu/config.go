package emu

// Config contains settings fixed at machine construction.
type Config struct {
	SampleRate int // audio output rate in Hz
}

// Defaults fills missing fields.
func (c *Config) Defaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
}

// Options are runtime knobs from the host. The core only interprets Volume;
// palette and the post-processing parameters are display-side and merely
// stored for the frontend to read back.
type Options struct {
	Palette   [4][3]byte // RGB per shade, darkest last
	Volume    float64    // 0..1, post-mix scalar
	Scanlines float64    // display-only
	Glow      float64    // display-only
}

// DefaultOptions returns full volume and the classic green palette.
func DefaultOptions() Options {
	return Options{
		Palette: [4][3]byte{
			{0xE0, 0xF8, 0xD0},
			{0x88, 0xC0, 0x70},
			{0x34, 0x68, 0x56},
			{0x08, 0x18, 0x20},
		},
		Volume: 1.0,
	}
}

// Button identifies one joypad line.
type Button int

const (
	BtnRight Button = iota
	BtnLeft
	BtnUp
	BtnDown
	BtnA
	BtnB
	BtnSelect
	BtnStart
)

// Buttons is a full joypad snapshot for hosts that poll all keys per frame.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}
