package ui

import (
	"encoding/binary"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/emu"
)

// apuStream adapts the machine's stereo PCM output to the io.Reader the
// ebiten audio player consumes (little-endian int16 stereo frames).
type apuStream struct {
	m     *emu.Machine
	rate  int
	muted *bool
}

func (s *apuStream) Read(p []byte) (int, error) {
	if len(p) < 4 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	frames := len(p) / 4
	if s.muted != nil && *s.muted {
		s.m.AudioTrimTo(0)
		zero := frames * 4
		for i := 0; i < zero; i++ {
			p[i] = 0
		}
		return zero, nil
	}
	samples := s.m.AudioPull(frames, s.rate)
	n := 0
	for i := 0; i+1 < len(samples); i += 2 {
		binary.LittleEndian.PutUint16(p[n:], uint16(samples[i]))
		binary.LittleEndian.PutUint16(p[n+2:], uint16(samples[i+1]))
		n += 4
	}
	// pad with silence on underrun so the player never starves
	for n < frames*4 {
		p[n] = 0
		n++
	}
	return n, nil
}

func (a *App) initAudio() error {
	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(a.cfg.SampleRate)
	}
	stream := &apuStream{m: a.m, rate: a.cfg.SampleRate, muted: &a.muted}
	player, err := ctx.NewPlayer(stream)
	if err != nil {
		return err
	}
	player.SetBufferSize(time.Duration(a.cfg.AudioBufferMs) * time.Millisecond)
	a.audioPlayer = player
	player.Play()
	return nil
}

// capAudioLatency keeps the emulator-side ring from accumulating more than
// about two buffers of audio, which matters after fast-forwarding.
func (a *App) capAudioLatency() {
	limit := a.cfg.SampleRate * a.cfg.AudioBufferMs * 2 / 1000
	if a.m.AudioBuffered() > limit {
		a.m.AudioTrimTo(limit)
	}
}
