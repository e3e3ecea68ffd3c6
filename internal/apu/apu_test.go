package apu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seqStep = cpuHz / 512

func newPoweredAPU() *APU {
	a := New(48000)
	a.CPUWrite(0xFF24, 0x77) // NR50 full volume
	a.CPUWrite(0xFF25, 0xFF) // NR51 route everything everywhere
	return a
}

func triggerCh2(a *APU, lengthLoad byte, lenEn bool) {
	a.CPUWrite(0xFF16, 0x80|lengthLoad&0x3F) // 50% duty
	a.CPUWrite(0xFF17, 0xF0)                 // full volume, no envelope
	a.CPUWrite(0xFF18, 0x00)
	v := byte(0x87)
	if lenEn {
		v |= 1 << 6
	}
	a.CPUWrite(0xFF19, v)
}

func TestAPU_TriggerEnablesChannel(t *testing.T) {
	a := newPoweredAPU()
	triggerCh2(a, 0, false)
	assert.NotZero(t, a.CPURead(0xFF26)&0x02, "NR52 must report channel 2 on")
}

func TestAPU_DACOffKeepsChannelDisabled(t *testing.T) {
	a := newPoweredAPU()
	a.CPUWrite(0xFF17, 0x00) // DAC off
	a.CPUWrite(0xFF19, 0x80) // trigger
	assert.Zero(t, a.CPURead(0xFF26)&0x02, "trigger with DAC off must not enable")
}

func TestAPU_LengthCounterExpires(t *testing.T) {
	a := newPoweredAPU()
	triggerCh2(a, 63, true) // length = 64-63 = 1

	// length counters clock on even sequencer steps; the first even step
	// fires on the second sequencer tick
	a.Tick(2 * seqStep)
	assert.Zero(t, a.CPURead(0xFF26)&0x02, "length expiry must disable the channel")
}

func TestAPU_LengthReloadsToMaxOnTriggerWithZero(t *testing.T) {
	a := newPoweredAPU()
	triggerCh2(a, 63, true)
	a.Tick(2 * seqStep) // expire (length now 0)

	a.CPUWrite(0xFF19, 0xC7) // trigger with length enabled while length is 0: reloads to 64
	a.Tick(2 * seqStep)
	assert.NotZero(t, a.CPURead(0xFF26)&0x02, "channel must survive one length clock")
}

func TestAPU_EnvelopeDecrements(t *testing.T) {
	a := newPoweredAPU()
	a.CPUWrite(0xFF16, 0x80)
	a.CPUWrite(0xFF17, 0xA1) // volume 10, down, period 1
	a.CPUWrite(0xFF19, 0x80)
	require.Equal(t, byte(10), a.ch2.env.volume)

	// envelope clocks on step 7: once per 8 sequencer ticks
	a.Tick(8 * seqStep)
	assert.Equal(t, byte(9), a.ch2.env.volume)
	a.Tick(8 * seqStep)
	assert.Equal(t, byte(8), a.ch2.env.volume)
}

func TestAPU_Ch1SweepOverflowDisables(t *testing.T) {
	a := newPoweredAPU()
	a.CPUWrite(0xFF10, 0x11) // period 1, add, shift 1
	a.CPUWrite(0xFF11, 0x80)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF13, 0xFF) // freq 0x7FF: first sweep overflows
	a.CPUWrite(0xFF14, 0x87)
	assert.Zero(t, a.CPURead(0xFF26)&0x01, "sweep overflow on trigger must disable channel 1")
}

func TestAPU_NoisePolyRegisterRoundTrip(t *testing.T) {
	a := newPoweredAPU()
	a.CPUWrite(0xFF22, 0x5B)
	assert.Equal(t, byte(0x5B), a.CPURead(0xFF22))
}

func TestAPU_PowerOffClearsRegisters(t *testing.T) {
	a := newPoweredAPU()
	triggerCh2(a, 0, false)
	a.CPUWrite(0xFF26, 0x00) // power off

	assert.Zero(t, a.CPURead(0xFF24)&0x77, "NR50 must clear")
	assert.Zero(t, a.CPURead(0xFF25), "NR51 must clear")
	assert.Zero(t, a.CPURead(0xFF26)&0x0F, "all channels must be off")

	// writes while off are ignored (except NR52 and wave RAM)
	a.CPUWrite(0xFF25, 0xFF)
	assert.Zero(t, a.CPURead(0xFF25))
	a.CPUWrite(0xFF30, 0xAB)
	assert.Equal(t, byte(0xAB), a.CPURead(0xFF30), "wave RAM stays writable")

	a.CPUWrite(0xFF26, 0x80)
	a.CPUWrite(0xFF25, 0xFF)
	assert.Equal(t, byte(0xFF), a.CPURead(0xFF25), "registers writable after power on")
}

func TestAPU_StereoPanning(t *testing.T) {
	a := newPoweredAPU()
	a.CPUWrite(0xFF25, 0x02) // channel 2 right only
	triggerCh2(a, 0, false)

	a.Tick(8192)
	samples := a.PullStereo(1024)
	require.NotEmpty(t, samples)
	var left, right bool
	for i := 0; i+1 < len(samples); i += 2 {
		if samples[i] != 0 {
			left = true
		}
		if samples[i+1] != 0 {
			right = true
		}
	}
	assert.False(t, left, "left channel must stay silent")
	assert.True(t, right, "right channel must carry the tone")
}

func TestAPU_SampleCadence(t *testing.T) {
	a := newPoweredAPU()
	// one simulated second at 48 kHz produces ~48000 stereo frames
	a.Tick(cpuHz)
	got := a.Buffered()
	// the ring caps at its size; it must have filled
	assert.Equal(t, ringSize-1, got, "ring should be full after one second")

	a.TrimTo(100)
	assert.Equal(t, 100, a.Buffered())

	out := a.PullStereo(40)
	assert.Len(t, out, 80, "interleaved stereo: two samples per frame")
	assert.Equal(t, 60, a.Buffered())
}

func TestAPU_VolumeScalarSilences(t *testing.T) {
	a := newPoweredAPU()
	a.SetVolume(0)
	triggerCh2(a, 0, false)
	a.Tick(8192)
	for _, s := range a.PullStereo(512) {
		require.Zero(t, s, "volume 0 must silence the mix")
	}
}
