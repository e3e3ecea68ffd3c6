package apu

// Duty patterns per Pan Docs: 12.5%, 25%, 50%, 75%.
var dutyTable = [4][8]byte{
	{0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 1, 1, 1},
	{0, 1, 1, 1, 1, 1, 1, 0},
}

// envelope is the shared volume envelope unit of channels 1, 2 and 4.
type envelope struct {
	initial byte // NRx2 bits 4-7
	up      bool // NRx2 bit 3
	period  byte // NRx2 bits 0-2 (0 stops the envelope; the timer reloads as 8)
	volume  byte // current volume 0..15
	timer   byte
}

func (e *envelope) writeReg(v byte) {
	e.initial = v >> 4
	e.up = v&0x08 != 0
	e.period = v & 0x07
}

func (e *envelope) readReg() byte {
	v := e.initial << 4
	if e.up {
		v |= 0x08
	}
	return v | e.period
}

// dacOn reports whether the DAC is powered (NRx2 upper 5 bits non-zero).
func (e *envelope) dacOn() bool { return e.initial != 0 || e.up }

func (e *envelope) trigger() {
	e.volume = e.initial
	e.timer = e.period
	if e.timer == 0 {
		e.timer = 8
	}
}

func (e *envelope) clock() {
	if e.period == 0 {
		return
	}
	if e.timer > 0 {
		e.timer--
	}
	if e.timer == 0 {
		e.timer = e.period
		if e.up && e.volume < 15 {
			e.volume++
		} else if !e.up && e.volume > 0 {
			e.volume--
		}
	}
}

// squareChannel implements channels 1 and 2; the sweep unit is only wired up
// for channel 1.
type squareChannel struct {
	enabled bool
	duty    byte
	length  int
	lenEn   bool
	env     envelope
	freq    uint16
	timer   int
	phase   int

	hasSweep    bool
	sweepPeriod byte
	sweepNeg    bool
	sweepShift  byte
	sweepTimer  byte
	sweepEn     bool
	sweepShadow uint16
}

func (ch *squareChannel) reloadTimer() {
	period := int(4 * (2048 - ch.freq&0x7FF))
	if period < 8 {
		period = 8
	}
	ch.timer = period
}

func (ch *squareChannel) trigger() {
	ch.enabled = ch.env.dacOn()
	if ch.length == 0 {
		ch.length = 64
	}
	ch.phase = 0
	ch.reloadTimer()
	ch.env.trigger()
	if ch.hasSweep {
		ch.sweepShadow = ch.freq & 0x7FF
		ch.sweepEn = ch.sweepPeriod != 0 || ch.sweepShift != 0
		ch.sweepTimer = ch.sweepPeriod
		if ch.sweepTimer == 0 {
			ch.sweepTimer = 8
		}
		if ch.sweepShift != 0 && ch.sweepNext() > 2047 {
			ch.enabled = false
		}
	}
}

// sweepNext computes the next swept frequency from the shadow register.
func (ch *squareChannel) sweepNext() int {
	base := int(ch.sweepShadow)
	delta := base >> ch.sweepShift
	if ch.sweepNeg {
		return base - delta
	}
	return base + delta
}

func (ch *squareChannel) clockSweep() {
	if !ch.enabled || !ch.sweepEn || ch.sweepPeriod == 0 {
		return
	}
	if ch.sweepTimer > 0 {
		ch.sweepTimer--
	}
	if ch.sweepTimer != 0 {
		return
	}
	ch.sweepTimer = ch.sweepPeriod
	nf := ch.sweepNext()
	if nf > 2047 {
		ch.enabled = false
		return
	}
	if ch.sweepShift != 0 {
		ch.sweepShadow = uint16(nf)
		ch.freq = (ch.freq &^ 0x07FF) | uint16(nf)&0x07FF
		ch.reloadTimer()
	}
	if ch.sweepNext() > 2047 {
		ch.enabled = false
	}
}

func (ch *squareChannel) clockLength() {
	if ch.lenEn && ch.length > 0 {
		ch.length--
		if ch.length == 0 {
			ch.enabled = false
		}
	}
}

// tick advances the frequency timer by one T-cycle.
func (ch *squareChannel) tick() {
	if !ch.enabled {
		return
	}
	ch.timer--
	if ch.timer <= 0 {
		ch.reloadTimer()
		ch.phase = (ch.phase + 1) & 7
	}
}

// output is the instantaneous channel value in [-1, +1].
func (ch *squareChannel) output() float64 {
	if !ch.enabled {
		return 0
	}
	amp := float64(ch.env.volume) / 15.0
	if dutyTable[ch.duty][ch.phase] != 0 {
		return amp
	}
	return -amp
}

// waveChannel is channel 3: 32 four-bit samples from wave RAM.
type waveChannel struct {
	enabled bool
	dacEn   bool
	length  int
	lenEn   bool
	volCode byte // 0 mute, 1 100%, 2 50%, 3 25%
	freq    uint16
	timer   int
	pos     int
	ram     [16]byte
}

func (ch *waveChannel) reloadTimer() {
	period := int(2 * (2048 - ch.freq&0x7FF))
	if period < 2 {
		period = 2
	}
	ch.timer = period
}

func (ch *waveChannel) trigger() {
	ch.enabled = ch.dacEn
	if ch.length == 0 {
		ch.length = 256
	}
	ch.pos = 0
	ch.reloadTimer()
}

func (ch *waveChannel) clockLength() {
	if ch.lenEn && ch.length > 0 {
		ch.length--
		if ch.length == 0 {
			ch.enabled = false
		}
	}
}

func (ch *waveChannel) tick() {
	if !ch.enabled {
		return
	}
	ch.timer--
	if ch.timer <= 0 {
		ch.reloadTimer()
		ch.pos = (ch.pos + 1) & 31
	}
}

func (ch *waveChannel) output() float64 {
	if !ch.enabled || !ch.dacEn || ch.volCode == 0 {
		return 0
	}
	b := ch.ram[ch.pos>>1]
	var n byte
	if ch.pos&1 == 0 {
		n = b >> 4
	} else {
		n = b & 0x0F
	}
	v := float64(n)/15*2 - 1
	return v / float64(int(1)<<(ch.volCode-1))
}

// noiseChannel is channel 4: an LFSR clocked from a divisor table.
type noiseChannel struct {
	enabled bool
	length  int
	lenEn   bool
	env     envelope
	shift   byte // NR43 bits 4-7
	width7  bool // NR43 bit 3
	divSel  byte // NR43 bits 0-2
	timer   int
	lfsr    uint16
}

var noiseDivisors = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

func (ch *noiseChannel) reloadTimer() {
	period := noiseDivisors[ch.divSel&7] << ch.shift
	if period < 2 {
		period = 2
	}
	ch.timer = period
}

func (ch *noiseChannel) trigger() {
	ch.enabled = ch.env.dacOn()
	if ch.length == 0 {
		ch.length = 64
	}
	ch.env.trigger()
	ch.lfsr = 0x7FFF
	ch.reloadTimer()
}

func (ch *noiseChannel) clockLength() {
	if ch.lenEn && ch.length > 0 {
		ch.length--
		if ch.length == 0 {
			ch.enabled = false
		}
	}
}

func (ch *noiseChannel) tick() {
	if !ch.enabled {
		return
	}
	ch.timer--
	if ch.timer <= 0 {
		ch.reloadTimer()
		x := (ch.lfsr ^ ch.lfsr>>1) & 1
		ch.lfsr >>= 1
		ch.lfsr |= x << 14
		if ch.width7 {
			ch.lfsr = (ch.lfsr &^ (1 << 6)) | x<<6
		}
	}
}

func (ch *noiseChannel) output() float64 {
	if !ch.enabled {
		return 0
	}
	amp := float64(ch.env.volume) / 15.0
	if ^ch.lfsr&1 != 0 {
		return amp
	}
	return -amp
}
