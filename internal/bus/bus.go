package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/apu"
	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/cart"
	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/ppu"
)

// Interrupt bits in IF/IE.
const (
	IntVBlank = 0
	IntSTAT   = 1
	IntTimer  = 2
	IntSerial = 3
	IntJoypad = 4
)

// Bus arbitrates the 64 KiB address space. It owns WRAM, HRAM, the interrupt
// registers and the peripherals, and routes everything else to the cartridge.
type Bus struct {
	cart cart.Cartridge
	wram [0x2000]byte
	hram [0x7F]byte

	ppu *ppu.PPU
	apu *apu.APU
	tim timer
	joy joypad
	ser serial

	ifReg byte
	ieReg byte

	dmaReg byte
	// T-cycles left in the OAM DMA window. While it runs, everything but
	// HRAM reads back 0xFF to the CPU.
	dmaCycles int
}

func New(c cart.Cartridge, sampleRate int) *Bus {
	b := &Bus{cart: c}
	b.ppu = ppu.New(func(bit int) { b.RequestInterrupt(bit) })
	b.apu = apu.New(sampleRate)
	b.tim.requestIRQ = func() { b.RequestInterrupt(IntTimer) }
	b.joy.requestIRQ = func() { b.RequestInterrupt(IntJoypad) }
	b.ser.requestIRQ = func() { b.RequestInterrupt(IntSerial) }
	b.tim.reset()
	b.joy.reset()
	b.ser.reset()
	return b
}

func (b *Bus) PPU() *ppu.PPU        { return b.ppu }
func (b *Bus) APU() *apu.APU        { return b.apu }
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// SetSerialWriter attaches a sink for bytes sent over the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.ser.out = w }

// SetJoypadState replaces the held-button mask (see Joyp* constants).
func (b *Bus) SetJoypadState(mask byte) { b.joy.SetState(mask) }

// ConsumeJoypadPress reports whether a button was newly pressed since the
// last call. The CPU uses it to resolve STOP.
func (b *Bus) ConsumeJoypadPress() bool {
	ev := b.joy.pressEvent
	b.joy.pressEvent = false
	return ev
}

func (b *Bus) RequestInterrupt(bit int) { b.ifReg |= 1 << bit }

// PendingInterrupts returns IE & IF & 0x1F. The CPU polls this directly so
// interrupt dispatch is not affected by the OAM DMA read gate.
func (b *Bus) PendingInterrupts() byte { return b.ieReg & b.ifReg & 0x1F }

// AcknowledgeInterrupt clears one IF bit at dispatch time.
func (b *Bus) AcknowledgeInterrupt(bit int) { b.ifReg &^= 1 << bit }

func (b *Bus) Read(addr uint16) byte {
	if b.dmaCycles > 0 && !(addr >= 0xFF80 && addr <= 0xFFFE) {
		return 0xFF
	}
	return b.read(addr)
}

func (b *Bus) read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.CPURead(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xE000:
		return b.wram[addr-0xC000]
	case addr < 0xFE00:
		// echo of 0xC000-0xDDFF
		return b.wram[addr-0xE000]
	case addr <= 0xFE9F:
		return b.ppu.CPURead(addr)
	case addr <= 0xFEFF:
		return 0xFF
	case addr == 0xFF00:
		return b.joy.Read()
	case addr == 0xFF01 || addr == 0xFF02:
		return b.ser.Read(addr)
	case addr >= 0xFF04 && addr <= 0xFF07:
		return b.tim.Read(addr)
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF46:
		return b.dmaReg
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFFFF:
		return b.ieReg
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr < 0xA000:
		b.ppu.CPUWrite(addr, value)
	case addr < 0xC000:
		b.cart.Write(addr, value)
	case addr < 0xE000:
		b.wram[addr-0xC000] = value
	case addr < 0xFE00:
		b.wram[addr-0xE000] = value
	case addr <= 0xFE9F:
		b.ppu.CPUWrite(addr, value)
	case addr <= 0xFEFF:
		// prohibited region, ignored
	case addr == 0xFF00:
		b.joy.Write(value)
	case addr == 0xFF01 || addr == 0xFF02:
		b.ser.Write(addr, value)
	case addr >= 0xFF04 && addr <= 0xFF07:
		b.tim.Write(addr, value)
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.startDMA(value)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFFFF:
		b.ieReg = value
	}
}

// startDMA copies 160 bytes from value<<8 into OAM and opens the read gate
// for the 160 machine cycles the transfer occupies.
func (b *Bus) startDMA(value byte) {
	b.dmaReg = value
	src := uint16(value) << 8
	for i := 0; i < 0xA0; i++ {
		b.ppu.WriteOAM(i, b.readDMASource(src+uint16(i)))
	}
	b.dmaCycles = 640
}

// readDMASource bypasses both the DMA gate and the PPU mode gates; the DMA
// engine has its own port into memory.
func (b *Bus) readDMASource(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.RawVRAM(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xE000:
		return b.wram[addr-0xC000]
	case addr < 0xFE00:
		return b.wram[addr-0xE000]
	default:
		return 0xFF
	}
}

// Tick advances every peripheral by the given number of T-cycles.
func (b *Bus) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	b.tim.Tick(cycles)
	b.ppu.Tick(cycles)
	b.apu.Tick(cycles)
	if b.dmaCycles > 0 {
		b.dmaCycles -= cycles
		if b.dmaCycles < 0 {
			b.dmaCycles = 0
		}
	}
}

// ResetPostBoot restores the whole bus to the DMG post-boot state, keeping
// the cartridge (and its RAM) in place.
func (b *Bus) ResetPostBoot() {
	b.wram = [0x2000]byte{}
	b.hram = [0x7F]byte{}
	b.ifReg = 0xE1 & 0x1F
	b.ieReg = 0x00
	b.dmaReg = 0xFF
	b.dmaCycles = 0
	b.tim.reset()
	b.joy.reset()
	b.ser.reset()
	b.ppu.ResetPostBoot()
	b.apu.ResetPostBoot()
}

// --- save state ---

type busState struct {
	WRAM [0x2000]byte
	HRAM [0x7F]byte

	IF, IE byte

	DMAReg    byte
	DMACycles int

	TimCounter  uint16
	TIMA, TMA   byte
	TAC         byte
	TimDivBit   uint
	TimPrevAnd  bool
	TimOverflow int8

	JoySel     byte
	JoyPressed byte

	SB, SC byte

	PPU  []byte
	APU  []byte
	Cart []byte
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(busState{
		WRAM: b.wram, HRAM: b.hram,
		IF: b.ifReg, IE: b.ieReg,
		DMAReg: b.dmaReg, DMACycles: b.dmaCycles,
		TimCounter: b.tim.counter, TIMA: b.tim.tima, TMA: b.tim.tma,
		TAC: b.tim.tac, TimDivBit: b.tim.divBit,
		TimPrevAnd: b.tim.prevAnd, TimOverflow: b.tim.overflowDelay,
		JoySel: b.joy.sel, JoyPressed: b.joy.pressed,
		SB: b.ser.sb, SC: b.ser.sc,
		PPU: b.ppu.SaveState(), APU: b.apu.SaveState(), Cart: b.cart.SaveState(),
	})
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	b.wram, b.hram = s.WRAM, s.HRAM
	b.ifReg, b.ieReg = s.IF, s.IE
	b.dmaReg, b.dmaCycles = s.DMAReg, s.DMACycles
	b.tim.counter, b.tim.tima, b.tim.tma = s.TimCounter, s.TIMA, s.TMA
	b.tim.tac, b.tim.divBit = s.TAC, s.TimDivBit
	b.tim.prevAnd, b.tim.overflowDelay = s.TimPrevAnd, s.TimOverflow
	b.joy.sel, b.joy.pressed = s.JoySel, s.JoyPressed
	b.ser.sb, b.ser.sc = s.SB, s.SC
	b.ppu.LoadState(s.PPU)
	b.apu.LoadState(s.APU)
	b.cart.LoadState(s.Cart)
}
