package emu

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/bus"
	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/cart"
	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/cpu"
	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/ppu"
)

const (
	cpuHz       = 4194304
	cyclesPerMS = float64(cpuHz) / 1000.0

	// Upper bound on cycles per StepFor call so the host can keep polling
	// input and rendering even at extreme speed settings.
	maxStepCycles = 2 * 1024 * 1024

	// FramebufferSize is the packed 2bpp frame: 4 pixels per byte.
	FramebufferSize = ppu.FrameSize / 4
)

// CartridgeInfo is returned by LoadCartridge. HeaderHash is a stable CRC32 of
// the full ROM image, usable as a save-slot key.
type CartridgeInfo struct {
	Title      string
	HeaderHash uint32
	HasBattery bool
}

// Machine owns the whole core: cartridge, bus (with all peripherals) and CPU.
// The host drives it with StepFor and reads framebuffer/audio between calls;
// no method is safe to call concurrently with StepFor.
type Machine struct {
	cfg    Config
	opts   Options
	cart   cart.Cartridge
	rom    []byte
	header *cart.Header
	hash   uint32
	bus    *bus.Bus
	cpu    *cpu.CPU

	buttons byte // bus.Joyp* mask
	paused  bool
	speed   float64
	carry   float64 // fractional cycle budget left from the previous StepFor
	fault   error

	serialOut io.Writer

	packed [FramebufferSize]byte
}

func New(cfg Config) *Machine {
	cfg.Defaults()
	return &Machine{cfg: cfg, opts: DefaultOptions(), speed: 1.0}
}

// LoadCartridge validates the ROM image, selects the MBC implementation and
// resets the machine into the DMG post-boot state.
func (m *Machine) LoadCartridge(rom []byte) (CartridgeInfo, error) {
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return CartridgeInfo{}, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if !cart.HeaderChecksumOK(rom) {
		return CartridgeInfo{}, fmt.Errorf("%w: header checksum", ErrMalformedHeader)
	}
	if h.ROMSizeBytes != 0 && len(rom) < h.ROMSizeBytes {
		return CartridgeInfo{}, fmt.Errorf("%w: ROM is %d bytes, header declares %d",
			ErrMalformedHeader, len(rom), h.ROMSizeBytes)
	}
	c, err := cart.New(rom, h)
	if err != nil {
		return CartridgeInfo{}, fmt.Errorf("%w: %v", ErrUnsupportedCartridge, err)
	}

	m.cart = c
	m.rom = rom
	m.header = h
	m.hash = crc32.ChecksumIEEE(rom)
	m.wire()
	return CartridgeInfo{Title: h.Title, HeaderHash: m.hash, HasBattery: h.HasBattery}, nil
}

// wire builds a fresh bus+CPU around the current cartridge and applies the
// post-boot state.
func (m *Machine) wire() {
	m.bus = bus.New(m.cart, m.cfg.SampleRate)
	m.bus.SetSerialWriter(m.serialOut)
	m.bus.APU().SetVolume(m.opts.Volume)
	m.cpu = cpu.New(m.bus)
	m.bus.ResetPostBoot()
	m.cpu.Reset()
	m.carry = 0
	m.fault = nil
}

// Reload re-initializes machine state, keeping the cartridge and its RAM.
func (m *Machine) Reload() error {
	if m.cart == nil {
		return ErrNoCartridge
	}
	var ram []byte
	if bb, ok := m.cart.(cart.BatteryBacked); ok {
		ram = bb.SaveRAM()
	}
	c, err := cart.New(m.rom, m.header)
	if err == nil {
		m.cart = c
	}
	if bb, ok := m.cart.(cart.BatteryBacked); ok && len(ram) != 0 {
		bb.LoadRAM(ram)
	}
	m.wire()
	return nil
}

// Header returns the parsed cartridge header, or nil before LoadCartridge.
func (m *Machine) Header() *cart.Header { return m.header }

// Err returns the latched execution fault, if any. StepFor is a no-op while
// it is set; Reload clears it.
func (m *Machine) Err() error { return m.fault }

func (m *Machine) SetPaused(p bool) { m.paused = p }

// SetSpeed scales simulated time per wall millisecond. Values <= 0 reset to 1.
func (m *Machine) SetSpeed(f float64) {
	if f <= 0 {
		f = 1.0
	}
	m.speed = f
}

// SetSerialWriter attaches a sink for serial port bytes (test ROMs report
// results through it).
func (m *Machine) SetSerialWriter(w io.Writer) {
	m.serialOut = w
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// StepFor advances simulated time by wallMS milliseconds of budget, scaled by
// the speed setting and capped so the call returns promptly. Leftover
// fractional cycles carry into the next call.
func (m *Machine) StepFor(wallMS float64) {
	if m.cpu == nil || m.paused || m.fault != nil || wallMS <= 0 {
		return
	}
	budget := wallMS*cyclesPerMS*m.speed + m.carry
	if budget > maxStepCycles {
		budget = maxStepCycles
	}
	target := int(budget)
	m.carry = budget - float64(target)

	for spent := 0; spent < target; {
		cyc := m.cpu.Step()
		if cyc == 0 {
			break
		}
		spent += cyc
		if m.cpu.Faulted() {
			m.fault = fmt.Errorf("%w: %s", ErrInvalidInstruction, m.cpu.FaultInfo())
			break
		}
	}
}

// StepFrame runs until the PPU publishes the next frame (or a bounded number
// of cycles passes with the LCD off). Used by headless tooling and tests.
func (m *Machine) StepFrame() {
	if m.cpu == nil || m.fault != nil {
		return
	}
	start := m.bus.PPU().FrameCount()
	// two frames worth of cycles as a bound in case the LCD is disabled
	for spent := 0; spent < 2*70224; {
		cyc := m.cpu.Step()
		if cyc == 0 {
			break
		}
		spent += cyc
		if m.cpu.Faulted() {
			m.fault = fmt.Errorf("%w: %s", ErrInvalidInstruction, m.cpu.FaultInfo())
			return
		}
		if m.bus.PPU().FrameCount() != start {
			return
		}
	}
}

// SetButton latches one joypad line; visible to the next instruction.
func (m *Machine) SetButton(b Button, pressed bool) {
	var mask byte
	switch b {
	case BtnRight:
		mask = bus.JoypRight
	case BtnLeft:
		mask = bus.JoypLeft
	case BtnUp:
		mask = bus.JoypUp
	case BtnDown:
		mask = bus.JoypDown
	case BtnA:
		mask = bus.JoypA
	case BtnB:
		mask = bus.JoypB
	case BtnSelect:
		mask = bus.JoypSelectBtn
	case BtnStart:
		mask = bus.JoypStart
	default:
		return
	}
	if pressed {
		m.buttons |= mask
	} else {
		m.buttons &^= mask
	}
	if m.bus != nil {
		m.bus.SetJoypadState(m.buttons)
	}
}

// SetButtons replaces the whole joypad state at once.
func (m *Machine) SetButtons(b Buttons) {
	var mask byte
	if b.Right {
		mask |= bus.JoypRight
	}
	if b.Left {
		mask |= bus.JoypLeft
	}
	if b.Up {
		mask |= bus.JoypUp
	}
	if b.Down {
		mask |= bus.JoypDown
	}
	if b.A {
		mask |= bus.JoypA
	}
	if b.B {
		mask |= bus.JoypB
	}
	if b.Select {
		mask |= bus.JoypSelectBtn
	}
	if b.Start {
		mask |= bus.JoypStart
	}
	m.buttons = mask
	if m.bus != nil {
		m.bus.SetJoypadState(mask)
	}
}

// Framebuffer returns the last published frame packed two bits per pixel,
// row-major from the top-left; pixel i sits at bits (i%4)*2 of byte i/4.
// The slice is reused between calls.
func (m *Machine) Framebuffer() []byte {
	if m.bus == nil {
		return m.packed[:]
	}
	frame := m.bus.PPU().Frame()
	for i := 0; i < FramebufferSize; i++ {
		m.packed[i] = frame[i*4]&3 |
			(frame[i*4+1]&3)<<2 |
			(frame[i*4+2]&3)<<4 |
			(frame[i*4+3]&3)<<6
	}
	return m.packed[:]
}

// FrameCount increments once per published frame.
func (m *Machine) FrameCount() uint64 {
	if m.bus == nil {
		return 0
	}
	return m.bus.PPU().FrameCount()
}

// AudioPull drains up to n stereo frames at the given sample rate, returned
// as interleaved int16 L,R samples.
func (m *Machine) AudioPull(n int, sampleRate int) []int16 {
	if m.bus == nil {
		return nil
	}
	a := m.bus.APU()
	if sampleRate > 0 && sampleRate != a.SampleRate() {
		a.SetSampleRate(sampleRate)
	}
	return a.PullStereo(n)
}

// AudioBuffered returns the number of stereo frames ready to pull.
func (m *Machine) AudioBuffered() int {
	if m.bus == nil {
		return 0
	}
	return m.bus.APU().Buffered()
}

// AudioTrimTo bounds audio latency by dropping old frames.
func (m *Machine) AudioTrimTo(frames int) {
	if m.bus != nil {
		m.bus.APU().TrimTo(frames)
	}
}

// UpdateOptions stores host options. Only Volume changes core behavior; the
// palette and post parameters are read back by the frontend.
func (m *Machine) UpdateOptions(o Options) {
	if o.Volume < 0 {
		o.Volume = 0
	}
	m.opts = o
	if m.bus != nil {
		m.bus.APU().SetVolume(o.Volume)
	}
}

// Options returns the currently applied options.
func (m *Machine) Options() Options { return m.opts }

// SaveRAM returns the battery-backed RAM image, or nil when the cartridge has
// no battery.
func (m *Machine) SaveRAM() []byte {
	if m.header == nil || !m.header.HasBattery {
		return nil
	}
	if bb, ok := m.cart.(cart.BatteryBacked); ok {
		return bb.SaveRAM()
	}
	return nil
}

// LoadRAM installs an external RAM image; its size must match the cartridge
// declaration.
func (m *Machine) LoadRAM(data []byte) error {
	if m.cart == nil {
		return ErrNoCartridge
	}
	bb, ok := m.cart.(cart.BatteryBacked)
	if !ok {
		return fmt.Errorf("%w: cartridge has no external RAM", ErrRAMSizeMismatch)
	}
	if !bb.LoadRAM(data) {
		return fmt.Errorf("%w: got %d bytes", ErrRAMSizeMismatch, len(data))
	}
	return nil
}

// SaveStateToFile writes a snapshot next to the host's save slots.
func (m *Machine) SaveStateToFile(path string) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.Deserialize(data)
}

// Bus exposes the bus for the internal tooling under cmd/.
func (m *Machine) Bus() *bus.Bus { return m.bus }

// CPU exposes the CPU for the internal tooling under cmd/.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }
