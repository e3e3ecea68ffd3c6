package bus

import (
	"testing"

	"github.com/FabianRolfMatthiasNoll/dmg2025/internal/cart"
)

type writerFunc func(p []byte) (n int, err error)

func (f writerFunc) Write(p []byte) (n int, err error) { return f(p) }

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	rom := make([]byte, 0x8000)
	rom[0x0100] = 0x42
	h, err := cart.ParseHeader(rom)
	if err != nil {
		t.Fatal(err)
	}
	c, err := cart.New(rom, h)
	if err != nil {
		t.Fatal(err)
	}
	return New(c, 0)
}

func TestBus_ROMAndRAM(t *testing.T) {
	b := newTestBus(t)

	if got := b.Read(0x0100); got != 0x42 {
		t.Fatalf("ROM read got %02x, want 42", got)
	}

	b.Write(0xC000, 0x99)
	if got := b.Read(0xC000); got != 0x99 {
		t.Fatalf("WRAM read got %02x, want 99", got)
	}

	// echo RAM mirrors 0xC000-0xDDFF
	b.Write(0xE000, 0x55)
	if got := b.Read(0xC000); got != 0x55 {
		t.Fatalf("echo write did not mirror to WRAM: got %02x", got)
	}
	if got := b.Read(0xFDFF); got != b.Read(0xDDFF) {
		t.Fatalf("echo top mismatch: %02x vs %02x", b.Read(0xFDFF), b.Read(0xDDFF))
	}

	b.Write(0xFF80, 0xAB)
	if got := b.Read(0xFF80); got != 0xAB {
		t.Fatalf("HRAM read got %02x, want AB", got)
	}

	// ROM-only cart returns 0xFF for external RAM
	if got := b.Read(0xA123); got != 0xFF {
		t.Fatalf("ext RAM (ROM-only) got %02x, want FF", got)
	}

	// prohibited region reads 0xFF, writes are dropped
	b.Write(0xFEA0, 0x12)
	if got := b.Read(0xFEA0); got != 0xFF {
		t.Fatalf("prohibited region got %02x, want FF", got)
	}
}

func TestBus_VRAM_OAM_InterruptRegs(t *testing.T) {
	b := newTestBus(t)

	// LCD is off at construction, so VRAM/OAM are open
	b.Write(0x8000, 0x11)
	if got := b.Read(0x8000); got != 0x11 {
		t.Fatalf("VRAM read got %02x, want 11", got)
	}
	b.Write(0xFE00, 0x22)
	if got := b.Read(0xFE00); got != 0x22 {
		t.Fatalf("OAM read got %02x, want 22", got)
	}

	// IF upper bits read as 1
	b.Write(0xFF0F, 0x3F)
	if got := b.Read(0xFF0F); got != 0xE0|0x1F {
		t.Fatalf("IF read got %02x, want FF", got)
	}
	b.Write(0xFFFF, 0x1B)
	if got := b.Read(0xFFFF); got != 0x1B {
		t.Fatalf("IE read got %02x, want 1B", got)
	}
}

func TestBus_VRAMGateDuringMode3(t *testing.T) {
	b := newTestBus(t)
	b.Write(0x8000, 0x77)
	b.Write(0xFF40, 0x91) // LCD on; line starts in mode 2

	b.Tick(100) // dot 100: inside mode 3 (80..251)
	if b.PPU().Mode() != 3 {
		t.Fatalf("expected mode 3 at dot 100, got %d", b.PPU().Mode())
	}
	if got := b.Read(0x8000); got != 0xFF {
		t.Fatalf("VRAM read during mode 3 got %02x, want FF", got)
	}
	b.Write(0x8000, 0x00) // dropped
	if got := b.Read(0xFE00); got != 0xFF {
		t.Fatalf("OAM read during mode 3 got %02x, want FF", got)
	}

	b.Tick(200) // dot 300: HBlank
	if b.PPU().Mode() != 0 {
		t.Fatalf("expected mode 0 at dot 300, got %d", b.PPU().Mode())
	}
	if got := b.Read(0x8000); got != 0x77 {
		t.Fatalf("VRAM after mode 3 got %02x, want 77 (write should have been dropped)", got)
	}
}

func TestBus_Joypad(t *testing.T) {
	b := newTestBus(t)

	// nothing selected: low nibble all 1s
	b.Write(0xFF00, 0x30)
	if got := b.Read(0xFF00); got&0x0F != 0x0F {
		t.Fatalf("JOYP unselected lower bits got %02x want 0x0F", got)
	}

	// select d-pad, press Right+Up
	b.Write(0xFF00, 0x20)
	b.SetJoypadState(JoypRight | JoypUp)
	if got := b.Read(0xFF00); got&0x0F != 0x0A {
		t.Fatalf("JOYP d-pad got %02x want 0x0A", got&0x0F)
	}

	// select buttons, press A+Start
	b.Write(0xFF00, 0x10)
	b.SetJoypadState(JoypA | JoypStart)
	if got := b.Read(0xFF00); got&0x0F != 0x06 {
		t.Fatalf("JOYP buttons got %02x want 0x06", got&0x0F)
	}
}

func TestBus_JoypadInterruptOnSelectedEdge(t *testing.T) {
	b := newTestBus(t)
	b.Write(0xFF0F, 0x00)

	b.Write(0xFF00, 0x20) // d-pad selected
	b.SetJoypadState(JoypA)
	if b.Read(0xFF0F)&(1<<IntJoypad) != 0 {
		t.Fatalf("unselected button press raised joypad interrupt")
	}
	b.SetJoypadState(JoypA | JoypDown)
	if b.Read(0xFF0F)&(1<<IntJoypad) == 0 {
		t.Fatalf("selected d-pad press did not raise joypad interrupt")
	}
}

func TestBus_TimerRegs(t *testing.T) {
	b := newTestBus(t)

	b.Tick(512)
	b.Write(0xFF04, 0x12) // any write resets DIV
	if got := b.Read(0xFF04); got != 0x00 {
		t.Fatalf("DIV got %02x want 00", got)
	}
	b.Write(0xFF05, 0x77)
	if got := b.Read(0xFF05); got != 0x77 {
		t.Fatalf("TIMA got %02x want 77", got)
	}
	b.Write(0xFF06, 0x88)
	if got := b.Read(0xFF06); got != 0x88 {
		t.Fatalf("TMA got %02x want 88", got)
	}
	b.Write(0xFF07, 0xFD)
	if got := b.Read(0xFF07); got != 0xF8|(0xFD&0x07) {
		t.Fatalf("TAC got %02x want %02x", got, 0xF8|(0xFD&0x07))
	}
}

func TestBus_SerialImmediate(t *testing.T) {
	b := newTestBus(t)
	var out []byte
	b.SetSerialWriter(writerFunc(func(p []byte) (int, error) {
		out = append(out, p...)
		return len(p), nil
	}))

	b.Write(0xFF01, 0x41)
	b.Write(0xFF02, 0x81)
	if len(out) != 1 || out[0] != 0x41 {
		t.Fatalf("serial out got %v want [0x41]", out)
	}
	if got := b.Read(0xFF01); got != 0xFF {
		t.Fatalf("SB after transfer got %02x want FF", got)
	}
	if b.Read(0xFF0F)&(1<<IntSerial) == 0 {
		t.Fatalf("serial interrupt not requested")
	}
}

func TestBus_OAMDMA(t *testing.T) {
	b := newTestBus(t)
	for i := 0; i < 0xA0; i++ {
		b.Write(0xC000+uint16(i), byte(i))
	}
	b.Write(0xFF80, 0x5A)

	b.Write(0xFF46, 0xC0)

	// the gate blocks everything but HRAM while the transfer runs
	if got := b.Read(0xC000); got != 0xFF {
		t.Fatalf("WRAM read during DMA got %02x want FF", got)
	}
	if got := b.Read(0xFF80); got != 0x5A {
		t.Fatalf("HRAM read during DMA got %02x want 5A", got)
	}
	if got := b.Read(0xFF46); got != 0xFF {
		t.Fatalf("DMA register read during DMA got %02x want FF (gated)", got)
	}

	b.Tick(640)
	for i := 0; i < 0xA0; i++ {
		if got := b.Read(0xFE00 + uint16(i)); got != byte(i) {
			t.Fatalf("OAM[%d] got %02x want %02x", i, got, byte(i))
		}
	}
	if got := b.Read(0xFF46); got != 0xC0 {
		t.Fatalf("DMA register readback got %02x want C0", got)
	}
}
