package cart

import "testing"

func newTestMBC3(t *testing.T, romBanks int, ramSizeCode byte) *MBC3 {
	t.Helper()
	var sizeCode byte
	for c := byte(0); c <= 8; c++ {
		if 2<<c == romBanks {
			sizeCode = c
			break
		}
	}
	rom := buildROM("MBC3", 0x13, sizeCode, ramSizeCode, romBanks*0x4000)
	for bank := 0; bank < romBanks; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	h, err := ParseHeader(rom)
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(rom, h)
	if err != nil {
		t.Fatal(err)
	}
	return c.(*MBC3)
}

func TestMBC3_ROMBanking(t *testing.T) {
	m := newTestMBC3(t, 16, 0x00)

	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("default bank got %02X want 01", got)
	}
	m.Write(0x2000, 0x0C)
	if got := m.Read(0x4000); got != 0x0C {
		t.Fatalf("bank select got %02X want 0C", got)
	}
	m.Write(0x2000, 0x00)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap got %02X", got)
	}
}

func TestMBC3_RAMBanking(t *testing.T) {
	m := newTestMBC3(t, 16, 0x03)

	m.Write(0x0000, 0x0A)
	m.Write(0x4000, 0x02)
	m.Write(0xA000, 0x42)
	m.Write(0x4000, 0x00)
	if got := m.Read(0xA000); got == 0x42 {
		t.Fatalf("RAM banks alias")
	}
	m.Write(0x4000, 0x02)
	if got := m.Read(0xA000); got != 0x42 {
		t.Fatalf("RAM bank2 got %02X want 42", got)
	}
}

func TestMBC3_RTCLatch(t *testing.T) {
	m := newTestMBC3(t, 16, 0x03)
	m.Write(0x0000, 0x0A)

	// write the live seconds register through select 0x08
	m.Write(0x4000, 0x08)
	m.Write(0xA000, 0x2A)

	// not latched yet: latched set still reads its old value
	if got := m.Read(0xA000); got != 0x00 {
		t.Fatalf("pre-latch read got %02X want 00", got)
	}

	// 0x00 -> 0x01 sequence copies live into latched
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	if got := m.Read(0xA000); got != 0x2A {
		t.Fatalf("post-latch read got %02X want 2A", got)
	}

	// a lone 0x01 write must not latch
	m.Write(0x4000, 0x08)
	m.Write(0xA000, 0x3B)
	m.Write(0x6000, 0x01)
	if got := m.Read(0xA000); got != 0x2A {
		t.Fatalf("unpaired latch write took effect: got %02X", got)
	}
}
