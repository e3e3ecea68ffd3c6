package cart

import (
	"bytes"
	"encoding/gob"
)

// ROMOnly is a 32 KiB flat cartridge, optionally with a single 8 KiB RAM bank
// at 0xA000 (types 0x08/0x09).
type ROMOnly struct {
	rom []byte
	ram []byte
}

func newROMOnly(rom []byte, h *Header) *ROMOnly {
	c := &ROMOnly{rom: rom}
	if h.HasRAM {
		size := h.RAMSizeBytes
		if size == 0 {
			size = 0x2000
		}
		c.ram = make([]byte, size)
	}
	return c
}

func (c *ROMOnly) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if int(addr) < len(c.rom) {
			return c.rom[addr]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		off := int(addr - 0xA000)
		if off < len(c.ram) {
			return c.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (c *ROMOnly) Write(addr uint16, value byte) {
	if addr >= 0xA000 && addr <= 0xBFFF {
		off := int(addr - 0xA000)
		if off < len(c.ram) {
			c.ram[off] = value
		}
	}
	// control writes have no effect without an MBC
}

type romOnlyState struct {
	RAM []byte
}

func (c *ROMOnly) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(romOnlyState{RAM: append([]byte(nil), c.ram...)})
	return buf.Bytes()
}

func (c *ROMOnly) LoadState(data []byte) {
	var s romOnlyState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(c.ram) == len(s.RAM) {
		copy(c.ram, s.RAM)
	}
}

func (c *ROMOnly) SaveRAM() []byte {
	if len(c.ram) == 0 {
		return nil
	}
	return append([]byte(nil), c.ram...)
}

func (c *ROMOnly) LoadRAM(data []byte) bool {
	if len(data) != len(c.ram) {
		return false
	}
	copy(c.ram, data)
	return true
}
