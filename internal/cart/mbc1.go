package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC1 banking. The ROM bank register is masked to the cartridge's bank count;
// the bank-0 alias check looks only at the low 5 bits of the written value, so
// a write of 0x20 on a 64-bank cart lands on bank 0x21. The 2-bit secondary
// register selects RAM banks in mode 1, or 512 KiB ROM blocks on large carts
// (where mode 1 also remaps the 0x0000-0x3FFF region).
type MBC1 struct {
	rom      []byte
	ram      []byte
	romBanks int
	ramBanks int

	romBank    int  // masked bank number; a write whose low 5 bits are 0 is bumped by one
	bankHigh   byte // 2 bits, ROM high block or RAM bank by mode
	ramEnabled bool
	mode       byte // 0: ROM banking, 1: RAM banking
}

func newMBC1(rom []byte, h *Header) *MBC1 {
	m := &MBC1{rom: rom, romBanks: h.ROMBanks, ramBanks: h.RAMBanks}
	if h.RAMSizeBytes > 0 {
		m.ram = make([]byte, h.RAMSizeBytes)
	}
	m.romBank = 1
	return m
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		off := int(addr)
		if m.mode == 1 && m.romBanks > 32 {
			off += m.highBlockBase()
		}
		return m.readROM(off)
	case addr < 0x8000:
		off := m.romBank*0x4000 + int(addr-0x4000)
		if m.romBanks > 32 {
			off += m.highBlockBase()
		}
		return m.readROM(off)
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		off := m.ramOffset(addr)
		if off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		// Mask to the available banks first; the 0-alias check applies to
		// the raw low 5 bits, not the masked result.
		bank := maskBank(int(value), m.romBanks)
		if value&0x1F == 0 {
			bank++
		}
		m.romBank = bank
	case addr < 0x6000:
		m.bankHigh = value & 0x03
	case addr < 0x8000:
		m.mode = value & 0x01
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		off := m.ramOffset(addr)
		if off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

// highBlockBase is the byte offset contributed by the 2-bit register when it
// selects 512 KiB ROM blocks on carts above 32 banks.
func (m *MBC1) highBlockBase() int {
	high := int(m.bankHigh)
	if m.romBanks <= 64 {
		high &= 0x01
	}
	return high * 32 * 0x4000
}

func (m *MBC1) ramOffset(addr uint16) int {
	bank := 0
	if m.mode == 1 && m.ramBanks > 1 {
		bank = maskBank(int(m.bankHigh), m.ramBanks)
	}
	return bank*0x2000 + int(addr-0xA000)
}

func (m *MBC1) readROM(off int) byte {
	if off >= 0 && off < len(m.rom) {
		return m.rom[off]
	}
	return 0xFF
}

type mbc1State struct {
	RAM        []byte
	ROMBank    int
	BankHigh   byte
	RAMEnabled bool
	Mode       byte
}

func (m *MBC1) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc1State{
		RAM:     append([]byte(nil), m.ram...),
		ROMBank: m.romBank, BankHigh: m.bankHigh,
		RAMEnabled: m.ramEnabled, Mode: m.mode,
	})
	return buf.Bytes()
}

func (m *MBC1) LoadState(data []byte) {
	var s mbc1State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(m.ram) == len(s.RAM) {
		copy(m.ram, s.RAM)
	}
	m.romBank, m.bankHigh = s.ROMBank, s.BankHigh
	m.ramEnabled, m.mode = s.RAMEnabled, s.Mode
	if m.romBank == 0 {
		m.romBank = 1
	}
}

func (m *MBC1) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	return append([]byte(nil), m.ram...)
}

func (m *MBC1) LoadRAM(data []byte) bool {
	if len(data) != len(m.ram) {
		return false
	}
	copy(m.ram, data)
	return true
}
