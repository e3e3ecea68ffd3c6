package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC2 has a single register range at 0x0000-0x3FFF split by address bit 8:
// bit clear controls RAM enable, bit set selects the 4-bit ROM bank. The chip
// carries 512 half-bytes of RAM on board; the upper nibble always reads 0xF.
type MBC2 struct {
	rom      []byte
	ram      [512]byte // low nibbles only
	romBanks int

	romBank    int
	ramEnabled bool
}

func newMBC2(rom []byte, h *Header) *MBC2 {
	return &MBC2{rom: rom, romBanks: h.ROMBanks, romBank: 1}
}

func (m *MBC2) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		off := m.romBank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		// only 512 nibbles exist; the rest of the window echoes them
		return 0xF0 | (m.ram[(addr-0xA000)&0x1FF] & 0x0F)
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value byte) {
	switch {
	case addr < 0x4000:
		if addr&0x0100 == 0 {
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			bank := maskBank(int(value&0x0F), m.romBanks)
			if bank == 0 {
				bank = 1
			}
			m.romBank = bank
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		m.ram[(addr-0xA000)&0x1FF] = value & 0x0F
	}
}

type mbc2State struct {
	RAM        [512]byte
	ROMBank    int
	RAMEnabled bool
}

func (m *MBC2) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc2State{RAM: m.ram, ROMBank: m.romBank, RAMEnabled: m.ramEnabled})
	return buf.Bytes()
}

func (m *MBC2) LoadState(data []byte) {
	var s mbc2State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.ram = s.RAM
	m.romBank, m.ramEnabled = s.ROMBank, s.RAMEnabled
	if m.romBank == 0 {
		m.romBank = 1
	}
}

func (m *MBC2) SaveRAM() []byte {
	return append([]byte(nil), m.ram[:]...)
}

func (m *MBC2) LoadRAM(data []byte) bool {
	if len(data) != len(m.ram) {
		return false
	}
	copy(m.ram[:], data)
	return true
}
