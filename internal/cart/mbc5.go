package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC5 banking: 9-bit ROM bank split across two registers, 4-bit RAM bank.
// Unlike MBC1/3, bank 0 is reachable in the switchable window.
type MBC5 struct {
	rom      []byte
	ram      []byte
	romBanks int
	ramBanks int

	romBank    int // 9 bits
	ramBank    byte
	ramEnabled bool
}

func newMBC5(rom []byte, h *Header) *MBC5 {
	m := &MBC5{rom: rom, romBanks: h.ROMBanks, ramBanks: h.RAMBanks}
	if h.RAMSizeBytes > 0 {
		m.ram = make([]byte, h.RAMSizeBytes)
	}
	m.romBank = 1
	return m
}

func (m *MBC5) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		off := maskBank(m.romBank, m.romBanks)*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
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

func (m *MBC5) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x3000:
		m.romBank = (m.romBank & 0x100) | int(value)
	case addr < 0x4000:
		m.romBank = (m.romBank & 0x0FF) | (int(value&0x01) << 8)
	case addr < 0x6000:
		m.ramBank = value & 0x0F
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

func (m *MBC5) ramOffset(addr uint16) int {
	return maskBank(int(m.ramBank), m.ramBanks)*0x2000 + int(addr-0xA000)
}

type mbc5State struct {
	RAM        []byte
	ROMBank    int
	RAMBank    byte
	RAMEnabled bool
}

func (m *MBC5) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc5State{
		RAM:     append([]byte(nil), m.ram...),
		ROMBank: m.romBank, RAMBank: m.ramBank, RAMEnabled: m.ramEnabled,
	})
	return buf.Bytes()
}

func (m *MBC5) LoadState(data []byte) {
	var s mbc5State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(m.ram) == len(s.RAM) {
		copy(m.ram, s.RAM)
	}
	m.romBank, m.ramBank, m.ramEnabled = s.ROMBank, s.RAMBank, s.RAMEnabled
}

func (m *MBC5) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	return append([]byte(nil), m.ram...)
}

func (m *MBC5) LoadRAM(data []byte) bool {
	if len(data) != len(m.ram) {
		return false
	}
	copy(m.ram, data)
	return true
}
