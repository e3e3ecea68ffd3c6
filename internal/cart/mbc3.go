package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC3 banking with RTC latch registers. The clock registers are plain
// readable/writable latches selected through 0x08-0x0C; they do not advance
// with wall time. A 0x00 then 0x01 write to 0x6000-0x7FFF copies the live
// registers into the latched set.
type MBC3 struct {
	rom      []byte
	ram      []byte
	romBanks int
	ramBanks int

	romBank    int
	ramBank    byte // 0x00-0x03 RAM, 0x08-0x0C RTC register select
	ramEnabled bool

	rtc        [5]byte // S, M, H, DL, DH
	rtcLatched [5]byte
	latchArm   bool // last latch write was 0x00
}

func newMBC3(rom []byte, h *Header) *MBC3 {
	m := &MBC3{rom: rom, romBanks: h.ROMBanks, ramBanks: h.RAMBanks}
	if h.RAMSizeBytes > 0 {
		m.ram = make([]byte, h.RAMSizeBytes)
	}
	m.romBank = 1
	return m
}

func (m *MBC3) Read(addr uint16) byte {
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
		if m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			return m.rtcLatched[m.ramBank-0x08]
		}
		off := int(m.ramBank&0x03)*0x2000 + int(addr-0xA000)
		if off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		bank := maskBank(int(value&0x7F), m.romBanks)
		if value&0x7F == 0 {
			bank = 1
		}
		m.romBank = bank
	case addr < 0x6000:
		if value <= 0x03 || (value >= 0x08 && value <= 0x0C) {
			m.ramBank = value
		}
	case addr < 0x8000:
		// latch sequence: 0x00 followed by 0x01
		if value == 0x01 && m.latchArm {
			m.rtcLatched = m.rtc
		}
		m.latchArm = value == 0x00
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			m.rtc[m.ramBank-0x08] = value
			return
		}
		off := int(m.ramBank&0x03)*0x2000 + int(addr-0xA000)
		if off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

type mbc3State struct {
	RAM        []byte
	ROMBank    int
	RAMBank    byte
	RAMEnabled bool
	RTC        [5]byte
	RTCLatched [5]byte
	LatchArm   bool
}

func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc3State{
		RAM:     append([]byte(nil), m.ram...),
		ROMBank: m.romBank, RAMBank: m.ramBank, RAMEnabled: m.ramEnabled,
		RTC: m.rtc, RTCLatched: m.rtcLatched, LatchArm: m.latchArm,
	})
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(m.ram) == len(s.RAM) {
		copy(m.ram, s.RAM)
	}
	m.romBank, m.ramBank, m.ramEnabled = s.ROMBank, s.RAMBank, s.RAMEnabled
	m.rtc, m.rtcLatched, m.latchArm = s.RTC, s.RTCLatched, s.LatchArm
	if m.romBank == 0 {
		m.romBank = 1
	}
}

func (m *MBC3) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	return append([]byte(nil), m.ram...)
}

func (m *MBC3) LoadRAM(data []byte) bool {
	if len(data) != len(m.ram) {
		return false
	}
	copy(m.ram, data)
	return true
}
