package cart

import (
	"errors"
	"fmt"
)

// Cartridge is the view the bus has of a cartridge: ROM reads and MBC control
// writes in 0x0000-0x7FFF, external RAM in 0xA000-0xBFFF. Addresses are CPU
// addresses.
type Cartridge interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize banking registers and external RAM for
	// save states. ROM bytes are never part of the state.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is implemented by every cartridge type in this package; whether
// the type byte declares a battery is Header.HasBattery, which the caller
// checks. SaveRAM returns a copy of the external RAM image; LoadRAM replaces
// it, and reports false when the image size does not match the cartridge
// declaration.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte) bool
}

// ErrUnsupportedType is returned by New for MBC families the core does not
// implement (MMM01, MBC6, MBC7, HuC...).
var ErrUnsupportedType = errors.New("cart: unsupported cartridge type")

// New picks an implementation based on the header's cartridge type byte.
// The type byte fixes the MBC behavior for the lifetime of the cartridge.
func New(rom []byte, h *Header) (Cartridge, error) {
	switch h.CartType {
	case 0x00, 0x08, 0x09:
		return newROMOnly(rom, h), nil
	case 0x01, 0x02, 0x03:
		return newMBC1(rom, h), nil
	case 0x05, 0x06:
		return newMBC2(rom, h), nil
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		return newMBC3(rom, h), nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return newMBC5(rom, h), nil
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedType, h.CartType)
	}
}

// maskBank wraps a bank-register value to the number of banks the cartridge
// actually has, so out-of-range selections alias instead of reading garbage.
func maskBank(value int, banks int) int {
	if banks <= 1 {
		return 0
	}
	mask := 1
	for mask < banks {
		mask <<= 1
	}
	return value & (mask - 1)
}
