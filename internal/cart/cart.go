package cart

import "errors"

// Cartridge is the minimal interface the bus needs for ROM/RAM banking.
// Addresses are CPU addresses; implementations decode their own regions.
type Cartridge interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize banking registers and RAM for save states.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is implemented by cartridges whose external RAM survives
// power-off. ExportSave/ImportSave on the façade only reach cartridges
// that satisfy this.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// Ticker is implemented by cartridges that need to advance internal state
// every T-cycle even when the CPU isn't addressing them — currently only
// the MBC3 real-time clock.
type Ticker interface {
	Tick(tCycles int)
}

// ErrUnsupportedCartridge is returned by NewCartridge for a header cart
// type this core does not implement (e.g. MBC2, MMM01, HuC1/3, Camera).
var ErrUnsupportedCartridge = errors.New("cart: unsupported cartridge type")

// batteryBackedTypes enumerates header CartType codes documented as
// battery-backed, i.e. eligible for ExportSave/ImportSave.
var batteryBackedTypes = map[byte]bool{
	0x03: true, 0x06: true, 0x09: true, 0x0D: true,
	0x0F: true, 0x10: true, 0x13: true, 0x1B: true, 0x1E: true, 0x22: true,
}

// IsBatteryBacked reports whether a header CartType code persists RAM.
func IsBatteryBacked(cartType byte) bool { return batteryBackedTypes[cartType] }

// NewCartridge builds the Cartridge implementation named by the ROM's
// header, or ErrUnsupportedCartridge for a type this core doesn't implement.
func NewCartridge(rom []byte) (Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, err
	}
	switch h.CartType {
	case 0x00, 0x08, 0x09:
		return NewROMOnly(rom), nil
	case 0x01, 0x02, 0x03:
		return NewMBC1(rom, h.RAMSizeBytes), nil
	case 0x0F, 0x10:
		return NewMBC3(rom, h.RAMSizeBytes, true), nil
	case 0x11, 0x12, 0x13:
		return NewMBC3(rom, h.RAMSizeBytes, false), nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return NewMBC5(rom, h.RAMSizeBytes), nil
	default:
		return nil, ErrUnsupportedCartridge
	}
}
