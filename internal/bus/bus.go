// Package bus wires the CPU, PPU, cartridge, timer, joypad, interrupt
// lines, and OAM DMA engine into the single address space the LR35902
// sees: $0000-$FFFF. It is the only piece of the core that knows the
// full memory map; every other package talks to a narrower interface.
package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/coregb/dmgcore/internal/cart"
	"github.com/coregb/dmgcore/internal/ppu"
)

// APUSink is the optional audio hook. A Bus with no sink attached treats
// $FF10-$FF3F as unimplemented IO: reads return $FF, writes are dropped.
type APUSink interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
}

// Bus is the DMG memory-mapped I/O and address-decode hub.
type Bus struct {
	cart   cart.Cartridge
	ticker cart.Ticker // non-nil when cart also implements cart.Ticker (MBC3 RTC)
	ppu    *ppu.PPU
	apu    APUSink
	irq    Interrupts

	wram [0x2000]byte // C000-DFFF, mirrored at E000-FDFF
	hram [0x7F]byte   // FF80-FFFE

	bootROM     []byte
	bootEnabled bool

	// Joypad ($FF00)
	joypSelect    byte
	joypState     byte
	joypPrevLower byte

	// Serial ($FF01-$FF02)
	sb           byte
	sc           byte
	serialWriter io.Writer

	// Timer ($FF04-$FF07). Fields are bit-accurate per the falling-edge
	// model: divInternal is the free-running 16-bit divider; TIMA only
	// advances on a 1->0 transition of the TAC-selected divider bit.
	divInternal        uint16
	tima               byte
	tma                byte
	tac                byte
	timerReloadPending bool
	timerReloadDelay   int

	// OAM DMA ($FF46)
	dmaActive bool
	dmaCycles int
	dmaReg    byte
	dmaBuffer [0xA0]byte
}

// New builds a Bus around rom, dispatching on its header the same way
// NewWithCartridge does. Malformed headers (as in hand-built test ROMs)
// fall back to a ROM-only cartridge rather than failing, since callers
// that want strict header validation should use cart.NewCartridge
// directly and construct via NewWithCartridge.
func New(rom []byte) *Bus {
	c, err := cart.NewCartridge(rom)
	if err != nil {
		c = cart.NewROMOnly(rom)
	}
	return NewWithCartridge(c)
}

// NewWithCartridge builds a Bus around an already-constructed cartridge,
// the path the façade uses once it has validated the ROM header itself.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c, tima: 0, tma: 0, joypPrevLower: 0x0F}
	if t, ok := c.(cart.Ticker); ok {
		b.ticker = t
	}
	b.ppu = ppu.New(b.requestInterrupt)
	return b
}

func (b *Bus) requestInterrupt(bit int) { b.irq.Request(bit) }

// Cart returns the loaded cartridge, for callers that need the
// BatteryBacked interface (save-RAM export/import).
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// PPU returns the pixel pipeline, for renderer code that needs VRAM/OAM
// snapshots the CPU-facing Read doesn't expose.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// SetAPU attaches the optional audio sink. Passing nil detaches it.
func (b *Bus) SetAPU(s APUSink) { b.apu = s }

// SetSerialWriter connects an io.Writer to receive bytes shifted out over
// the serial port. Mainly useful for test ROMs (e.g. Blargg's suite) that
// report pass/fail over serial instead of the screen.
func (b *Bus) SetSerialWriter(w io.Writer) { b.serialWriter = w }

// SetBootROM installs a 256-byte DMG boot ROM at $0000-$00FF and enables
// it. A short slice disables boot-ROM mapping entirely.
func (b *Bus) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	} else {
		b.bootROM = nil
		b.bootEnabled = false
	}
}

// DisableBoot unmaps the boot ROM, exposing cartridge bank 0 at $0000 again.
func (b *Bus) DisableBoot() { b.bootEnabled = false }

// Read8 and Write8 satisfy cpu.Memory.
func (b *Bus) Read8(addr uint16) byte     { return b.Read(addr) }
func (b *Bus) Write8(addr uint16, v byte) { b.Write(addr, v) }

// Read performs a CPU-visible memory read. During OAM DMA the CPU can
// only reach HRAM and the DMA register itself ($FF46); everything else
// reads as $FF, matching the real hardware's DMA-steals-the-bus behavior.
func (b *Bus) Read(addr uint16) byte {
	if b.dmaActive && addr < 0xFF80 && addr != 0xFF46 {
		return 0xFF
	}
	return b.readRaw(addr)
}

func (b *Bus) readRaw(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.CPURead(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xE000:
		return b.wram[addr-0xC000]
	case addr < 0xFE00:
		return b.wram[addr-0xE000]
	case addr < 0xFEA0:
		return b.ppu.CPURead(addr)
	case addr < 0xFF00:
		return 0xFF
	case addr == 0xFF00:
		return b.readJOYP()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | b.sc
	case addr == 0xFF04:
		return byte(b.divInternal >> 8)
	case addr == 0xFF05:
		return b.tima
	case addr == 0xFF06:
		return b.tma
	case addr == 0xFF07:
		return 0xF8 | (b.tac & 0x07)
	case addr == 0xFF0F:
		return b.irq.ReadIF()
	case addr == 0xFF46:
		return b.dmaReg
	case addr >= 0xFF10 && addr <= 0xFF3F:
		if b.apu != nil {
			return b.apu.Read(addr)
		}
		return 0xFF
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr < 0xFF80:
		return 0xFF
	case addr < 0xFFFF:
		return b.hram[addr-0xFF80]
	default: // 0xFFFF
		return b.irq.ReadIE()
	}
}

// Write performs a CPU-visible memory write, subject to the same
// DMA-steals-the-bus restriction as Read.
func (b *Bus) Write(addr uint16, value byte) {
	if b.dmaActive && addr < 0xFF80 && addr != 0xFF46 {
		return
	}
	b.writeRaw(addr, value)
}

func (b *Bus) writeRaw(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr < 0xA000:
		b.ppu.CPUWrite(addr, value)
	case addr < 0xC000:
		b.cart.Write(addr, value)
	case addr < 0xE000:
		b.wram[addr-0xC000] = value
	case addr < 0xFE00:
		b.wram[addr-0xE000] = value
	case addr < 0xFEA0:
		b.ppu.CPUWrite(addr, value)
	case addr < 0xFF00:
		// unusable
	case addr == 0xFF00:
		b.writeJOYP(value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.writeSC(value)
	case addr == 0xFF04:
		b.writeDIV()
	case addr == 0xFF05:
		b.writeTIMA(value)
	case addr == 0xFF06:
		b.tma = value
	case addr == 0xFF07:
		b.writeTAC(value)
	case addr == 0xFF0F:
		b.irq.WriteIF(value)
	case addr == 0xFF46:
		b.writeDMA(value)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		if b.apu != nil {
			b.apu.Write(addr, value)
		}
	case addr >= 0xFF40 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr < 0xFF80:
		// unusable
	case addr < 0xFFFF:
		b.hram[addr-0xFF80] = value
	default: // 0xFFFF
		b.irq.WriteIE(value)
	}
}

// Tick advances every bus-owned device by n T-cycles: the timer, the PPU,
// the OAM DMA engine, and (if the cartridge has one) its real-time clock.
func (b *Bus) Tick(n int) {
	for i := 0; i < n; i++ {
		b.stepTimer()
		b.tickDMA()
		b.ppu.Tick(1)
		if b.ticker != nil {
			b.ticker.Tick(1)
		}
	}
}

func (b *Bus) writeSC(v byte) {
	b.sc = v & 0x83
	if b.sc&0x81 == 0x81 { // transfer start, internal clock
		if b.serialWriter != nil {
			b.serialWriter.Write([]byte{b.sb})
		}
		b.sc &^= 0x80 // transfer complete
		b.irq.Request(IntSerial)
	}
}

type busState struct {
	WRAM [0x2000]byte
	HRAM [0x7F]byte
	Cart []byte
	PPU  []byte

	IE, IF byte

	JoypSelect, JoypState, JoypPrevLower byte

	SB, SC byte

	DivInternal        uint16
	TIMA, TMA, TAC     byte
	TimerReloadPending bool
	TimerReloadDelay   int

	DMAActive bool
	DMACycles int
	DMAReg    byte
	DMABuffer [0xA0]byte

	BootEnabled bool
}

// SaveState serializes the whole bus, including the cartridge and PPU
// sub-states, for the façade's save-state feature.
func (b *Bus) SaveState() []byte {
	st := busState{
		WRAM: b.wram, HRAM: b.hram, Cart: b.cart.SaveState(), PPU: b.ppu.SaveState(),
		IE: b.irq.IE, IF: b.irq.IF,
		JoypSelect: b.joypSelect, JoypState: b.joypState, JoypPrevLower: b.joypPrevLower,
		SB: b.sb, SC: b.sc,
		DivInternal: b.divInternal, TIMA: b.tima, TMA: b.tma, TAC: b.tac,
		TimerReloadPending: b.timerReloadPending, TimerReloadDelay: b.timerReloadDelay,
		DMAActive: b.dmaActive, DMACycles: b.dmaCycles, DMAReg: b.dmaReg, DMABuffer: b.dmaBuffer,
		BootEnabled: b.bootEnabled,
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(st)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var st busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return
	}
	b.wram = st.WRAM
	b.hram = st.HRAM
	b.cart.LoadState(st.Cart)
	b.ppu.LoadState(st.PPU)
	b.irq.IE, b.irq.IF = st.IE, st.IF
	b.joypSelect, b.joypState, b.joypPrevLower = st.JoypSelect, st.JoypState, st.JoypPrevLower
	b.sb, b.sc = st.SB, st.SC
	b.divInternal = st.DivInternal
	b.tima, b.tma, b.tac = st.TIMA, st.TMA, st.TAC
	b.timerReloadPending = st.TimerReloadPending
	b.timerReloadDelay = st.TimerReloadDelay
	b.dmaActive = st.DMAActive
	b.dmaCycles = st.DMACycles
	b.dmaReg = st.DMAReg
	b.dmaBuffer = st.DMABuffer
	b.bootEnabled = st.BootEnabled
}
