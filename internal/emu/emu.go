// Package emu wires the cartridge, bus, CPU, and PPU into the façade a host
// program drives one frame at a time: load a ROM, step frames, read pixels,
// feed button state, and export/import battery RAM.
package emu

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"

	"github.com/coregb/dmgcore/internal/bus"
	"github.com/coregb/dmgcore/internal/cart"
	"github.com/coregb/dmgcore/internal/cpu"
)

const (
	screenWidth    = 160
	screenHeight   = 144
	cyclesPerFrame = 70224 // one DMG frame at 4.194304 MHz / 59.7275 Hz
	romBankSize    = 0x4000
)

// Buttons is the full joypad state for one call to SetButtons, an
// alternative to the index-based KeyPress/KeyRelease pair for callers that
// already track state as a struct (e.g. cmd/gbemu's ebiten input poll).
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// buttonBits gives KeyPress/KeyRelease's external index order {Down, Up,
// Left, Right, A, B, Select, Start}, translated to the bus's internal
// Joyp* bit flags.
var buttonBits = [8]byte{
	bus.JoypDown, bus.JoypUp, bus.JoypLeft, bus.JoypRight,
	bus.JoypA, bus.JoypB, bus.JoypSelectBtn, bus.JoypStart,
}

// Machine is a complete DMG: cartridge, bus, CPU, and the rendered frame.
type Machine struct {
	cfg  Config
	fb   []byte // RGBA, screenWidth*screenHeight*4
	bgci []byte // per-pixel BG/window color index, consulted by sprite BG-priority

	bus          *bus.Bus
	cpu          *cpu.CPU
	buttons      byte
	romPath      string
	ramSizeBytes int
}

// New creates a Machine with no cartridge loaded. Call LoadROM (or
// LoadROMFromFile) before stepping frames.
func New(cfg Config) *Machine {
	return &Machine{
		cfg:  cfg,
		fb:   make([]byte, screenWidth*screenHeight*4),
		bgci: make([]byte, screenWidth*screenHeight),
	}
}

// LoadROM parses rom's header, builds the matching cartridge/bus/CPU, and
// (if save is non-empty) imports it as battery RAM. A ROM too short to hold
// a header, not a multiple of the 16 KiB bank size, or naming an
// unimplemented cartridge type fails without mutating the Machine; a bad
// header checksum only logs a warning and the load proceeds, per the
// "recommended, not mandatory" checksum policy.
func (m *Machine) LoadROM(rom []byte, save []byte) error {
	if len(rom) < 0x150 || len(rom)%romBankSize != 0 {
		return &Error{Kind: InvalidRom, Op: "LoadROM", Err: fmt.Errorf("rom is %d bytes, want a non-empty multiple of %d", len(rom), romBankSize)}
	}
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return &Error{Kind: InvalidRom, Op: "LoadROM", Err: err}
	}
	c, err := cart.NewCartridge(rom)
	if err != nil {
		if err == cart.ErrUnsupportedCartridge {
			return &Error{Kind: UnsupportedCartridge, Op: "LoadROM", Err: fmt.Errorf("cart type 0x%02X (%s): %w", h.CartType, h.CartTypeStr, err)}
		}
		return &Error{Kind: InvalidRom, Op: "LoadROM", Err: err}
	}
	if !cart.HeaderChecksumOK(rom) {
		slog.Warn("cartridge header checksum mismatch", "title", h.Title)
	}

	b := bus.NewWithCartridge(c)
	cp := cpu.New(b)
	cp.ResetPostBoot()
	m.applyDMGPostBootIO(b)

	m.bus = b
	m.cpu = cp
	m.ramSizeBytes = h.RAMSizeBytes
	for i := range m.bgci {
		m.bgci[i] = 0
	}

	slog.Info("cartridge loaded",
		"title", h.Title, "type", h.CartTypeStr,
		"romBytes", h.ROMSizeBytes, "ramBytes", h.RAMSizeBytes)

	if len(save) > 0 {
		if err := m.ImportSave(save); err != nil {
			return err
		}
	}
	return nil
}

// LoadROMFromFile reads path and loads it as a cartridge with no save data.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Kind: InvalidRom, Op: "LoadROMFromFile", Err: err}
	}
	if err := m.LoadROM(data, nil); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the path LoadROMFromFile most recently loaded, or "".
func (m *Machine) ROMPath() string { return m.romPath }

// applyDMGPostBootIO sets the IO register defaults real DMG hardware leaves
// behind once the boot ROM finishes, so a cartridge started at $0100 without
// running a boot ROM still finds the LCD on and sane default palettes.
func (m *Machine) applyDMGPostBootIO(b *bus.Bus) {
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC
	b.Write(0xFF40, 0x91) // LCDC: LCD on, BG on, tiles @8000, map @9800, sprites off
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	b.Write(0xFFFF, 0x00) // IE
}

// StepFrame runs the CPU for one DMG frame (~70224 T-cycles) and renders it.
func (m *Machine) StepFrame() {
	if m.cpu == nil || m.bus == nil {
		return
	}
	m.runFrame()
	m.render()
}

// StepFrameNoRender runs one frame of CPU/bus emulation without touching the
// framebuffer, for headless test-ROM runners that only watch serial output.
func (m *Machine) StepFrameNoRender() {
	if m.cpu == nil || m.bus == nil {
		return
	}
	m.runFrame()
}

func (m *Machine) runFrame() {
	acc := 0
	for acc < cyclesPerFrame {
		cycles := m.cpu.Step()
		if m.cfg.Trace {
			slog.Debug("cpu step", "pc", m.cpu.ProgramCounter(), "cycles", cycles)
		}
		m.bus.Tick(cycles)
		acc += cycles
	}
}

// Pixels returns the current frame as 160x144 RGBA8888, row-major,
// screenWidth*screenHeight*4 bytes. The backing slice is reused across
// frames; callers that need to retain a frame must copy it.
func (m *Machine) Pixels() []byte { return m.fb }

// SetButtons replaces the full button state in one call.
func (m *Machine) SetButtons(b Buttons) {
	var mask byte
	if b.Right {
		mask |= bus.JoypRight
	}
	if b.Left {
		mask |= bus.JoypLeft
	}
	if b.Up {
		mask |= bus.JoypUp
	}
	if b.Down {
		mask |= bus.JoypDown
	}
	if b.A {
		mask |= bus.JoypA
	}
	if b.B {
		mask |= bus.JoypB
	}
	if b.Select {
		mask |= bus.JoypSelectBtn
	}
	if b.Start {
		mask |= bus.JoypStart
	}
	m.buttons = mask
	if m.bus != nil {
		m.bus.SetJoypadState(m.buttons)
	}
}

// KeyPress sets button i held, for i in 0..7 meaning {Down, Up, Left,
// Right, A, B, Select, Start} in that order.
func (m *Machine) KeyPress(i int) error {
	if i < 0 || i >= len(buttonBits) {
		return &Error{Kind: InvalidButton, Op: "KeyPress", Err: fmt.Errorf("button index %d out of range [0,%d)", i, len(buttonBits))}
	}
	m.buttons |= buttonBits[i]
	if m.bus != nil {
		m.bus.SetJoypadState(m.buttons)
	}
	return nil
}

// KeyRelease sets button i released, using the same index order as KeyPress.
func (m *Machine) KeyRelease(i int) error {
	if i < 0 || i >= len(buttonBits) {
		return &Error{Kind: InvalidButton, Op: "KeyRelease", Err: fmt.Errorf("button index %d out of range [0,%d)", i, len(buttonBits))}
	}
	m.buttons &^= buttonBits[i]
	if m.bus != nil {
		m.bus.SetJoypadState(m.buttons)
	}
	return nil
}

// ExportSave returns the cartridge's external RAM, or nil if the loaded
// cartridge has none (ROM-only, or no cartridge loaded).
func (m *Machine) ExportSave() []byte {
	if m.bus == nil {
		return nil
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil
	}
	data := bb.SaveRAM()
	if len(data) == 0 {
		return nil
	}
	return data
}

// ImportSave loads external RAM bytes into the current cartridge. Calling
// ExportSave immediately afterward returns the same bytes back (a no-op on
// the running emulator's external RAM). data must be exactly the header-
// declared RAM size; a mismatched length fails with InvalidSave rather than
// silently truncating or partially filling the cartridge's RAM.
func (m *Machine) ImportSave(data []byte) error {
	if m.bus == nil {
		return &Error{Kind: InvalidSave, Op: "ImportSave", Err: fmt.Errorf("no cartridge loaded")}
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return &Error{Kind: InvalidSave, Op: "ImportSave", Err: fmt.Errorf("cartridge has no battery-backed RAM")}
	}
	if len(data) != m.ramSizeBytes {
		return &Error{Kind: InvalidSave, Op: "ImportSave", Err: fmt.Errorf("save is %d bytes, want %d", len(data), m.ramSizeBytes)}
	}
	bb.LoadRAM(data)
	return nil
}

// SetSerialWriter connects an io.Writer to receive bytes shifted out over
// the serial port, the way Blargg's test ROMs report pass/fail. Must be
// called after LoadROM/LoadROMFromFile, which replace the bus.
func (m *Machine) SetSerialWriter(w interface {
	Write([]byte) (int, error)
}) {
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

type machineState struct {
	Bus []byte
	CPU []byte
}

// SaveState serializes the full machine (bus, cartridge, PPU, CPU) as an
// opaque blob, for rewind/debug tooling beyond the battery-RAM save format.
func (m *Machine) SaveState() []byte {
	if m.bus == nil || m.cpu == nil {
		return nil
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(machineState{Bus: m.bus.SaveState(), CPU: m.cpu.SaveState()})
	return buf.Bytes()
}

// LoadState restores a blob produced by SaveState.
func (m *Machine) LoadState(data []byte) error {
	if m.bus == nil || m.cpu == nil {
		return &Error{Kind: InvalidSave, Op: "LoadState", Err: fmt.Errorf("no cartridge loaded")}
	}
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return &Error{Kind: InvalidSave, Op: "LoadState", Err: err}
	}
	m.bus.LoadState(s.Bus)
	m.cpu.LoadState(s.CPU)
	return nil
}
