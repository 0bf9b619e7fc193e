package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC3 implements ROM/RAM banking plus the real-time clock found on
// battery-backed MBC3 carts (e.g. Pokémon Gold/Silver).
//
// Banking:
//   - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
//   - 2000-3FFF: ROM bank, 7 bits (0 maps to 1)
//   - 4000-5FFF: RAM bank 0-3, or RTC register select 0x08-0x0C
//   - 6000-7FFF: latch clock data into the RTC register set
//   - A000-BFFF: external RAM, or the latched RTC register selected above
//
// clockTicksPerSecond is the DMG CPU clock rate; the RTC advances in
// T-cycles rather than wall-clock time so the clock stays in lockstep
// with StepFrame regardless of host speed.
const clockTicksPerSecond = 4194304

type rtc struct {
	seconds, minutes, hours byte
	days                    uint16 // 9-bit day counter
	halt                    bool
	carry                   bool
	cycleAcc                int

	latched    [5]byte // Seconds, Minutes, Hours, DayLow, DayHigh
	latchPrev  byte    // last byte written to the latch-trigger port
}

func (r *rtc) tick(tCycles int) {
	if r.halt {
		return
	}
	r.cycleAcc += tCycles
	for r.cycleAcc >= clockTicksPerSecond {
		r.cycleAcc -= clockTicksPerSecond
		r.seconds++
		if r.seconds < 60 {
			continue
		}
		r.seconds = 0
		r.minutes++
		if r.minutes < 60 {
			continue
		}
		r.minutes = 0
		r.hours++
		if r.hours < 24 {
			continue
		}
		r.hours = 0
		r.days++
		if r.days > 511 {
			r.days = 0
			r.carry = true
		}
	}
}

// latchWrite implements the documented 0x00-then-0x01 handshake: only a
// 0x01 write that directly follows a 0x00 write copies the live counters
// into the latched snapshot the CPU actually reads.
func (r *rtc) latchWrite(v byte) {
	if r.latchPrev == 0x00 && v == 0x01 {
		r.latched[0] = r.seconds
		r.latched[1] = r.minutes
		r.latched[2] = r.hours
		r.latched[3] = byte(r.days)
		dayHigh := byte(r.days>>8) & 0x01
		if r.halt {
			dayHigh |= 0x40
		}
		if r.carry {
			dayHigh |= 0x80
		}
		r.latched[4] = dayHigh
	}
	r.latchPrev = v
}

func (r *rtc) readSelected(reg byte) byte { return r.latched[reg-0x08] }

func (r *rtc) writeSelected(reg, v byte) {
	switch reg {
	case 0x08:
		r.seconds = v % 60
	case 0x09:
		r.minutes = v % 60
	case 0x0A:
		r.hours = v % 24
	case 0x0B:
		r.days = r.days&0x100 | uint16(v)
	case 0x0C:
		r.days = r.days&0x0FF | uint16(v&0x01)<<8
		r.halt = v&0x40 != 0
		r.carry = v&0x80 != 0
	}
}

type MBC3 struct {
	rom []byte
	ram []byte
	rtc *rtc // nil for non-RTC MBC3 cartridge types (0x0F/0x10 carry one, 0x11-0x13 don't)

	ramEnabled  bool
	romBank     byte // 7 bits, 1..127
	ramBank     byte // 0..3 when selecting RAM
	rtcSelected byte // 0 when RAM is selected, else 0x08..0x0C
}

func NewMBC3(rom []byte, ramSize int, hasRTC bool) *MBC3 {
	m := &MBC3{rom: rom, romBank: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	if hasRTC {
		m.rtc = &rtc{latchPrev: 0xFF}
	}
	return m
}

// Tick advances the real-time clock, if this cartridge has one.
func (m *MBC3) Tick(tCycles int) {
	if m.rtc != nil {
		m.rtc.tick(tCycles)
	}
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank)
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.rtcSelected != 0 {
			if m.rtc == nil {
				return 0xFF
			}
			return m.rtc.readSelected(m.rtcSelected)
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		off := int(m.ramBank)*0x2000 + int(addr-0xA000)
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
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		if value <= 0x03 {
			m.ramBank = value & 0x03
			m.rtcSelected = 0
		} else if value >= 0x08 && value <= 0x0C {
			// Selector succeeds even without an RTC (cart types 0x11-0x13);
			// Read/Write return 0xFF/drop for a nil m.rtc instead of falling
			// through to RAM.
			m.rtcSelected = value
		}
	case addr < 0x8000:
		if m.rtc != nil {
			m.rtc.latchWrite(value)
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.rtcSelected != 0 {
			if m.rtc != nil {
				m.rtc.writeSelected(m.rtcSelected, value)
			}
			return
		}
		if len(m.ram) == 0 {
			return
		}
		off := int(m.ramBank)*0x2000 + int(addr-0xA000)
		if off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) SaveRAM() []byte {
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	copy(m.ram, data)
}

// rtcState mirrors rtc with exported fields, since gob silently drops
// unexported ones.
type rtcState struct {
	Seconds, Minutes, Hours byte
	Days                    uint16
	Halt, Carry             bool
	CycleAcc                int
	Latched                 [5]byte
	LatchPrev               byte
}

type mbc3State struct {
	RAM         []byte
	RomBank     byte
	RamBank     byte
	RamEnabled  bool
	RTCSelected byte
	HasRTC      bool
	RTC         rtcState
}

func (m *MBC3) SaveState() []byte {
	st := mbc3State{
		RAM:         m.ram,
		RomBank:     m.romBank,
		RamBank:     m.ramBank,
		RamEnabled:  m.ramEnabled,
		RTCSelected: m.rtcSelected,
		HasRTC:      m.rtc != nil,
	}
	if m.rtc != nil {
		st.RTC = rtcState{
			Seconds: m.rtc.seconds, Minutes: m.rtc.minutes, Hours: m.rtc.hours,
			Days: m.rtc.days, Halt: m.rtc.halt, Carry: m.rtc.carry,
			CycleAcc: m.rtc.cycleAcc, Latched: m.rtc.latched, LatchPrev: m.rtc.latchPrev,
		}
	}
	var buf bytes.Buffer
	gob.NewEncoder(&buf).Encode(st)
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var st mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return
	}
	copy(m.ram, st.RAM)
	m.romBank = st.RomBank
	m.ramBank = st.RamBank
	m.ramEnabled = st.RamEnabled
	m.rtcSelected = st.RTCSelected
	if st.HasRTC {
		m.rtc = &rtc{
			seconds: st.RTC.Seconds, minutes: st.RTC.Minutes, hours: st.RTC.Hours,
			days: st.RTC.Days, halt: st.RTC.Halt, carry: st.RTC.Carry,
			cycleAcc: st.RTC.CycleAcc, latched: st.RTC.Latched, latchPrev: st.RTC.LatchPrev,
		}
	} else {
		m.rtc = nil
	}
}
