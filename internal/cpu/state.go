package cpu

import (
	"bytes"
	"encoding/gob"
)

type cpuState struct {
	A, F byte
	B, C byte
	D, E byte
	H, L byte

	SP, PC uint16

	IME         bool
	Halted      bool
	Stopped     bool
	EICountdown int
	HaltBugPend bool
}

// SaveState serializes the register file and interrupt-dispatch sub-state.
// It never touches mem; the bus owns and serializes its own state.
func (c *CPU) SaveState() []byte {
	s := cpuState{
		A: c.A, F: c.F, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		SP: c.SP, PC: c.PC,
		IME: c.IME, Halted: c.halted, Stopped: c.stopped,
		EICountdown: c.eiCountdown, HaltBugPend: c.haltBugPend,
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (c *CPU) LoadState(data []byte) {
	var s cpuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	c.A, c.F, c.B, c.C, c.D, c.E, c.H, c.L = s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L
	c.SP, c.PC = s.SP, s.PC
	c.IME = s.IME
	c.halted = s.Halted
	c.stopped = s.Stopped
	c.eiCountdown = s.EICountdown
	c.haltBugPend = s.HaltBugPend
}
