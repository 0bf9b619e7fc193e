package cpu

import "testing"

// flatMem is a flat 64KiB address space standing in for the bus in
// instruction-level tests; it needs none of the MMU's device routing.
type flatMem [65536]byte

func (m *flatMem) Read8(addr uint16) byte     { return m[addr] }
func (m *flatMem) Write8(addr uint16, v byte) { m[addr] = v }

func newCPUWithROM(code []byte) (*CPU, *flatMem) {
	mem := &flatMem{}
	copy(mem[:], code)
	return New(mem), mem
}

func TestCPU_NopAndPC(t *testing.T) {
	c, _ := newCPUWithROM([]byte{0x00})
	if cycles := c.Step(); cycles != 4 {
		t.Fatalf("NOP cycles got %d want 4", cycles)
	}
	if c.PC != 1 {
		t.Fatalf("PC after NOP got %#04x want 0x0001", c.PC)
	}
}

func TestCPU_LD_A_d8_And_XOR_A(t *testing.T) {
	c, _ := newCPUWithROM([]byte{0x3E, 0x12, 0xAF}) // LD A,0x12; XOR A
	c.Step()
	if c.A != 0x12 {
		t.Fatalf("A after LD got %02X want 12", c.A)
	}
	c.Step()
	if c.A != 0x00 {
		t.Fatalf("A after XOR got %02X want 00", c.A)
	}
	if c.F&0x80 == 0 {
		t.Fatalf("Z flag not set after XOR A")
	}
}

func TestCPU_LD_a16_A_and_LD_A_a16(t *testing.T) {
	prog := []byte{0x3E, 0x77, 0xEA, 0x00, 0xC0, 0x3E, 0x00, 0xFA, 0x00, 0xC0}
	c, mem := newCPUWithROM(prog)
	c.Step() // LD A,77
	c.Step() // LD (C000),A
	if a := mem.Read8(0xC000); a != 0x77 {
		t.Fatalf("mem at C000 got %02X want 77", a)
	}
	c.Step() // LD A,00
	c.Step() // LD A,(C000)
	if c.A != 0x77 {
		t.Fatalf("A after LD A,(C000) got %02X want 77", c.A)
	}
}

func TestCPU_JP_and_JR(t *testing.T) {
	mem := &flatMem{}
	mem[0x0000] = 0xC3
	mem[0x0001] = 0x10
	mem[0x0002] = 0x00
	mem[0x0010] = 0x18
	mem[0x0011] = 0xFE // JR -2, loops on itself
	c := New(mem)
	cycles := c.Step() // JP
	if cycles != 16 || c.PC != 0x0010 {
		t.Fatalf("JP cycles=%d PC=%#04x want cycles=16 PC=0x0010", cycles, c.PC)
	}
	pcBefore := c.PC
	c.Step()
	if c.PC != pcBefore {
		t.Fatalf("JR -2 PC got %#04x want %#04x", c.PC, pcBefore)
	}
}

func TestCPU_INC_B_Flags(t *testing.T) {
	c, _ := newCPUWithROM([]byte{0x04, 0x04})
	c.B = 0x0F
	c.F = 0x10 // carry set initially
	c.Step()
	if c.B != 0x10 {
		t.Fatalf("INC B result got %02X want 10", c.B)
	}
	if c.F&0x20 == 0 {
		t.Fatalf("INC B should set H flag")
	}
	if c.F&0x10 == 0 {
		t.Fatalf("INC B should preserve C flag")
	}
	c.B = 0xFF
	c.Step()
	if c.B != 0x00 || c.F&0x80 == 0 {
		t.Fatalf("INC B to 0 should set Z flag, B=%02X F=%02X", c.B, c.F)
	}
}

func TestCPU_LD_16bit_and_LDH(t *testing.T) {
	prog := []byte{
		0x21, 0x00, 0xC0, // LD HL,C000
		0x36, 0x5A, // LD (HL),5A
		0x3E, 0x00, // LD A,00
		0xF0, 0x00, // LD A,(FF00+0)
		0xE0, 0x01, // LD (FF00+1),A
	}
	c, mem := newCPUWithROM(prog)
	mem.Write8(0xFF00, 0x0F)
	c.Step()
	c.Step()
	c.Step()
	c.Step()
	c.Step()
	if v := mem.Read8(0xC000); v != 0x5A {
		t.Fatalf("mem C000 got %02X want 5A", v)
	}
	if v := mem.Read8(0xFF01); v != c.A {
		t.Fatalf("LDH (FF00+1),A expected write to FF01 with A=%02X got %02X", c.A, v)
	}
}

func TestCPU_CALL_RET(t *testing.T) {
	mem := &flatMem{}
	mem[0x0000] = 0xCD
	mem[0x0001] = 0x05
	mem[0x0002] = 0x00
	mem[0x0005] = 0xC9
	c := New(mem)
	c.Step() // CALL
	if c.PC != 0x0005 {
		t.Fatalf("PC after CALL got %04X want 0005", c.PC)
	}
	retCycles := c.Step()
	if c.PC != 0x0003 || retCycles != 16 {
		t.Fatalf("RET did not return to 0003; PC=%04X cyc=%d", c.PC, retCycles)
	}
}

func TestCPU_InterruptServiceAndHALT(t *testing.T) {
	mem := &flatMem{}
	c := New(mem)
	c.PC = 0x0100

	c.IME = true
	mem.Write8(0xFFFF, 0x01)
	mem.Write8(0xFF0F, 0x01)

	cycles := c.Step()
	if cycles != 20 {
		t.Fatalf("expected 20 cycles for interrupt service, got %d", cycles)
	}
	if c.PC != 0x0040 {
		t.Fatalf("expected PC at 0x0040 vector, got %04X", c.PC)
	}
	if c.IME {
		t.Fatal("IME should be cleared after interrupt service")
	}

	c.halted = true
	mem.Write8(0xFFFF, 0x02)
	mem.Write8(0xFF0F, 0x02)
	cyc := c.Step()
	if cyc != 4 {
		t.Fatalf("halt step without servicing should take 4 cycles, got %d", cyc)
	}
	if c.halted {
		t.Fatal("HALT should exit when IE&IF!=0 even with IME=0")
	}
}

func TestCPU_DAA_AddAndSub(t *testing.T) {
	mem := &flatMem{}
	mem[0x0000] = 0x3E
	mem[0x0001] = 0x45
	mem[0x0002] = 0xC6
	mem[0x0003] = 0x38
	mem[0x0004] = 0x27
	c := New(mem)
	c.Step() // LD
	c.Step() // ADD
	c.Step() // DAA
	if c.A != 0x83 {
		t.Fatalf("DAA after add got A=%02X want 83", c.A)
	}
	if c.F&0x80 != 0 || c.F&0x40 != 0 || c.F&0x20 != 0 || c.F&0x10 != 0 {
		t.Fatalf("DAA flags unexpected F=%02X", c.F)
	}

	mem[0x0010] = 0x3E
	mem[0x0011] = 0x45
	mem[0x0012] = 0xD6
	mem[0x0013] = 0x06
	mem[0x0014] = 0x27
	c.PC = 0x0010
	c.Step()
	c.Step()
	c.Step()
	if c.A != 0x39 || c.F&0x40 == 0 {
		t.Fatalf("DAA after sub got A=%02X F=%02X", c.A, c.F)
	}
}

func TestCPU_EI_DelayedEnable(t *testing.T) {
	mem := &flatMem{}
	mem[0x0000] = 0xFB // EI
	mem[0x0001] = 0x00 // NOP
	c := New(mem)
	c.PC = 0x0000
	mem.Write8(0xFFFF, 0x01)
	mem.Write8(0xFF0F, 0x01)

	c.Step() // EI
	if c.IME {
		t.Fatalf("IME should not be enabled immediately after EI")
	}
	pcBefore := c.PC
	c.Step() // the instruction right after EI: must not service here
	if c.PC != pcBefore+1 {
		t.Fatalf("interrupt serviced too early after EI; PC=%04X", c.PC)
	}
	cyc := c.Step() // now IME is live, interrupt fires before the next opcode
	if c.PC != 0x0040 || cyc != 20 {
		t.Fatalf("interrupt not serviced after EI delay; PC=%04X cyc=%d", c.PC, cyc)
	}
}

func TestCPU_STOP_ConsumesPadding(t *testing.T) {
	mem := &flatMem{}
	mem[0x0000] = 0x10
	mem[0x0001] = 0x00
	mem[0x0002] = 0x00
	c := New(mem)
	cycles := c.Step()
	if cycles != 4 {
		t.Fatalf("STOP cycles got %d want 4", cycles)
	}
	if c.PC != 0x0002 {
		t.Fatalf("PC after STOP got %04X want 0002", c.PC)
	}
	if !c.stopped {
		t.Fatalf("CPU should be in the stopped sub-state")
	}
	mem.Write8(0xFF00, 0x0E) // a button reads low, waking STOP
	c.Step()
	if c.stopped {
		t.Fatalf("STOP should exit once a joypad line reads low")
	}
}

func TestCPU_HALT_Bug_DoubleFetch(t *testing.T) {
	mem := &flatMem{}
	mem[0x0000] = 0x76 // HALT
	mem[0x0001] = 0x00 // NOP
	c := New(mem)
	c.IME = false
	mem.Write8(0xFFFF, 0x01)
	mem.Write8(0xFF0F, 0x01)

	cyc := c.Step()
	if cyc != 4 || c.halted {
		t.Fatalf("HALT bug: step after HALT got cyc=%d halted=%v", cyc, c.halted)
	}
	pcBefore := c.PC
	c.Step()
	if c.PC != pcBefore {
		t.Fatalf("HALT bug: expected PC to stay at %04X on the first fetch after HALT, got %04X", pcBefore, c.PC)
	}
	c.Step()
	if c.PC != pcBefore+1 {
		t.Fatalf("HALT bug: expected PC to advance by 1 after double-fetch NOP, got %04X->%04X", pcBefore, c.PC)
	}
}

func TestCPU_CB_Prefix_CyclesAndBehavior(t *testing.T) {
	mem := &flatMem{}
	i := 0
	emit := func(b ...byte) { copy(mem[i:], b); i += len(b) }
	emit(0x21, 0x00, 0xC0) // LD HL,C000
	emit(0x36, 0x80)       // LD (HL),80
	emit(0xCB, 0x7E)       // BIT 7,(HL)
	emit(0xCB, 0xBE)       // RES 7,(HL)
	emit(0xCB, 0xC6)       // SET 0,(HL)
	emit(0xCB, 0x00)       // RLC B

	c := New(mem)
	c.Step()
	c.Step()
	cyc := c.Step()
	if cyc != 12 || c.F&0x80 != 0 {
		t.Fatalf("BIT 7,(HL) cycles/Z got cyc=%d F=%02X", cyc, c.F)
	}
	cyc = c.Step()
	if cyc != 16 || mem.Read8(0xC000) != 0x00 {
		t.Fatalf("RES 7,(HL) got cyc=%d mem=%02X", cyc, mem.Read8(0xC000))
	}
	cyc = c.Step()
	if cyc != 16 || mem.Read8(0xC000) != 0x01 {
		t.Fatalf("SET 0,(HL) got cyc=%d mem=%02X", cyc, mem.Read8(0xC000))
	}
	c.B = 0x80
	cyc = c.Step()
	if cyc != 8 || c.B != 0x01 || c.F&0x10 == 0 {
		t.Fatalf("RLC B got cyc=%d B=%02X F=%02X", cyc, c.B, c.F)
	}
}

func TestCPU_ADD_HL_FlagsAndCarry(t *testing.T) {
	mem := &flatMem{}
	i := 0
	emit := func(b ...byte) { copy(mem[i:], b); i += len(b) }
	emit(0x21, 0xFF, 0x0F) // LD HL,0x0FFF
	emit(0x01, 0x01, 0x00) // LD BC,0x0001
	emit(0x09)             // ADD HL,BC
	emit(0x21, 0xFF, 0xFF) // LD HL,0xFFFF
	emit(0x01, 0x01, 0x00) // LD BC,0x0001
	emit(0x09)             // ADD HL,BC

	c := New(mem)
	c.F = 0x80
	c.Step()
	c.Step()
	c.F = 0x80
	c.Step()
	if c.F&0x80 == 0 || c.F&0x40 != 0 || c.F&0x20 == 0 || c.F&0x10 != 0 {
		t.Fatalf("ADD HL,BC flags #1 F=%02X (expect Z=1 N=0 H=1 C=0)", c.F)
	}
	c.Step()
	c.Step()
	c.F = 0x00
	c.Step()
	if c.F&0x80 != 0 || c.F&0x40 != 0 || c.F&0x20 == 0 || c.F&0x10 == 0 {
		t.Fatalf("ADD HL,BC flags #2 F=%02X (expect Z=0 N=0 H=1 C=1)", c.F)
	}
}

func TestCPU_16bit_INC_DEC_DoNotAffectFlags(t *testing.T) {
	rom := []byte{0x03, 0x0B, 0x23, 0x2B, 0x13, 0x1B, 0x33, 0x3B}
	c, _ := newCPUWithROM(rom)
	c.F = 0xF0
	for range rom {
		c.Step()
		if c.F != 0xF0 {
			t.Fatalf("16-bit INC/DEC should not change flags; F=%02X", c.F)
		}
	}
}

func TestCPU_Conditional_Cycles(t *testing.T) {
	mem := &flatMem{}
	mem[0x0000] = 0x20
	mem[0x0001] = 0x02
	c := New(mem)
	c.F = 0x00
	cyc := c.Step()
	if cyc != 12 || c.PC != 0x0004 {
		t.Fatalf("JR NZ taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}
	c.PC = 0x0000
	c.F = 0x80
	cyc = c.Step()
	if cyc != 8 || c.PC != 0x0002 {
		t.Fatalf("JR NZ not-taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}

	mem[0x0010] = 0xD2
	mem[0x0011] = 0x34
	mem[0x0012] = 0x12
	c.PC = 0x0010
	c.F = 0x00
	cyc = c.Step()
	if cyc != 16 || c.PC != 0x1234 {
		t.Fatalf("JP NC taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}
	c.PC = 0x0010
	c.F = 0x10
	cyc = c.Step()
	if cyc != 12 || c.PC != 0x0013 {
		t.Fatalf("JP NC not-taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}

	mem[0x0020] = 0xC4
	mem[0x0021] = 0x00
	mem[0x0022] = 0x40
	c.PC = 0x0020
	c.F = 0x00
	cyc = c.Step()
	if cyc != 24 || c.PC != 0x4000 {
		t.Fatalf("CALL NZ taken cycles/PC: cyc=%d PC=%04X", cyc, c.PC)
	}
	mem[0x4000] = 0xD8
	c.F = 0x10
	cyc = c.Step()
	if cyc != 20 {
		t.Fatalf("RET C taken cycles=%d", cyc)
	}
}

func TestCPU_ADC_SBC_HalfCarry(t *testing.T) {
	mem := &flatMem{}
	mem[0x0000], mem[0x0001], mem[0x0002], mem[0x0003] = 0x3E, 0x0F, 0xCE, 0x00
	c := New(mem)
	c.F = 0x10
	c.Step()
	c.Step()
	if c.A != 0x10 || c.F&0x20 == 0 || c.F&0x10 != 0 {
		t.Fatalf("ADC half-carry failed: A=%02X F=%02X", c.A, c.F)
	}

	mem2 := &flatMem{}
	mem2[0x0000], mem2[0x0001], mem2[0x0002], mem2[0x0003] = 0x3E, 0x10, 0xDE, 0x01
	c2 := New(mem2)
	c2.F = 0x00
	c2.Step()
	c2.Step()
	if c2.A != 0x0F || c2.F&0x20 == 0 || c2.F&0x10 != 0 {
		t.Fatalf("SBC half-borrow failed: A=%02X F=%02X", c2.A, c2.F)
	}

	mem3 := &flatMem{}
	mem3[0x0000], mem3[0x0001], mem3[0x0002], mem3[0x0003] = 0x3E, 0x00, 0xDE, 0x01
	c3 := New(mem3)
	c3.Step()
	c3.Step()
	if c3.A != 0xFF || c3.F&0x20 == 0 || c3.F&0x10 == 0 {
		t.Fatalf("SBC borrow flags failed: A=%02X F=%02X", c3.A, c3.F)
	}
}

func TestCPU_LD_HL_SP_plus_r8_and_ADD_SP_r8_Flags(t *testing.T) {
	rom := []byte{
		0x31, 0x0F, 0xFF, // LD SP,FF0F
		0xF8, 0xFF, // LD HL,SP-1 => FF0E, H=1,C=1
		0xE8, 0x01, // ADD SP,+1 => FF10, H=1,C=0
		0xE8, 0xFE, // ADD SP,-2 => FF0E, H=0,C=1
	}
	c, _ := newCPUWithROM(rom)
	c.Step() // LD SP
	c.Step() // LD HL,SP-1
	if c.hl() != 0xFF0E || c.F&0x20 == 0 || c.F&0x10 == 0 {
		t.Fatalf("LD HL,SP-1 flags/HL wrong: HL=%04X F=%02X", c.hl(), c.F)
	}
	c.Step() // ADD SP,+1
	if c.SP != 0xFF10 || c.F&0x20 == 0 || c.F&0x10 != 0 {
		t.Fatalf("ADD SP,+1 flags/SP wrong: SP=%04X F=%02X", c.SP, c.F)
	}
	c.Step() // ADD SP,-2
	if c.SP != 0xFF0E || c.F&0x10 == 0 {
		t.Fatalf("ADD SP,-2 flags/SP wrong: SP=%04X F=%02X", c.SP, c.F)
	}
}

func TestCPU_POP_AF_MasksFlagsLowNibble(t *testing.T) {
	mem := &flatMem{}
	mem[0x0000] = 0xF5 // PUSH AF
	mem[0x0001] = 0xF1 // POP AF
	c := New(mem)
	c.A = 0x12
	c.F = 0xF0
	c.Step() // PUSH AF
	sp := c.SP
	mem.Write8(sp, 0x34)
	mem.Write8(sp+1, 0x12)
	c.Step() // POP AF
	if c.A != 0x12 {
		t.Fatalf("POP AF A got %02X want 12", c.A)
	}
	if c.F&0x0F != 0x00 {
		t.Fatalf("POP AF should clear low nibble of F, got F=%02X", c.F)
	}
}

func TestCPU_UnprefixedRotates_ClearZ(t *testing.T) {
	rom := []byte{0x07, 0x0F, 0x17, 0x1F} // RLCA RRCA RLA RRA
	c, _ := newCPUWithROM(rom)
	c.A = 0x00
	c.F = 0x80
	c.Step()
	if c.F&0x80 != 0 {
		t.Fatalf("RLCA should clear Z, F=%02X", c.F)
	}
	c.F = 0x80
	c.Step()
	if c.F&0x80 != 0 {
		t.Fatalf("RRCA should clear Z, F=%02X", c.F)
	}
	c.F = 0x90
	c.Step()
	if c.F&0x80 != 0 {
		t.Fatalf("RLA should clear Z, F=%02X", c.F)
	}
	c.F = 0x10
	c.Step()
	if c.F&0x80 != 0 {
		t.Fatalf("RRA should clear Z, F=%02X", c.F)
	}
}

func TestCPU_CCF_SCF_CPL_Flags(t *testing.T) {
	rom := []byte{0x3E, 0x00, 0x37, 0x3F, 0x2F}
	c, _ := newCPUWithROM(rom)
	c.F = 0x80
	c.Step() // LD A,00
	c.Step() // SCF
	if c.F&0x10 == 0 || c.F&0x80 == 0 || c.F&0x60 != 0 {
		t.Fatalf("SCF flags unexpected F=%02X", c.F)
	}
	c.Step() // CCF
	if c.F&0x10 != 0 || c.F&0x80 == 0 || c.F&0x60 != 0 {
		t.Fatalf("CCF flags unexpected F=%02X", c.F)
	}
	prevC, prevZ := c.F&0x10, c.F&0x80
	c.Step() // CPL
	if c.A != 0xFF {
		t.Fatalf("CPL A got %02X want FF", c.A)
	}
	if c.F&0x60 != 0x60 || c.F&0x10 != prevC || c.F&0x80 != prevZ {
		t.Fatalf("CPL flags unexpected F=%02X", c.F)
	}
}

func TestCPU_RETI_EnablesIME_AndCycles(t *testing.T) {
	mem := &flatMem{}
	mem[0x0040] = 0xD9 // RETI
	c := New(mem)
	c.PC = 0x0100
	c.IME = true
	mem.Write8(0xFFFF, 0x01)
	mem.Write8(0xFF0F, 0x01)
	cyc := c.Step()
	if cyc != 20 || c.PC != 0x0040 {
		t.Fatalf("interrupt service failed: cyc=%d PC=%04X", cyc, c.PC)
	}
	if c.IME {
		t.Fatalf("IME should be cleared during ISR, got IME=true")
	}
	cyc = c.Step() // RETI
	if cyc != 16 {
		t.Fatalf("RETI cycles got %d want 16", cyc)
	}
	if !c.IME {
		t.Fatalf("RETI should enable IME immediately, unlike EI")
	}
}

func TestCPU_LD_r_from_HL_CyclesAndBehavior(t *testing.T) {
	mem := &flatMem{}
	i := 0
	emit := func(bts ...byte) { copy(mem[i:], bts); i += len(bts) }
	emit(0x21, 0x00, 0xC0, 0x46) // LD HL,C000; LD B,(HL)
	emit(0x21, 0x00, 0xC0, 0x7E) // LD HL,C000; LD A,(HL)
	mem.Write8(0xC000, 0x5A)

	c := New(mem)
	if cyc := c.Step(); cyc != 12 || c.hl() != 0xC000 {
		t.Fatalf("LD HL,d16 failed: cyc=%d HL=%04X", cyc, c.hl())
	}
	if cyc := c.Step(); cyc != 8 || c.B != 0x5A {
		t.Fatalf("LD B,(HL) cyc=%d B=%02X", cyc, c.B)
	}
	if cyc := c.Step(); cyc != 12 || c.hl() != 0xC000 {
		t.Fatalf("LD HL,d16 failed: cyc=%d HL=%04X", cyc, c.hl())
	}
	if cyc := c.Step(); cyc != 8 || c.A != 0x5A {
		t.Fatalf("LD A,(HL) cyc=%d A=%02X", cyc, c.A)
	}
}
