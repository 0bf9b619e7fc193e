package cpu

// cbTable holds one entry per CB-prefixed opcode, generated from the three
// orthogonal fields every CB opcode encodes: the shift/rotate variant or
// BIT/RES/SET group (bits 7-6 and 5-3) and the target register (bits 2-0).
var cbTable [256]func(*CPU) int

func init() {
	shiftOps := []func(c *CPU, v byte) byte{
		(*CPU).rlc,
		(*CPU).rrc,
		(*CPU).rl,
		(*CPU).rr,
		(*CPU).sla,
		(*CPU).sra,
		(*CPU).swap,
		(*CPU).srl,
	}
	for variant, fn := range shiftOps {
		variant, fn := byte(variant), fn
		for r := reg8(0); r < 8; r++ {
			r := r
			op := variant<<3 | byte(r)
			cbTable[op] = func(c *CPU) int {
				v := fn(c, c.getReg(r))
				c.setReg(r, v)
				if r == regHLInd {
					return 16
				}
				return 8
			}
		}
	}
	for bit := uint(0); bit < 8; bit++ {
		bit := bit
		for r := reg8(0); r < 8; r++ {
			r := r
			cbTable[0x40+byte(bit)<<3|byte(r)] = func(c *CPU) int {
				c.bit(c.getReg(r), bit)
				if r == regHLInd {
					return 12
				}
				return 8
			}
			cbTable[0x80+byte(bit)<<3|byte(r)] = func(c *CPU) int {
				c.setReg(r, c.res(c.getReg(r), bit))
				if r == regHLInd {
					return 16
				}
				return 8
			}
			cbTable[0xC0+byte(bit)<<3|byte(r)] = func(c *CPU) int {
				c.setReg(r, c.set(c.getReg(r), bit))
				if r == regHLInd {
					return 16
				}
				return 8
			}
		}
	}
}
