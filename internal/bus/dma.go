package bus

// dmaDurationCycles is the number of T-cycles an OAM DMA transfer blocks
// the CPU from everything but HRAM: 160 M-cycles, i.e. 640 T-cycles. The
// source bytes are captured up front and drained into OAM as the transfer
// completes, so a read of OAM mid-transfer sees stale data rather than a
// half-written buffer.
const dmaDurationCycles = 640

func (b *Bus) writeDMA(v byte) {
	b.dmaReg = v
	src := uint16(v) << 8
	for i := 0; i < len(b.dmaBuffer); i++ {
		b.dmaBuffer[i] = b.readRaw(src + uint16(i))
	}
	b.dmaActive = true
	b.dmaCycles = dmaDurationCycles
}

func (b *Bus) tickDMA() {
	if !b.dmaActive {
		return
	}
	b.dmaCycles--
	if b.dmaCycles <= 0 {
		for i := 0; i < len(b.dmaBuffer); i++ {
			b.ppu.DMAWriteOAM(i, b.dmaBuffer[i])
		}
		b.dmaActive = false
	}
}
