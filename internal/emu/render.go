package emu

import "github.com/coregb/dmgcore/internal/ppu"

// vramReader adapts the live PPU's RawVRAM to ppu.VRAMReader, the interface
// the per-scanline fetcher helpers read through.
type vramReader struct{ ppu *ppu.PPU }

func (v vramReader) Read(addr uint16) byte { return v.ppu.RawVRAM(addr) }

// render composes one frame into m.fb from the PPU's per-scanline register
// snapshots (LineRegs), using the fetcher/FIFO scanline helpers for BG and
// window and the sprite composer for OBJs. Each layer is driven off the
// register values the PPU actually had at Mode-3 entry for that line, so a
// write mid-frame takes effect on the next scanline rather than
// retroactively repainting earlier ones.
func (m *Machine) render() {
	m.renderBG()
	m.renderWindow()
	m.renderSprites()
}

func grayShade(pal, ci byte) byte {
	switch (pal >> (ci * 2)) & 0x03 {
	case 0:
		return 0xFF
	case 1:
		return 0xC0
	case 2:
		return 0x60
	default:
		return 0x00
	}
}

func (m *Machine) setPixel(x, y int, gray byte) {
	i := (y*screenWidth + x) * 4
	m.fb[i+0], m.fb[i+1], m.fb[i+2], m.fb[i+3] = gray, gray, gray, 0xFF
}

func (m *Machine) renderBG() {
	vr := vramReader{ppu: m.bus.PPU()}
	for y := 0; y < screenHeight; y++ {
		lr := m.bus.PPU().LineRegs(y)
		if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 {
			for x := 0; x < screenWidth; x++ {
				m.setPixel(x, y, 0xFF)
				m.bgci[y*screenWidth+x] = 0
			}
			continue
		}
		mapBase := uint16(0x9800)
		if lr.LCDC&0x08 != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := lr.LCDC&0x10 != 0
		line := ppu.RenderBGScanlineUsingFetcher(vr, mapBase, tileData8000, lr.SCX, lr.SCY, byte(y))
		for x := 0; x < screenWidth; x++ {
			ci := line[x]
			m.setPixel(x, y, grayShade(lr.BGP, ci))
			m.bgci[y*screenWidth+x] = ci
		}
	}
}

func (m *Machine) renderWindow() {
	vr := vramReader{ppu: m.bus.PPU()}
	for y := 0; y < screenHeight; y++ {
		lr := m.bus.PPU().LineRegs(y)
		if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x01) == 0 || (lr.LCDC&0x20) == 0 {
			continue
		}
		if y < int(lr.WY) || int(lr.WY) >= screenHeight {
			continue
		}
		winXStart := int(lr.WX) - 7
		if winXStart >= screenWidth {
			continue
		}
		mapBase := uint16(0x9800)
		if lr.LCDC&0x40 != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := lr.LCDC&0x10 != 0
		line := ppu.RenderWindowScanlineUsingFetcher(vr, mapBase, tileData8000, winXStart, lr.WinLine)
		for x := max(0, winXStart); x < screenWidth; x++ {
			ci := line[x]
			m.setPixel(x, y, grayShade(lr.BGP, ci))
			m.bgci[y*screenWidth+x] = ci
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (m *Machine) renderSprites() {
	vr := vramReader{ppu: m.bus.PPU()}
	for y := 0; y < screenHeight; y++ {
		lr := m.bus.PPU().LineRegs(y)
		if (lr.LCDC&0x80) == 0 || (lr.LCDC&0x02) == 0 {
			continue
		}
		sprite16 := lr.LCDC&0x04 != 0
		height := 8
		if sprite16 {
			height = 16
		}
		sprites := make([]ppu.Sprite, 0, 10)
		for i := 0; i < 40 && len(sprites) < 10; i++ {
			base := uint16(0xFE00 + i*4)
			sy := int(m.bus.PPU().RawOAM(base)) - 16
			sx := int(m.bus.PPU().RawOAM(base+1)) - 8
			tile := m.bus.PPU().RawOAM(base + 2)
			attr := m.bus.PPU().RawOAM(base + 3)
			if sy <= y && y < sy+height {
				sprites = append(sprites, ppu.Sprite{X: sx, Y: sy, Tile: tile, Attr: attr, OAMIndex: i})
			}
		}
		if len(sprites) == 0 {
			continue
		}
		var bgciLine [screenWidth]byte
		copy(bgciLine[:], m.bgci[y*screenWidth:(y+1)*screenWidth])
		ci, pal := ppu.ComposeSpriteLineExt(vr, sprites, y, bgciLine, sprite16)
		for x := 0; x < screenWidth; x++ {
			if ci[x] == 0 {
				continue
			}
			p := lr.OBP0
			if pal[x] == 1 {
				p = lr.OBP1
			}
			m.setPixel(x, y, grayShade(p, ci[x]))
		}
	}
}
