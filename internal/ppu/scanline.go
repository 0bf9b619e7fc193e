package ppu

// renderBGScanlineUsingFetcher renders 160 BG pixels for the given LY using the isolated fetcher.
// Inputs:
// - mem: VRAM reader
// - mapBase: 0x9800 or 0x9C00
// - tileData8000: true -> 0x8000 addressing; false -> 0x8800 signed addressing
// - scx, scy: scroll registers
// - ly: current scanline (0..143)
// Output: 160 color indices (0..3)
func renderBGScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, scx, scy, ly byte) [160]byte {
	var out [160]byte

	// Compute BG coordinates.
	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapY := (bgY >> 3) & 31 // 0..31 rows

	startX := uint16(scx)
	tileX := (startX >> 3) & 31
	fineX := int(startX & 7)

	// Map index address for the first tile column.
	tileIndexAddr := mapBase + mapY*32 + tileX

	var q fifo
	f := newBGFetcher(mem, &q)
	f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
	f.Fetch()
	// Discard scx fractional pixels.
	for i := 0; i < fineX; i++ {
		_, _ = q.Pop()
	}

	// Produce 160 pixels, fetching new tiles as the FIFO empties.
	for x := 0; x < 160; x++ {
		if q.Len() == 0 {
			// Advance to next tile in map row (wrap at 32 tiles).
			tileX = (tileX + 1) & 31
			tileIndexAddr = mapBase + mapY*32 + tileX
			f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}

// RenderBGScanlineUsingFetcher is the exported entry point renderers outside
// this package use to render one BG scanline.
func RenderBGScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, scx, scy, ly byte) [160]byte {
	return renderBGScanlineUsingFetcher(mem, mapBase, tileData8000, scx, scy, ly)
}

// RenderWindowScanlineUsingFetcher renders the window layer for one scanline
// starting at screen column startX (WX-7), continuing through column 159.
// Columns left of startX are left as color index 0; callers composite the
// window over the BG line only from startX onward. winLine is the window's
// own internal line counter (0..143), incremented only on scanlines where
// the window is actually drawn, and is distinct from LY.
func RenderWindowScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, startX int, winLine byte) [160]byte {
	var out [160]byte
	if startX >= 160 {
		return out
	}
	if startX < 0 {
		startX = 0
	}
	fineY := winLine & 7
	mapRow := uint16(winLine>>3) & 31
	var tileCol uint16
	var q fifo
	f := newBGFetcher(mem, &q)
	f.Configure(mapBase, tileData8000, mapBase+mapRow*32+tileCol, fineY)
	f.Fetch()
	for x := startX; x < 160; x++ {
		if q.Len() == 0 {
			tileCol++
			f.Configure(mapBase, tileData8000, mapBase+mapRow*32+tileCol, fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}
