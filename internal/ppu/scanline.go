package ppu

// Pure scanline helpers. They read VRAM through VRAMReader and return raw
// 2-bit color indices; palette mapping happens in the caller.

// Sprite is one OAM entry with screen-space coordinates (Y-16, X-8 applied).
type Sprite struct {
	X, Y       int
	Tile, Attr byte
	OAMIndex   int
}

// RenderBGScanline produces the 160 background color indices for scanline ly.
func RenderBGScanline(mem VRAMReader, mapBase uint16, tileData8000 bool, scx, scy, ly byte) [160]byte {
	var out [160]byte

	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapY := (bgY >> 3) & 31

	tileX := (uint16(scx) >> 3) & 31
	fineX := int(scx & 7)

	var q fifo
	f := newTileFetcher(mem, &q)
	f.Configure(tileData8000, mapBase+mapY*32+tileX, fineY)
	f.Fetch()
	for i := 0; i < fineX; i++ {
		_, _ = q.Pop()
	}

	for x := 0; x < 160; x++ {
		if q.Len() == 0 {
			tileX = (tileX + 1) & 31
			f.Configure(tileData8000, mapBase+mapY*32+tileX, fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}

// RenderWindowScanline fills indices from startX (WX-7, may be negative) to
// the right edge using the window's internal line counter as Y. Pixels left
// of startX keep the value 0xFF to mean "window not here".
func RenderWindowScanline(mem VRAMReader, mapBase uint16, tileData8000 bool, startX int, winLine byte) [160]byte {
	var out [160]byte
	for i := range out {
		out[i] = 0xFF
	}
	if startX >= 160 {
		return out
	}

	fineY := winLine & 7
	mapY := uint16(winLine >> 3)

	var q fifo
	f := newTileFetcher(mem, &q)
	tileX := uint16(0)
	f.Configure(tileData8000, mapBase+mapY*32+tileX, fineY)
	f.Fetch()

	// The window always starts at its own column 0; when WX<7 the leading
	// pixels fall off the left edge.
	if startX < 0 {
		for i := 0; i < -startX; i++ {
			if q.Len() == 0 {
				tileX++
				f.Configure(tileData8000, mapBase+mapY*32+(tileX&31), fineY)
				f.Fetch()
			}
			_, _ = q.Pop()
		}
	}
	for x := max(0, startX); x < 160; x++ {
		if q.Len() == 0 {
			tileX++
			f.Configure(tileData8000, mapBase+mapY*32+(tileX&31), fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}

// ComposeSpriteLine resolves per-pixel sprite output for scanline ly.
// sprites must be the OAM-search result in raw OAM order (at most 10).
// bg holds the line's raw BG/window color indices for priority checks.
// Returns the sprite color index per pixel (0 = nothing drawn) and the
// palette selector (0 = OBP0, 1 = OBP1).
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, ly int, bg [160]byte, tall bool) (line [160]byte, palSel [160]byte) {
	height := 8
	if tall {
		height = 16
	}
	for x := 0; x < 160; x++ {
		found := false
		bestX, bestIdx := 0, 0
		var bestCI, bestPal byte
		for _, s := range sprites {
			if x < s.X || x >= s.X+8 {
				continue
			}
			row := ly - s.Y
			col := x - s.X
			if s.Attr&(1<<6) != 0 {
				row = height - 1 - row
			}
			if s.Attr&(1<<5) != 0 {
				col = 7 - col
			}
			tile := s.Tile
			if tall {
				tile &= 0xFE
				if row >= 8 {
					tile++
				}
			}
			base := 0x8000 + uint16(tile)*16 + uint16(row&7)*2
			lo := mem.Read(base)
			hi := mem.Read(base + 1)
			bit := 7 - byte(col)
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if ci == 0 {
				continue
			}
			// OBJ-to-BG priority: behind non-zero BG/window pixels
			if s.Attr&(1<<7) != 0 && bg[x] != 0 {
				continue
			}
			if !found || s.X < bestX || (s.X == bestX && s.OAMIndex < bestIdx) {
				found = true
				bestX, bestIdx = s.X, s.OAMIndex
				bestCI = ci
				bestPal = (s.Attr >> 4) & 1
			}
		}
		if found {
			line[x] = bestCI
			palSel[x] = bestPal
		}
	}
	return line, palSel
}
