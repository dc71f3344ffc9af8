package tui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"
)

var hoverStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))

// renderFrame draws every marker of a frame that touches its viewport.
func renderFrame(f Frame, hover *Marker) string {
	w, h := f.width, f.height
	br := newBrailleBuf(w, h)

	inks := map[int]int{}
	var styles []lipgloss.Style
	glyphs := map[[2]int]*Marker{}
	view := f.Viewport().Bounds.Bound()

	for _, mk := range f.Markers {
		ink, ok := inks[mk.layer.ID]
		if !ok {
			styles = append(styles, mk.style)
			ink = len(styles)
			inks[mk.layer.ID] = ink
		}

		g := mk.feature.Geometry
		if g == nil || !view.Intersects(g.Bound()) {
			continue
		}
		drawGeometry(br, f.projection, g, ink)

		if mk.glyph != "" {
			if p, ok := mk.Position(); ok {
				mx, my := f.ToMicro(p)
				glyphs[[2]int{mx / 2, my / 4}] = mk
			}
		}
	}

	lines := br.toLines(styles)
	if len(glyphs) == 0 && hover == nil {
		return strings.Join(lines, "\n")
	}

	// overlays need cell addressing, so fall back to one styled string per cell
	cells := make([][]string, h)
	for y := range cells {
		cells[y] = make([]string, w)
		for x := range cells[y] {
			mask := br.m[y][x]
			if mask == 0 {
				cells[y][x] = " "
				continue
			}
			cells[y][x] = string(rune(0x2800 + int(mask)))
			if ink := br.ink[y][x]; ink > 0 {
				cells[y][x] = styles[ink-1].Render(cells[y][x])
			}
		}
	}
	for c, mk := range glyphs {
		if c[0] >= 0 && c[0] < w && c[1] >= 0 && c[1] < h {
			cells[c[1]][c[0]] = mk.style.Render(firstRune(mk.glyph))
		}
	}
	if hover != nil {
		if p, ok := hover.Position(); ok {
			mx, my := f.ToMicro(p)
			cx, cy := mx/2, my/4
			if cx >= 0 && cx < w && cy >= 0 && cy < h {
				cells[cy][cx] = hoverStyle.Render("◯")
			}
		}
	}

	for y := range cells {
		lines[y] = strings.Join(cells[y], "")
	}
	return strings.Join(lines, "\n")
}

func drawGeometry(br *brailleBuf, p projection, g orb.Geometry, ink int) {
	switch g := g.(type) {
	case orb.Point:
		mx, my := p.ToMicro(g)
		br.setPixel(mx, my, ink)
	case orb.MultiPoint:
		for _, pt := range g {
			drawGeometry(br, p, pt, ink)
		}
	case orb.LineString:
		drawPath(br, p, g, false, ink)
	case orb.MultiLineString:
		for _, ls := range g {
			drawPath(br, p, ls, false, ink)
		}
	case orb.Ring:
		drawPath(br, p, g, true, ink)
	case orb.Polygon:
		drawPolygon(br, p, g, ink)
	case orb.MultiPolygon:
		for _, poly := range g {
			drawPolygon(br, p, poly, ink)
		}
	case orb.Collection:
		for _, c := range g {
			drawGeometry(br, p, c, ink)
		}
	case orb.Bound:
		drawPolygon(br, p, g.ToPolygon(), ink)
	}
}

func drawPath(br *brailleBuf, p projection, pts []orb.Point, closed bool, ink int) {
	if len(pts) == 0 {
		return
	}
	if len(pts) == 1 {
		mx, my := p.ToMicro(pts[0])
		br.setPixel(mx, my, ink)
		return
	}

	px, py := p.ToMicro(pts[0])
	for _, pt := range pts[1:] {
		mx, my := p.ToMicro(pt)
		br.drawLineMicro(px, py, mx, my, ink)
		px, py = mx, my
	}
	if closed {
		fx, fy := p.ToMicro(pts[0])
		br.drawLineMicro(px, py, fx, fy, ink)
	}
}

// drawPolygon fills the outer ring with the even-odd rule per micro scanline, then draws
// every ring's edges. Holes are outlined, not cut out.
func drawPolygon(br *brailleBuf, p projection, poly orb.Polygon, ink int) {
	if len(poly) == 0 {
		return
	}

	outer := make([][2]int, 0, len(poly[0]))
	for _, pt := range poly[0] {
		mx, my := p.ToMicro(pt)
		outer = append(outer, [2]int{mx, my})
	}

	if len(outer) >= 3 {
		hMic := br.h * 4
		for yMic := 0; yMic < hMic; yMic++ {
			var xs []int
			for i := 0; i < len(outer); i++ {
				a := outer[i]
				b := outer[(i+1)%len(outer)]
				if a[1] == b[1] {
					continue
				}
				y0, y1 := a[1], b[1]
				x0, x1 := a[0], b[0]
				if (yMic >= y0 && yMic < y1) || (yMic >= y1 && yMic < y0) {
					t := float64(yMic-y0) / float64(y1-y0)
					xs = append(xs, int(float64(x0)+t*float64(x1-x0)))
				}
			}
			sort.Ints(xs)
			for i := 0; i+1 < len(xs); i += 2 {
				br.fillSpan(yMic, xs[i], xs[i+1], ink)
			}
		}
	}

	for _, ring := range poly {
		drawPath(br, p, ring, true, ink)
	}
}

// nearestMarker returns the marker whose position is closest to the micro coords.
func nearestMarker(f Frame, mx, my int) (*Marker, bool) {
	var best *Marker
	bestD := -1
	for _, mk := range f.Markers {
		p, ok := mk.Position()
		if !ok {
			continue
		}
		x, y := f.ToMicro(p)
		if x < 0 || y < 0 || x >= f.width*2 || y >= f.height*4 {
			continue
		}
		dx, dy := x-mx, y-my
		if d := dx*dx + dy*dy; bestD < 0 || d < bestD {
			bestD = d
			best = mk
		}
	}
	return best, best != nil
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return " "
}
