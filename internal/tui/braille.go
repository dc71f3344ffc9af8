package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// brailleBuf is a 2x4 micro-pixel grid per cell. Each cell also remembers the ink of
// the last pixel set in it; ink 0 is unstyled.
type brailleBuf struct {
	w, h int       // in cells
	m    [][]uint8 // per-cell 8-bit mask
	ink  [][]int
}

func newBrailleBuf(w, h int) *brailleBuf {
	m := make([][]uint8, h)
	ink := make([][]int, h)
	for i := range m {
		m[i] = make([]uint8, w)
		ink[i] = make([]int, w)
	}
	return &brailleBuf{w: w, h: h, m: m, ink: ink}
}

var brailleBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

// setPixel sets a micro-pixel at micro coords (2x4 per cell)
func (b *brailleBuf) setPixel(mx, my, ink int) {
	if mx < 0 || my < 0 {
		return
	}
	cx, rx := mx/2, mx%2
	cy, ry := my/4, my%4
	if cy >= b.h || cx >= b.w {
		return
	}
	b.m[cy][cx] |= brailleBits[rx][ry]
	b.ink[cy][cx] = ink
}

// drawLineMicro draws a line on the microgrid using Bresenham. The segment is clipped
// to the buffer first.
func (b *brailleBuf) drawLineMicro(x0, y0, x1, y1, ink int) {
	var ok bool
	x0, y0, x1, y1, ok = clipSegment(x0, y0, x1, y1, b.w*2, b.h*4)
	if !ok {
		return
	}

	dx := abs(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -abs(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		b.setPixel(x0, y0, ink)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// fillSpan sets every pixel of row my between x0 and x1 inclusive.
func (b *brailleBuf) fillSpan(my, x0, x1, ink int) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	for x := max(0, x0); x <= min(x1, b.w*2-1); x++ {
		b.setPixel(x, my, ink)
	}
}

// toLines renders the buffer; styles[ink-1] colors the cells of that ink.
func (b *brailleBuf) toLines(styles []lipgloss.Style) []string {
	out := make([]string, b.h)
	for y := 0; y < b.h; y++ {
		var sb strings.Builder
		run := make([]rune, 0, b.w)
		runInk := 0
		flush := func() {
			if len(run) == 0 {
				return
			}
			if runInk > 0 && runInk <= len(styles) {
				sb.WriteString(styles[runInk-1].Render(string(run)))
			} else {
				sb.WriteString(string(run))
			}
			run = run[:0]
		}

		for x := 0; x < b.w; x++ {
			mask := b.m[y][x]
			r, ink := ' ', 0
			if mask != 0 {
				r, ink = rune(0x2800+int(mask)), b.ink[y][x]
			}
			if ink != runInk {
				flush()
				runInk = ink
			}
			run = append(run, r)
		}
		flush()
		out[y] = sb.String()
	}
	return out
}

// clipSegment clips a segment to [0,w)x[0,h) (Liang-Barsky) so that lines far outside
// the viewport cost nothing to draw.
func clipSegment(x0, y0, x1, y1, w, h int) (int, int, int, int, bool) {
	fx0, fy0 := float64(x0), float64(y0)
	dx, dy := float64(x1-x0), float64(y1-y0)
	t0, t1 := 0.0, 1.0

	edges := [4][2]float64{
		{-dx, fx0},
		{dx, float64(w-1) - fx0},
		{-dy, fy0},
		{dy, float64(h-1) - fy0},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = max(t0, r)
		} else {
			if r < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = min(t1, r)
		}
	}

	return int(fx0 + t0*dx + 0.5), int(fy0 + t0*dy + 0.5), int(fx0 + t1*dx + 0.5), int(fy0 + t1*dy + 0.5), true
}
