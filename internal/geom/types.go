package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// BBox is a lon/lat bounding box: MinX west, MinY south, MaxX east, MaxY north.
type BBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// Viewport is the visible part of a map widget at a given zoom level.
type Viewport struct {
	Bounds BBox
	Zoom   int
}

func FromBound(b orb.Bound) BBox {
	return BBox{MinX: b.Min.Lon(), MinY: b.Min.Lat(), MaxX: b.Max.Lon(), MaxY: b.Max.Lat()}
}

func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
}

func (b BBox) West() float64  { return b.MinX }
func (b BBox) South() float64 { return b.MinY }
func (b BBox) East() float64  { return b.MaxX }
func (b BBox) North() float64 { return b.MaxY }

func (b BBox) Center() orb.Point {
	return b.Bound().Center()
}

// EmptyBBox returns a box that holds nothing; Extend on it yields the first point.
func EmptyBBox() BBox {
	return BBox{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

func (b BBox) Empty() bool {
	return b.MaxX < b.MinX || b.MaxY < b.MinY
}

// Scale grows (factor > 1) or shrinks the box around its center.
func (b BBox) Scale(factor float64) BBox {
	if factor <= 0 || factor == 1 {
		return b
	}
	c := b.Center()
	hw := (b.MaxX - b.MinX) / 2 * factor
	hh := (b.MaxY - b.MinY) / 2 * factor
	return BBox{MinX: c.Lon() - hw, MinY: c.Lat() - hh, MaxX: c.Lon() + hw, MaxY: c.Lat() + hh}
}

// Contains is inclusive on every edge.
func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.MinX && lon <= b.MaxX && lat >= b.MinY && lat <= b.MaxY
}

// Near reports whether every edge of o lies within eps degrees of the same edge of b.
func (b BBox) Near(o BBox, eps float64) bool {
	return math.Abs(b.MinX-o.MinX) <= eps &&
		math.Abs(b.MinY-o.MinY) <= eps &&
		math.Abs(b.MaxX-o.MaxX) <= eps &&
		math.Abs(b.MaxY-o.MaxY) <= eps
}

// Extend returns the smallest box holding both b and the point.
func (b BBox) Extend(lon, lat float64) BBox {
	if b.Empty() {
		return BBox{MinX: lon, MinY: lat, MaxX: lon, MaxY: lat}
	}
	return FromBound(b.Bound().Extend(orb.Point{lon, lat}))
}
