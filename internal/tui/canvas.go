package tui

import (
	"math"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	mercator "github.com/paulmach/orb/project"

	"geolayers/internal/cull"
	"geolayers/internal/geom"
	"geolayers/internal/project"
)

const (
	MinZoom = 0
	MaxZoom = 19

	// equator length in web mercator meters
	earthCircumference = 40075016.686
	tileSize           = 256
)

// Canvas is the terminal map widget. It owns the viewport (center and zoom in web
// mercator) and the entities layers put on it. One braille micro-pixel is one map pixel.
type Canvas struct {
	mu          sync.Mutex
	center      orb.Point // lon/lat
	zoom        int
	width       int // cells
	height      int // cells
	entities    map[cull.Entity]uint64
	seq         uint64
	tiles       *project.TileSource
	subscribers map[int]func(cull.Event)
	nextSub     int

	changes chan struct{}
}

func NewCanvas(width, height int) *Canvas {
	return &Canvas{
		width:       max(width, 1),
		height:      max(height, 1),
		entities:    map[cull.Entity]uint64{},
		subscribers: map[int]func(cull.Event){},
		changes:     make(chan struct{}, 1),
	}
}

// Changes delivers a value whenever the canvas content changed since the last receive.
func (c *Canvas) Changes() <-chan struct{} {
	return c.changes
}

// Notify marks the canvas as changed without blocking.
func (c *Canvas) Notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *Canvas) Viewport() geom.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport()
}

func (c *Canvas) viewport() geom.Viewport {
	mpp := metersPerPixel(c.zoom)
	origin := mercator.WGS84.ToMercator(c.center)
	hw := float64(c.width*2) / 2 * mpp
	hh := float64(c.height*4) / 2 * mpp

	sw := mercator.Mercator.ToWGS84(orb.Point{origin.X() - hw, origin.Y() - hh})
	ne := mercator.Mercator.ToWGS84(orb.Point{origin.X() + hw, origin.Y() + hh})

	return geom.Viewport{
		Bounds: geom.BBox{MinX: sw.Lon(), MinY: sw.Lat(), MaxX: ne.Lon(), MaxY: ne.Lat()},
		Zoom:   c.zoom,
	}
}

func (c *Canvas) Subscribe(fn func(cull.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *Canvas) AddEntity(e cull.Entity) {
	c.mu.Lock()
	c.seq++
	c.entities[e] = c.seq
	c.mu.Unlock()
	c.Notify()
}

func (c *Canvas) RemoveEntity(e cull.Entity) {
	c.mu.Lock()
	delete(c.entities, e)
	c.mu.Unlock()
	c.Notify()
}

func (c *Canvas) SetView(center orb.Point, zoom int) {
	c.mu.Lock()
	c.center = clampCenter(center)
	c.zoom = clampZoom(zoom)
	c.mu.Unlock()
	c.emit(cull.EventMoveEnd)
}

func (c *Canvas) AddTileSource(ts *project.TileSource) {
	c.mu.Lock()
	c.tiles = ts
	c.mu.Unlock()
	c.Notify()
}

func (c *Canvas) RemoveTileSource(ts *project.TileSource) {
	c.mu.Lock()
	if c.tiles == ts {
		c.tiles = nil
	}
	c.mu.Unlock()
	c.Notify()
}

// Pan moves the center by a number of cells.
func (c *Canvas) Pan(dx, dy int) {
	c.mu.Lock()
	mpp := metersPerPixel(c.zoom)
	origin := mercator.WGS84.ToMercator(c.center)
	moved := orb.Point{origin.X() + float64(dx*2)*mpp, origin.Y() - float64(dy*4)*mpp}
	c.center = clampCenter(mercator.Mercator.ToWGS84(moved))
	c.mu.Unlock()
	c.emit(cull.EventMoveEnd)
}

// Zoom changes the zoom level by delta and reports whether it changed.
func (c *Canvas) Zoom(delta int) bool {
	c.mu.Lock()
	z := clampZoom(c.zoom + delta)
	changed := z != c.zoom
	c.zoom = z
	c.mu.Unlock()

	if changed {
		c.emit(cull.EventZoomEnd)
	}
	return changed
}

func (c *Canvas) Resize(width, height int) {
	width, height = max(width, 1), max(height, 1)

	c.mu.Lock()
	changed := width != c.width || height != c.height
	c.width, c.height = width, height
	c.mu.Unlock()

	if changed {
		c.emit(cull.EventMoveEnd)
	}
}

func (c *Canvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

func (c *Canvas) Center() (orb.Point, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.center, c.zoom
}

// emit notifies subscribers. It must be called without c.mu held.
func (c *Canvas) emit(t cull.EventType) {
	c.mu.Lock()
	vp := c.viewport()
	subs := make([]func(cull.Event), 0, len(c.subscribers))
	ids := make([]int, 0, len(c.subscribers))
	for id := range c.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, c.subscribers[id])
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(cull.Event{Type: t, Viewport: vp})
	}
	c.Notify()
}

// Frame is what the canvas shows at one instant.
type Frame struct {
	projection
	Markers []*Marker
	Tiles   *project.TileSource
}

// Snapshot returns the markers on the canvas in the order they were added.
func (c *Canvas) Snapshot() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	type ordered struct {
		m   *Marker
		seq uint64
	}
	all := make([]ordered, 0, len(c.entities))
	for e, seq := range c.entities {
		if m, ok := e.(*Marker); ok {
			all = append(all, ordered{m, seq})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	f := Frame{
		projection: c.projection(),
		Markers:    make([]*Marker, len(all)),
		Tiles:      c.tiles,
	}
	for i, o := range all {
		f.Markers[i] = o.m
	}
	return f
}

func (c *Canvas) projection() projection {
	return projection{
		origin:   mercator.WGS84.ToMercator(c.center),
		mpp:      metersPerPixel(c.zoom),
		width:    c.width,
		height:   c.height,
		viewport: c.viewport(),
	}
}

// projection maps between lon/lat and braille micro-pixels of a fixed viewport.
type projection struct {
	origin   orb.Point
	mpp      float64
	width    int
	height   int
	viewport geom.Viewport
}

func (p projection) Viewport() geom.Viewport { return p.viewport }

func (p projection) ToMicro(ll orb.Point) (int, int) {
	m := mercator.WGS84.ToMercator(ll)
	x := (m.X()-p.origin.X())/p.mpp + float64(p.width*2)/2
	y := (p.origin.Y()-m.Y())/p.mpp + float64(p.height*4)/2
	return int(math.Floor(x)), int(math.Floor(y))
}

// ToLonLat returns the position at the center of a cell.
func (p projection) ToLonLat(cx, cy int) orb.Point {
	x := (float64(cx*2)+1-float64(p.width*2)/2)*p.mpp + p.origin.X()
	y := p.origin.Y() - (float64(cy*4)+2-float64(p.height*4)/2)*p.mpp
	return mercator.Mercator.ToWGS84(orb.Point{x, y})
}

func metersPerPixel(zoom int) float64 {
	return earthCircumference / (tileSize * math.Exp2(float64(zoom)))
}

func clampZoom(z int) int {
	return min(max(z, MinZoom), MaxZoom)
}

func clampCenter(p orb.Point) orb.Point {
	lon := p.Lon()
	if lon < -180 || lon > 180 {
		lon = math.Mod(lon+540, 360) - 180
	}
	lat := math.Max(-85, math.Min(85, p.Lat()))
	return orb.Point{lon, lat}
}
