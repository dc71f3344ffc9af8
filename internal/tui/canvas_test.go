package tui

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/matryer/is"
	"github.com/paulmach/orb"

	"geolayers/internal/cull"
	"geolayers/internal/feed"
	"geolayers/internal/geom"
	"geolayers/internal/project"
)

func near(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestViewportFollowsCenterAndZoom(t *testing.T) {
	is := is.New(t)

	// 128x128 micro-pixels at zoom 0 is half the world in each direction
	c := NewCanvas(64, 32)
	c.SetView(orb.Point{0, 0}, 0)

	vp := c.Viewport()
	is.Equal(vp.Zoom, 0)
	is.True(near(vp.Bounds.MinX, -90, 1e-6))
	is.True(near(vp.Bounds.MaxX, 90, 1e-6))
	is.True(near(vp.Bounds.MaxY, 66.51326, 1e-3))
	is.True(near(vp.Bounds.MinY, -66.51326, 1e-3))

	c.Zoom(1)
	vp = c.Viewport()
	is.Equal(vp.Zoom, 1)
	is.True(near(vp.Bounds.MaxX, 45, 1e-6))
}

func TestProjectionRoundTrip(t *testing.T) {
	is := is.New(t)

	c := NewCanvas(40, 20)
	c.SetView(orb.Point{17.3, 62.4}, 12)
	f := c.Snapshot()

	mx, my := f.ToMicro(orb.Point{17.3, 62.4})
	is.Equal(mx, 40)
	is.Equal(my, 40)

	ll := f.ToLonLat(20, 10)
	x, y := f.ToMicro(ll)
	is.Equal(x/2, 20)
	is.Equal(y/4, 10)
}

func TestPanAndZoomEmitEvents(t *testing.T) {
	is := is.New(t)

	c := NewCanvas(40, 20)
	c.SetView(orb.Point{10, 50}, 5)

	before := c.Viewport()

	var events []cull.Event
	unsubscribe := c.Subscribe(func(ev cull.Event) {
		// subscribers may read the viewport while being notified
		is.Equal(c.Viewport(), ev.Viewport)
		events = append(events, ev)
	})

	c.Pan(5, 0)
	is.Equal(len(events), 1)
	is.Equal(events[0].Type, cull.EventMoveEnd)
	is.True(events[0].Viewport.Bounds.MinX > before.Bounds.MinX)
	is.True(near(events[0].Viewport.Bounds.MinY, before.Bounds.MinY, 1e-9))

	is.True(c.Zoom(2))
	is.Equal(len(events), 2)
	is.Equal(events[1].Type, cull.EventZoomEnd)
	is.Equal(events[1].Viewport.Zoom, 7)

	c.SetView(orb.Point{10, 50}, MaxZoom)
	is.Equal(len(events), 3)
	is.True(!c.Zoom(1)) // already at the deepest level
	is.Equal(len(events), 3)

	c.Resize(40, 20) // same size
	is.Equal(len(events), 3)

	unsubscribe()
	c.Pan(-5, 0)
	is.Equal(len(events), 3)
}

func TestEntitiesAreListedInInsertionOrder(t *testing.T) {
	is := is.New(t)

	c := NewCanvas(10, 10)
	factory := Markers(feed.LayerConfig{ID: 1})

	var added []cull.Entity
	for i := range 5 {
		p := orb.Point{float64(i), 0}
		e := factory.CreateEntity(geom.NewFeature(p, nil), &p)
		c.AddEntity(e)
		added = append(added, e)
	}
	c.RemoveEntity(added[2])

	f := c.Snapshot()
	is.Equal(len(f.Markers), 4)
	is.Equal(f.Markers[0], added[0])
	is.Equal(f.Markers[2], added[3])

	select {
	case <-c.Changes():
	default:
		t.Fatal("expected a pending change notification")
	}
}

func TestTileSourceIsReplacedAndRemoved(t *testing.T) {
	is := is.New(t)

	c := NewCanvas(10, 10)
	a := project.NewTileSource(feed.Basemap{ID: 1, Name: "a", URLTemplate: "https://t/{z}/{x}/{y}.png"})
	b := project.NewTileSource(feed.Basemap{ID: 2, Name: "b", Provider: project.ProviderCustom})

	c.AddTileSource(a)
	c.AddTileSource(b)
	is.Equal(c.Snapshot().Tiles, b)

	c.RemoveTileSource(a) // not active, nothing changes
	is.Equal(c.Snapshot().Tiles, b)

	c.RemoveTileSource(b)
	is.True(c.Snapshot().Tiles == nil)
}

type staticSource map[string]feed.Project

func (s staticSource) FetchProject(ctx context.Context, id string, access feed.AccessContext) (feed.Project, error) {
	return s[id], nil
}

func TestCanvasServesAsProjectMapWidget(t *testing.T) {
	is := is.New(t)

	p := feed.Project{
		ID:     "1",
		Name:   "harbour",
		Center: [2]float64{17.3, 62.4},
		Zoom:   12,
		Groups: []feed.LayerGroup{{Name: "infra", Layers: []feed.LayerConfig{{ID: 1, Name: "wells"}, {ID: 2, Name: "pipes"}}}},
		Basemaps: []feed.Basemap{
			{ID: 1, Name: "streets", URLTemplate: "https://{s}.tile.example.org/{z}/{x}/{y}.png", IsDefault: true},
		},
	}

	fetcher := feed.ChunkFetcherFunc(func(ctx context.Context, layerID, cursor int, access feed.AccessContext) (geom.Chunk, error) {
		if layerID == 2 {
			line := orb.LineString{{17.29, 62.39}, {17.31, 62.41}}
			return geom.Chunk{Features: []geom.Feature{geom.NewFeature(line, map[string]any{"id": "pipe"})}}, nil
		}
		return geom.Chunk{Features: []geom.Feature{
			geom.NewFeature(orb.Point{17.3, 62.4}, map[string]any{"id": "w1"}),
			geom.NewFeature(orb.Point{17.301, 62.401}, map[string]any{"id": "w2"}),
		}}, nil
	})

	cfg := cull.DefaultConfig()
	cfg.Debounce = 0

	canvas := NewCanvas(60, 20)
	o := project.New(staticSource{"1": p}, fetcher, Markers, project.WithCullConfig(cfg))
	o.Attach(canvas)
	t.Cleanup(o.Close)

	is.NoErr(o.LoadProject(context.Background(), "1", false))

	f := canvas.Snapshot()
	is.Equal(len(f.Markers), 3)
	is.Equal(f.Tiles.Basemap.Name, "streets")

	center, zoom := canvas.Center()
	is.Equal(zoom, 12)
	is.True(near(center.Lon(), 17.3, 1e-9))

	out := renderFrame(f, nil)
	is.True(strings.ContainsFunc(out, func(r rune) bool { return r > 0x2800 && r <= 0x28FF }))

	o.Close()
	is.Equal(len(canvas.Snapshot().Markers), 0)
	is.True(canvas.Snapshot().Tiles == nil)
}
