package cull

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/paulmach/orb"

	"geolayers/internal/geom"
)

type marker struct {
	id  string
	f   geom.Feature
	pos *orb.Point
}

func (m *marker) ID() string { return m.id }

type fakeMap struct {
	mu            sync.Mutex
	viewport      geom.Viewport
	subscribers   map[int]func(Event)
	nextSub       int
	entities      map[Entity]struct{}
	viewportCalls int
}

func newFakeMap(b geom.BBox, zoom int) *fakeMap {
	return &fakeMap{
		viewport:    geom.Viewport{Bounds: b, Zoom: zoom},
		subscribers: map[int]func(Event){},
		entities:    map[Entity]struct{}{},
	}
}

func (m *fakeMap) Viewport() geom.Viewport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewportCalls++
	return m.viewport
}

func (m *fakeMap) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

func (m *fakeMap) AddEntity(e Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[e]; ok {
		panic("entity added twice: " + e.ID())
	}
	m.entities[e] = struct{}{}
}

func (m *fakeMap) RemoveEntity(e Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, e)
}

// move changes the viewport and notifies subscribers outside the lock.
func (m *fakeMap) move(b geom.BBox, zoom int) {
	m.mu.Lock()
	m.viewport = geom.Viewport{Bounds: b, Zoom: zoom}
	subs := make([]func(Event), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	vp := m.viewport
	m.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Type: EventMoveEnd, Viewport: vp})
	}
}

func (m *fakeMap) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for e := range m.entities {
		out = append(out, e.ID())
	}
	sort.Strings(out)
	return out
}

func (m *fakeMap) subscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

func (m *fakeMap) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewportCalls
}

type countingFactory struct {
	mu    sync.Mutex
	calls int
}

func (c *countingFactory) CreateEntity(f geom.Feature, pos *orb.Point) Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &marker{id: f.KeyID(), f: f, pos: pos}
}

func (c *countingFactory) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func pointsAt(coords ...[2]float64) geom.FeatureCollection {
	fc := geom.FeatureCollection{}
	for i, c := range coords {
		fc.Append(geom.NewFeature(orb.Point{c[0], c[1]}, map[string]any{"id": fmt.Sprintf("p%d", i)}))
	}
	return fc
}

func box(minX, minY, maxX, maxY float64) geom.BBox {
	return geom.BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

func testConfig(maxMarkers int) Config {
	cfg := DefaultConfig()
	cfg.MaxMarkersWithoutOptimization = maxMarkers
	cfg.MinZoomForOptimization = 0
	cfg.BufferFactor = 1.0
	cfg.Debounce = 0
	return cfg
}

func TestThreePointScenario(t *testing.T) {
	is := is.New(t)

	m := newFakeMap(box(-10, -10, 10, 10), 5)
	e := New(m, &countingFactory{}, testConfig(2))
	e.SetFeatures(pointsAt([2]float64{0, 0}, [2]float64{50, 50}, [2]float64{100, 100}))
	e.Start()

	is.Equal(e.State(), StateEnabled)
	is.Equal(e.VisibleMarkerCount(), 1)
	is.Equal(e.TotalFeatureCount(), 3)
	is.Equal(m.ids(), []string{"p0"})
}

func TestRenderedKeysMatchExpandedViewport(t *testing.T) {
	is := is.New(t)

	rnd := rand.New(rand.NewSource(42))
	coords := make([][2]float64, 500)
	for i := range coords {
		coords[i] = [2]float64{rnd.Float64()*40 - 20, rnd.Float64()*40 - 20}
	}
	fc := pointsAt(coords...)

	cfg := testConfig(10)
	cfg.BufferFactor = 1.5

	m := newFakeMap(box(-5, -5, 5, 5), 12)
	e := New(m, &countingFactory{}, cfg)
	e.SetFeatures(fc)
	e.Start()

	viewports := []geom.BBox{
		box(-5, -5, 5, 5),
		box(-2, 3, 8, 9),
		box(-20, -20, -10, -10),
		box(0, 0, 0.5, 0.5),
		box(-30, -30, 30, 30),
	}

	for _, vp := range viewports {
		m.move(vp, 12)

		expanded := vp.Scale(cfg.BufferFactor)
		want := []string{}
		for _, f := range fc.Features {
			p, _ := f.Point()
			if expanded.Contains(p.Lon(), p.Lat()) {
				want = append(want, f.KeyID())
			}
		}
		sort.Strings(want)

		is.Equal(m.ids(), want)
		is.Equal(e.VisibleMarkerCount(), len(want))
	}
}

func TestUnchangedKeysKeepTheirEntity(t *testing.T) {
	is := is.New(t)

	m := newFakeMap(box(-10, -10, 10, 10), 5)
	f := &countingFactory{}
	e := New(m, f, testConfig(1))
	e.SetFeatures(pointsAt([2]float64{0, 0}, [2]float64{5, 5}, [2]float64{15, 0}))
	e.Start()

	before := map[string]Entity{}
	for k, v := range e.rendered {
		before[k] = v
	}
	is.Equal(len(before), 2)

	m.move(box(-10, -10, 10, 10), 5)
	e.Recompute()
	is.Equal(f.count(), 2)

	// a pan that keeps (0,0) and (5,5) and brings in (15,0)
	m.move(box(-4, -10, 16, 10), 5)
	is.Equal(f.count(), 3)
	is.Equal(m.ids(), []string{"p0", "p1", "p2"})
	for k, v := range before {
		is.True(e.rendered[k] == v)
	}
}

func TestSmallMovesAreIgnored(t *testing.T) {
	is := is.New(t)

	m := newFakeMap(box(-10, -10, 10, 10), 5)
	e := New(m, &countingFactory{}, testConfig(1))
	e.SetFeatures(pointsAt([2]float64{0, 0}, [2]float64{10.0005, 0}))
	e.Start()
	is.Equal(m.ids(), []string{"p0"})

	m.move(box(-9.9994, -10, 10.0006, 10), 5)
	is.Equal(m.ids(), []string{"p0"})

	m.move(box(-9, -10, 11, 10), 5)
	is.Equal(m.ids(), []string{"p0", "p1"})
}

func TestSmallCollectionsRenderEverything(t *testing.T) {
	is := is.New(t)

	cfg := DefaultConfig()
	cfg.MaxMarkersWithoutOptimization = 5
	cfg.Debounce = 0

	coords := [][2]float64{}
	for i := 0; i < 5; i++ {
		coords = append(coords, [2]float64{float64(i * 30), 0})
	}

	m := newFakeMap(box(-1, -1, 1, 1), 15)
	e := New(m, &countingFactory{}, cfg)
	e.SetFeatures(pointsAt(coords...))
	e.Start()

	is.Equal(e.State(), StateDisabled)
	is.Equal(e.VisibleMarkerCount(), 5)

	m.move(box(100, 100, 101, 101), 18)
	is.Equal(e.VisibleMarkerCount(), 5)
}

func TestCrossingThresholdSwitchesToFiltering(t *testing.T) {
	is := is.New(t)

	cfg := DefaultConfig()
	cfg.MaxMarkersWithoutOptimization = 5
	cfg.BufferFactor = 1.0
	cfg.Debounce = 0

	coords := [][2]float64{}
	for i := 0; i < 10; i++ {
		coords = append(coords, [2]float64{float64(i), 0})
	}

	m := newFakeMap(box(-0.5, -1, 2.5, 1), 8)
	e := New(m, &countingFactory{}, cfg)
	e.SetFeatures(pointsAt(coords...))
	e.Start()

	// below the zoom floor everything is rendered
	is.Equal(e.State(), StateDisabled)
	is.Equal(e.VisibleMarkerCount(), 10)

	m.move(box(-0.5, -1, 2.5, 1), 12)
	is.Equal(e.State(), StateEnabled)
	is.Equal(m.ids(), []string{"p0", "p1", "p2"})

	m.move(box(-0.5, -1, 2.5, 1), 9)
	is.Equal(e.State(), StateDisabled)
	is.Equal(e.VisibleMarkerCount(), 10)
}

func TestDebounceRunsOnlyTheLatestRecomputation(t *testing.T) {
	is := is.New(t)

	cfg := testConfig(1)
	cfg.Debounce = 50 * time.Millisecond

	m := newFakeMap(box(-1, -1, 1, 1), 5)
	e := New(m, &countingFactory{}, cfg)
	e.SetFeatures(pointsAt([2]float64{0, 0}, [2]float64{10, 0}, [2]float64{20, 0}))
	e.Start()
	is.Equal(m.calls(), 1)

	m.move(box(9, -1, 11, 1), 5)
	m.move(box(14, -1, 16, 1), 5)
	m.move(box(19, -1, 21, 1), 5)

	// nothing happens before the quiet period
	is.Equal(m.ids(), []string{"p0"})

	deadline := time.Now().Add(2 * time.Second)
	for m.calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(4 * cfg.Debounce)

	is.Equal(m.calls(), 2)
	is.Equal(m.ids(), []string{"p2"})
}

func TestCloseReleasesSubscriptionAndEntities(t *testing.T) {
	is := is.New(t)

	cfg := testConfig(1)
	cfg.Debounce = time.Hour

	m := newFakeMap(box(-10, -10, 10, 10), 5)
	e := New(m, &countingFactory{}, cfg)
	e.SetFeatures(pointsAt([2]float64{0, 0}, [2]float64{1, 1}))
	e.Start()
	is.Equal(m.subscriberCount(), 1)

	m.move(box(-5, -5, 5, 5), 5) // leaves a pending timer behind
	e.Close()
	e.Close()

	is.Equal(m.subscriberCount(), 0)
	is.Equal(len(m.ids()), 0)
	is.Equal(e.VisibleMarkerCount(), 0)
	is.True(e.timer == nil)

	e.Start()
	is.Equal(m.subscriberCount(), 0)
}

func TestClosingOneEngineLeavesOthersAlone(t *testing.T) {
	is := is.New(t)

	m := newFakeMap(box(-10, -10, 10, 10), 5)

	roads := New(m, &countingFactory{}, testConfig(100))
	roads.SetFeatures(geom.FeatureCollection{Features: []geom.Feature{
		geom.NewFeature(orb.Point{1, 1}, map[string]any{"id": "road"}),
	}})
	roads.Start()

	wells := New(m, &countingFactory{}, testConfig(100))
	wells.SetFeatures(geom.FeatureCollection{Features: []geom.Feature{
		geom.NewFeature(orb.Point{2, 2}, map[string]any{"id": "well"}),
	}})
	wells.Start()

	is.Equal(m.ids(), []string{"road", "well"})

	roads.Close()
	is.Equal(m.ids(), []string{"well"})
	is.Equal(m.subscriberCount(), 1)
}

func TestStopAndStartAgain(t *testing.T) {
	is := is.New(t)

	m := newFakeMap(box(-10, -10, 10, 10), 5)
	e := New(m, &countingFactory{}, testConfig(100))
	e.SetFeatures(pointsAt([2]float64{0, 0}, [2]float64{1, 1}))
	e.Start()
	is.Equal(e.VisibleMarkerCount(), 2)

	e.Stop()
	is.Equal(len(m.ids()), 0)
	is.Equal(e.TotalFeatureCount(), 2)

	e.Start()
	is.Equal(m.ids(), []string{"p0", "p1"})
}

func TestFeaturesWithoutGeometryKeepTheirEntity(t *testing.T) {
	is := is.New(t)

	fc := geom.FeatureCollection{Features: []geom.Feature{
		{Type: "Point", Properties: map[string]any{"name": "broken"}, Invalid: true},
		{Properties: map[string]any{"name": "missing"}},
		geom.NewFeature(orb.Point{1, 1}, map[string]any{"id": "ok"}),
	}}

	m := newFakeMap(box(-10, -10, 10, 10), 5)
	f := &countingFactory{}
	e := New(m, f, testConfig(100))
	e.SetFeatures(fc)
	e.Start()

	is.Equal(e.VisibleMarkerCount(), 3)
	is.Equal(f.count(), 3)

	var withoutPos int
	for _, entity := range e.rendered {
		if entity.(*marker).pos == nil {
			withoutPos++
		}
	}
	is.Equal(withoutPos, 2)

	// the same collection again must not create anything new
	e.SetFeatures(fc)
	is.Equal(f.count(), 3)
	is.Equal(len(m.entities), 3)
}

func TestEnabledEngineSkipsFeaturesWithoutPointGeometry(t *testing.T) {
	is := is.New(t)

	fc := geom.FeatureCollection{Features: []geom.Feature{
		{Properties: map[string]any{"id": "missing"}},
		geom.NewFeature(orb.LineString{{0, 0}, {1, 1}}, map[string]any{"id": "line"}),
		geom.NewFeature(orb.Point{1, 1}, map[string]any{"id": "pt"}),
	}}

	m := newFakeMap(box(-10, -10, 10, 10), 5)
	e := New(m, &countingFactory{}, testConfig(1))
	e.SetFeatures(fc)
	e.Start()

	is.Equal(m.ids(), []string{"pt"})
}

func TestFactoryMayDecline(t *testing.T) {
	is := is.New(t)

	m := newFakeMap(box(-10, -10, 10, 10), 5)
	factory := EntityFactoryFunc(func(f geom.Feature, pos *orb.Point) Entity {
		if pos == nil {
			return nil
		}
		return &marker{id: f.KeyID(), f: f, pos: pos}
	})
	e := New(m, factory, testConfig(100))
	e.SetFeatures(geom.FeatureCollection{Features: []geom.Feature{
		{Properties: map[string]any{"id": "missing"}},
		geom.NewFeature(orb.Point{1, 1}, map[string]any{"id": "pt"}),
	}})
	e.Start()

	is.Equal(m.ids(), []string{"pt"})
	is.Equal(e.VisibleMarkerCount(), 1)
}

func TestIndexWithinIsInclusive(t *testing.T) {
	is := is.New(t)

	fc := pointsAt([2]float64{0, 0}, [2]float64{1, 1}, [2]float64{1.0000001, 1}, [2]float64{-1, 0.5})
	idx := newSpatialIndex(fc.Features)

	is.Equal(idx.Size(), 4)
	is.Equal(idx.Within(box(0, 0, 1, 1)), []int{0, 1})
	is.Equal(idx.Within(box(-1, 0, 1, 1)), []int{0, 1, 3})
	is.Equal(len(idx.Within(geom.EmptyBBox())), 0)
}
