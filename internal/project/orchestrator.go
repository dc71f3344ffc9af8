package project

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"geolayers/internal/cull"
	"geolayers/internal/feed"
)

var (
	ErrNoMapWidget    = errors.New("no map widget attached")
	ErrUnknownBasemap = errors.New("unknown basemap")
	ErrNoProject      = errors.New("no project loaded")
)

type ProjectSource interface {
	FetchProject(ctx context.Context, idOrHash string, access feed.AccessContext) (feed.Project, error)
}

// MapWidget is the shared map the orchestrator sets up and hands to every layer.
type MapWidget interface {
	cull.MapWidget
	SetView(center orb.Point, zoom int)
	AddTileSource(ts *TileSource)
	RemoveTileSource(ts *TileSource)
}

// EntityFactories returns the entity factory used to render a layer.
type EntityFactories func(cfg feed.LayerConfig) cull.EntityFactory

type Orchestrator struct {
	source    ProjectSource
	fetcher   feed.ChunkFetcher
	factories EntityFactories
	cullCfg   cull.Config
	origin    string
	onChange  func(*Layer)

	// serializes LoadProject and Close
	loadMu sync.Mutex

	mu         sync.Mutex
	cancelLoad context.CancelFunc
	widget     MapWidget
	project    feed.Project
	loaded     bool
	layers     []*Layer
	tiles      *TileSource
}

type Option func(*Orchestrator)

func WithCullConfig(cfg cull.Config) Option {
	return func(o *Orchestrator) {
		o.cullCfg = cfg
	}
}

// WithOrigin sets the origin forwarded with public chunk requests.
func WithOrigin(origin string) Option {
	return func(o *Orchestrator) {
		o.origin = origin
	}
}

// WithLayerListener registers fn to be called, from any goroutine, whenever a layer
// changes status or reports loading progress.
func WithLayerListener(fn func(*Layer)) Option {
	return func(o *Orchestrator) {
		o.onChange = fn
	}
}

func New(source ProjectSource, fetcher feed.ChunkFetcher, factories EntityFactories, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:    source,
		fetcher:   fetcher,
		factories: factories,
		cullCfg:   cull.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Attach sets the map widget every subsequent project is loaded into.
func (o *Orchestrator) Attach(widget MapWidget) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.widget = widget
}

// LoadProject replaces the current project. Layers are loaded concurrently and a layer
// that fails is recorded as failed without affecting the others; the basemap is
// activated once every layer is done. The current project is left alone until the new
// definition has been fetched.
func (o *Orchestrator) LoadProject(ctx context.Context, projectID string, public bool) error {
	o.mu.Lock()
	widget := o.widget
	o.mu.Unlock()

	if widget == nil {
		return ErrNoMapWidget
	}

	log := logging.GetFromContext(ctx).With("project", projectID)

	access := feed.Private()
	if public {
		access = feed.Public(projectID, o.origin)
	}

	p, err := o.source.FetchProject(ctx, projectID, access)
	if err != nil {
		return fmt.Errorf("failed to load project %s: %w", projectID, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	o.interrupt(cancel)

	o.loadMu.Lock()
	defer o.loadMu.Unlock()

	if err := ctx.Err(); err != nil {
		// superseded before the previous load let go
		return err
	}

	o.closeProject()

	configs := p.Layers()
	layers := make([]*Layer, 0, len(configs))
	for _, cfg := range configs {
		layers = append(layers, newLayer(ctx, cfg, o.onChange))
	}

	o.mu.Lock()
	o.project = p
	o.loaded = true
	o.layers = layers
	o.mu.Unlock()

	widget.SetView(orb.Point{p.Center[0], p.Center[1]}, p.Zoom)

	log.Info("loading project", "name", p.Name, "layers", len(layers), "access", access.String())

	var g errgroup.Group
	for _, l := range layers {
		g.Go(func() error {
			o.runLayer(widget, l, access)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		log.Info("project load interrupted")
		return err
	}

	if b, ok := SelectBasemap(p.Basemaps); ok {
		o.activate(widget, NewTileSource(b))
		log.Debug("basemap activated", "basemap", b.Name, "provider", b.Provider)
	}

	failed := 0
	for _, l := range layers {
		if l.Status() == StatusFailed {
			failed++
		}
	}
	log.Info("project loaded", "layers", len(layers), "failed", failed)

	return nil
}

// runLayer initializes, loads and shows a single layer. Panics are recovered and
// recorded on the layer.
func (o *Orchestrator) runLayer(widget MapWidget, l *Layer, access feed.AccessContext) {
	log := logging.GetFromContext(l.Context()).With("layer_id", l.ID(), "layer", l.Name())
	ctx := logging.NewContextWithLogger(l.Context(), log)

	defer func() {
		if r := recover(); r != nil {
			log.Error("layer panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			l.fail(fmt.Errorf("layer %d panicked: %v", l.ID(), r))
		}
	}()

	var factory cull.EntityFactory
	if o.factories != nil {
		factory = o.factories(l.Config())
	}

	if err := l.Initialize(widget, factory, o.cullCfg, cull.WithLogger(log)); err != nil {
		log.Error("failed to initialize layer", "err", err.Error())
		l.fail(err)
		return
	}

	l.setStatus(StatusLoading)
	fc := feed.NewLoader(o.fetcher, feed.WithProgress(l.setProgress)).Load(ctx, l.ID(), access)

	if ctx.Err() != nil {
		// closed while loading, the partial collection is dropped
		return
	}

	if err := l.SetData(fc); err != nil {
		log.Error("failed to set layer data", "err", err.Error())
		l.fail(err)
		return
	}

	if err := l.Show(); err != nil {
		log.Error("failed to show layer", "err", err.Error())
		l.fail(err)
	}
}

// SetBasemap switches the active tile source to the basemap with the given id.
func (o *Orchestrator) SetBasemap(id int) error {
	o.mu.Lock()
	widget := o.widget
	p := o.project
	loaded := o.loaded
	o.mu.Unlock()

	if widget == nil {
		return ErrNoMapWidget
	}
	if !loaded {
		return ErrNoProject
	}

	for _, b := range p.Basemaps {
		if b.ID == id {
			o.activate(widget, NewTileSource(b))
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrUnknownBasemap, id)
}

// CycleBasemap activates the basemap following the active one.
func (o *Orchestrator) CycleBasemap() error {
	o.mu.Lock()
	p := o.project
	current := o.tiles
	o.mu.Unlock()

	if len(p.Basemaps) == 0 {
		return ErrUnknownBasemap
	}

	next := 0
	if current != nil {
		for i, b := range p.Basemaps {
			if b.ID == current.Basemap.ID {
				next = (i + 1) % len(p.Basemaps)
				break
			}
		}
	}
	return o.SetBasemap(p.Basemaps[next].ID)
}

func (o *Orchestrator) activate(widget MapWidget, ts *TileSource) {
	o.mu.Lock()
	previous := o.tiles
	o.tiles = ts
	o.mu.Unlock()

	if previous != nil {
		widget.RemoveTileSource(previous)
	}
	widget.AddTileSource(ts)
}

func (o *Orchestrator) ActiveTileSource() *TileSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tiles
}

func (o *Orchestrator) Project() (feed.Project, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.project, o.loaded
}

// Layers returns the layers of the current project in group order.
func (o *Orchestrator) Layers() []*Layer {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Layer, len(o.layers))
	copy(out, o.layers)
	return out
}

// interrupt cancels the load in progress, if any, and registers the next one.
func (o *Orchestrator) interrupt(next context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelLoad != nil {
		o.cancelLoad()
	}
	o.cancelLoad = next
}

// Close tears down the current project.
func (o *Orchestrator) Close() {
	o.interrupt(nil)

	o.loadMu.Lock()
	defer o.loadMu.Unlock()
	o.closeProject()
}

func (o *Orchestrator) closeProject() {
	o.mu.Lock()
	layers := o.layers
	tiles := o.tiles
	widget := o.widget
	o.layers = nil
	o.tiles = nil
	o.project = feed.Project{}
	o.loaded = false
	o.mu.Unlock()

	for _, l := range layers {
		l.Close()
	}
	if tiles != nil && widget != nil {
		widget.RemoveTileSource(tiles)
	}
}
