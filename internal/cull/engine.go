package cull

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"geolayers/internal/geom"
)

type State int

const (
	// StateDisabled renders every feature.
	StateDisabled State = iota
	// StateEnabled renders only the features inside the expanded viewport.
	StateEnabled
)

func (s State) String() string {
	if s == StateEnabled {
		return "enabled"
	}
	return "disabled"
}

// Engine keeps the features of one layer that matter for the current viewport
// materialized as entities on a shared map widget.
type Engine struct {
	widget  MapWidget
	factory EntityFactory
	cfg     Config
	log     *slog.Logger

	mu       sync.Mutex
	features []geom.Feature
	keys     []string
	index    *spatialIndex
	rendered map[string]Entity

	state      State
	complete   bool
	lastBounds geom.BBox
	hasBounds  bool

	unsubscribe func()
	timer       *time.Timer
	generation  uint64
	started     bool
	closed      bool
}

type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

func New(widget MapWidget, factory EntityFactory, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		widget:   widget,
		factory:  factory,
		cfg:      cfg,
		log:      slog.Default(),
		index:    newSpatialIndex(nil),
		rendered: map[string]Entity{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetFeatures replaces the collection the engine renders from. A started engine
// reconciles right away.
func (e *Engine) SetFeatures(fc geom.FeatureCollection) {
	features := slices.Clone(fc.Features)
	keys := make([]string, len(features))
	for i, f := range features {
		keys[i] = geom.Key(f, i)
	}
	index := newSpatialIndex(features)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.features = features
	e.keys = keys
	e.index = index
	e.complete = false
	e.hasBounds = false

	e.log.Debug("features replaced", "features", len(features), "indexed", index.Size())

	if e.started {
		e.recompute()
	}
}

// Start subscribes to the widget and renders the current viewport once. Starting a
// started or closed engine does nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started || e.closed {
		return
	}
	e.started = true
	e.complete = false
	e.hasBounds = false
	e.unsubscribe = e.widget.Subscribe(e.handle)

	e.recompute()
}

// Stop releases the subscription and the pending timer and removes every entity the
// engine created. The features are kept so the engine can be started again.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stop()
}

// Close stops the engine for good. It is safe to call more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stop()
	e.closed = true
	e.features = nil
	e.keys = nil
	e.index = newSpatialIndex(nil)
}

func (e *Engine) stop() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.cancelTimer()
	e.started = false

	for key, entity := range e.rendered {
		e.widget.RemoveEntity(entity)
		delete(e.rendered, key)
	}
	e.complete = false
	e.hasBounds = false
}

// Recompute runs a recomputation immediately, dropping any pending debounced one.
func (e *Engine) Recompute() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return
	}
	e.cancelTimer()
	e.recompute()
}

func (e *Engine) VisibleMarkerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rendered)
}

func (e *Engine) TotalFeatureCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.features)
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// handle replaces the outstanding timer with a new one for every event.
func (e *Engine) handle(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return
	}

	e.cancelTimer()

	if e.cfg.Debounce <= 0 {
		e.recompute()
		return
	}

	generation := e.generation
	e.timer = time.AfterFunc(e.cfg.Debounce, func() {
		e.fire(generation)
	})
}

func (e *Engine) fire(generation uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// a timer that fired while being replaced must not run
	if !e.started || generation != e.generation {
		return
	}
	e.timer = nil
	e.recompute()
}

func (e *Engine) cancelTimer() {
	e.generation++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// recompute must be called with e.mu held.
func (e *Engine) recompute() {
	vp := e.widget.Viewport()

	if !e.cfg.optimize(len(e.features), vp.Zoom) {
		if e.state != StateDisabled {
			e.log.Debug("viewport culling disabled", "features", len(e.features), "zoom", vp.Zoom)
			e.state = StateDisabled
			e.complete = false
		}
		e.hasBounds = false
		if e.complete {
			return
		}
		e.materializeAll()
		e.complete = true
		return
	}

	if e.state != StateEnabled {
		e.log.Debug("viewport culling enabled", "features", len(e.features), "zoom", vp.Zoom)
		e.state = StateEnabled
		e.complete = false
		e.hasBounds = false
	}

	expanded := vp.Bounds.Scale(e.cfg.BufferFactor)
	if e.hasBounds && expanded.Near(e.lastBounds, e.cfg.Epsilon) {
		return
	}
	e.lastBounds = expanded
	e.hasBounds = true

	e.reconcile(e.index.Within(expanded))
}

func (e *Engine) materializeAll() {
	all := make([]int, len(e.features))
	for i := range all {
		all[i] = i
	}
	e.reconcile(all)
}

// reconcile makes the rendered set equal to the features at the given indices. Keys
// present before and after keep their entity.
func (e *Engine) reconcile(indices []int) {
	wanted := make(map[string]struct{}, len(indices))
	for _, i := range indices {
		wanted[e.keys[i]] = struct{}{}
	}

	removed := 0
	for key, entity := range e.rendered {
		if _, ok := wanted[key]; !ok {
			e.widget.RemoveEntity(entity)
			delete(e.rendered, key)
			removed++
		}
	}

	added := 0
	for _, i := range indices {
		key := e.keys[i]
		if _, ok := e.rendered[key]; ok {
			continue
		}

		f := e.features[i]
		var pos *orb.Point
		if p, ok := f.Anchor(); ok && !f.Invalid {
			pos = &p
		}

		entity := e.factory.CreateEntity(f, pos)
		if entity == nil {
			continue
		}
		e.widget.AddEntity(entity)
		e.rendered[key] = entity
		added++
	}

	if added > 0 || removed > 0 {
		e.log.Debug("entities reconciled", "added", added, "removed", removed, "rendered", len(e.rendered))
	}
}
