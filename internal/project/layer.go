package project

import (
	"context"
	"errors"
	"sync"

	"geolayers/internal/cull"
	"geolayers/internal/feed"
	"geolayers/internal/geom"
)

type LayerStatus int

const (
	StatusPending LayerStatus = iota
	StatusInitialized
	StatusLoading
	StatusLoaded
	StatusVisible
	StatusHidden
	StatusFailed
	StatusClosed
)

func (s LayerStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInitialized:
		return "initialized"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusVisible:
		return "visible"
	case StatusHidden:
		return "hidden"
	case StatusFailed:
		return "failed"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var ErrLayerNotReady = errors.New("layer has no rendering context")

// Layer is one logical layer of a loaded project. It owns the culling engine that
// renders its features.
type Layer struct {
	cfg    feed.LayerConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	status   LayerStatus
	err      error
	engine   *cull.Engine
	progress feed.Progress
	onChange func(*Layer)
}

func newLayer(ctx context.Context, cfg feed.LayerConfig, onChange func(*Layer)) *Layer {
	ctx, cancel := context.WithCancel(ctx)
	return &Layer{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		onChange: onChange,
	}
}

func (l *Layer) ID() int { return l.cfg.ID }
func (l *Layer) Name() string { return l.cfg.String() }
func (l *Layer) Group() string { return l.cfg.Group }
func (l *Layer) Config() feed.LayerConfig { return l.cfg }
func (l *Layer) Context() context.Context { return l.ctx }

func (l *Layer) Status() LayerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Err is the error that made the layer fail, if any.
func (l *Layer) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Layer) Progress() feed.Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.progress
}

// Initialize creates the rendering context of the layer on the widget.
func (l *Layer) Initialize(widget cull.MapWidget, factory cull.EntityFactory, cfg cull.Config, opts ...cull.Option) error {
	if factory == nil {
		return errors.New("no entity factory for layer " + l.Name())
	}

	l.mu.Lock()
	if l.status == StatusClosed {
		l.mu.Unlock()
		return context.Canceled
	}
	l.engine = cull.New(widget, factory, cfg, opts...)
	l.status = StatusInitialized
	l.mu.Unlock()

	l.changed()
	return nil
}

// SetData hands the loaded collection to the culling engine.
func (l *Layer) SetData(fc geom.FeatureCollection) error {
	l.mu.Lock()
	engine := l.engine
	if engine == nil || l.status == StatusClosed {
		l.mu.Unlock()
		return ErrLayerNotReady
	}
	l.status = StatusLoaded
	l.mu.Unlock()

	engine.SetFeatures(fc)
	l.changed()
	return nil
}

func (l *Layer) Show() error {
	return l.toggle(StatusVisible, (*cull.Engine).Start)
}

func (l *Layer) Hide() error {
	return l.toggle(StatusHidden, (*cull.Engine).Stop)
}

func (l *Layer) toggle(status LayerStatus, fn func(*cull.Engine)) error {
	l.mu.Lock()
	engine := l.engine
	if engine == nil || l.status == StatusClosed || l.status == StatusFailed {
		l.mu.Unlock()
		return ErrLayerNotReady
	}
	l.status = status
	l.mu.Unlock()

	fn(engine)
	l.changed()
	return nil
}

// Close cancels any in-flight pagination and removes the layer's entities from the
// widget. It is safe to call more than once.
func (l *Layer) Close() {
	l.cancel()

	l.mu.Lock()
	if l.status == StatusClosed {
		l.mu.Unlock()
		return
	}
	engine := l.engine
	l.status = StatusClosed
	l.mu.Unlock()

	if engine != nil {
		engine.Close()
	}
	l.changed()
}

func (l *Layer) VisibleMarkerCount() int {
	if e := l.currentEngine(); e != nil {
		return e.VisibleMarkerCount()
	}
	return 0
}

func (l *Layer) TotalFeatureCount() int {
	if e := l.currentEngine(); e != nil {
		return e.TotalFeatureCount()
	}
	return 0
}

func (l *Layer) currentEngine() *cull.Engine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine
}

func (l *Layer) setStatus(status LayerStatus) {
	l.mu.Lock()
	if l.status == StatusClosed {
		l.mu.Unlock()
		return
	}
	l.status = status
	l.mu.Unlock()
	l.changed()
}

func (l *Layer) fail(err error) {
	l.mu.Lock()
	if l.status == StatusClosed {
		l.mu.Unlock()
		return
	}
	l.status = StatusFailed
	l.err = err
	engine := l.engine
	l.mu.Unlock()

	if engine != nil {
		engine.Stop()
	}
	l.changed()
}

func (l *Layer) setProgress(p feed.Progress) {
	l.mu.Lock()
	l.progress = p
	l.mu.Unlock()
	l.changed()
}

func (l *Layer) changed() {
	if l.onChange != nil {
		l.onChange(l)
	}
}
