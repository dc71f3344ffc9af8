package cull

import (
	"github.com/paulmach/orb"

	"geolayers/internal/geom"
)

type EventType int

const (
	EventMoveEnd EventType = iota + 1
	EventZoomEnd
)

func (t EventType) String() string {
	switch t {
	case EventMoveEnd:
		return "moveend"
	case EventZoomEnd:
		return "zoomend"
	default:
		return "unknown"
	}
}

// Event is emitted by a map widget once a pan or zoom gesture has settled.
type Event struct {
	Type     EventType
	Viewport geom.Viewport
}

// Entity is a visual handle owned by the engine that created it.
type Entity interface {
	ID() string
}

// MapWidget is the shared canvas engines render into. Engines borrow it and only
// ever remove entities they added themselves.
type MapWidget interface {
	Viewport() geom.Viewport
	// Subscribe registers fn for move and zoom events. Implementations must not
	// invoke subscribers while holding locks that AddEntity or RemoveEntity take.
	Subscribe(fn func(Event)) (unsubscribe func())
	AddEntity(e Entity)
	RemoveEntity(e Entity)
}

// EntityFactory creates the visual handle for a feature. pos is nil when the feature
// has no usable geometry. Returning nil skips the feature.
type EntityFactory interface {
	CreateEntity(f geom.Feature, pos *orb.Point) Entity
}

type EntityFactoryFunc func(f geom.Feature, pos *orb.Point) Entity

func (fn EntityFactoryFunc) CreateEntity(f geom.Feature, pos *orb.Point) Entity {
	return fn(f, pos)
}
