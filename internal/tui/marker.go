package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"geolayers/internal/cull"
	"geolayers/internal/feed"
	"geolayers/internal/geom"
)

// palette is used for layers without a style color, by layer id.
var palette = []lipgloss.Color{
	"#F59E0B", "#10B981", "#3B82F6", "#EF4444", "#A855F7", "#14B8A6", "#F472B6", "#84CC16",
}

// Marker is the entity drawn on the canvas for one materialized feature.
type Marker struct {
	id      string
	layer   feed.LayerConfig
	feature geom.Feature
	pos     *orb.Point
	style   lipgloss.Style
	glyph   string
}

func (m *Marker) ID() string              { return m.id }
func (m *Marker) Feature() geom.Feature   { return m.feature }
func (m *Marker) Layer() feed.LayerConfig { return m.layer }

// Position is where the marker is anchored, if the feature has one.
func (m *Marker) Position() (orb.Point, bool) {
	if m.pos == nil {
		return orb.Point{}, false
	}
	return *m.pos, true
}

// Markers returns the entity factory for a layer. Features without a position get no
// marker.
func Markers(cfg feed.LayerConfig) cull.EntityFactory {
	style := lipgloss.NewStyle().Foreground(layerColor(cfg))

	return cull.EntityFactoryFunc(func(f geom.Feature, pos *orb.Point) cull.Entity {
		if pos == nil {
			return nil
		}

		return &Marker{
			id:      uuid.NewString(),
			layer:   cfg,
			feature: f,
			pos:     pos,
			style:   style,
			glyph:   cfg.Style.Glyph,
		}
	})
}

func layerColor(cfg feed.LayerConfig) lipgloss.Color {
	if cfg.Style.Color != "" {
		return lipgloss.Color(cfg.Style.Color)
	}
	i := cfg.ID % len(palette)
	if i < 0 {
		i += len(palette)
	}
	return palette[i]
}
