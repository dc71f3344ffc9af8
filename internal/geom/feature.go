package geom

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var ErrNoFeatures = errors.New("no features found")

// Feature is a GeoJSON feature as received from a data source. Geometry is nil when the
// source sent no geometry or when its coordinates do not match Type; the latter also sets
// Invalid.
type Feature struct {
	ID         any
	Type       string
	Geometry   orb.Geometry
	Properties map[string]any
	Invalid    bool
}

func NewFeature(g orb.Geometry, props map[string]any) Feature {
	f := Feature{Geometry: g, Properties: props}
	if g != nil {
		f.Type = g.GeoJSONType()
	}
	if f.Properties == nil {
		f.Properties = map[string]any{}
	}
	return f
}

// Point returns the coordinates of a Point feature.
func (f Feature) Point() (orb.Point, bool) {
	p, ok := f.Geometry.(orb.Point)
	return p, ok
}

// Anchor is the position a marker for this feature is placed at: the point itself, or
// the center of the geometry's bound for everything else.
func (f Feature) Anchor() (orb.Point, bool) {
	if f.Geometry == nil {
		return orb.Point{}, false
	}
	if p, ok := f.Point(); ok {
		return p, true
	}
	return f.Geometry.Bound().Center(), true
}

// KeyID is properties.id, else the feature id, else "".
func (f Feature) KeyID() string {
	if v, ok := f.Properties["id"]; ok && v != nil {
		return idString(v)
	}
	if f.ID != nil {
		return idString(f.ID)
	}
	return ""
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func (f Feature) MarshalJSON() ([]byte, error) {
	if f.Geometry == nil {
		return json.Marshal(struct {
			ID         any            `json:"id,omitempty"`
			Type       string         `json:"type"`
			Geometry   any            `json:"geometry"`
			Properties map[string]any `json:"properties"`
		}{f.ID, "Feature", nil, f.Properties})
	}
	gf := geojson.NewFeature(f.Geometry)
	gf.ID = f.ID
	if f.Properties != nil {
		gf.Properties = geojson.Properties(f.Properties)
	}
	return gf.MarshalJSON()
}

func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         any             `json:"id"`
		Geometry   json.RawMessage `json:"geometry"`
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Feature{ID: raw.ID, Properties: map[string]any{}}
	if len(raw.Properties) > 0 {
		var props map[string]any
		if err := json.Unmarshal(raw.Properties, &props); err == nil && props != nil {
			f.Properties = props
		}
	}
	if len(raw.Geometry) == 0 || bytes.Equal(bytes.TrimSpace(raw.Geometry), []byte("null")) {
		return nil
	}
	var g map[string]any
	if err := json.Unmarshal(raw.Geometry, &g); err != nil {
		f.Invalid = true
		return nil
	}
	f.Type, _ = g["type"].(string)
	geometry, ok := parseGeometry(g)
	if !ok {
		f.Invalid = true
		return nil
	}
	f.Geometry = geometry
	return nil
}

// FeatureCollection is an ordered list of features, assembled chunk by chunk.
type FeatureCollection struct {
	Features []Feature
}

func (fc *FeatureCollection) Append(fs ...Feature) {
	fc.Features = append(fc.Features, fs...)
}

func (fc FeatureCollection) Len() int { return len(fc.Features) }

// BBox covers every feature with usable geometry; it is Empty when there is none.
func (fc FeatureCollection) BBox() BBox {
	bb := EmptyBBox()
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		bb = bb.Extend(b.Min.Lon(), b.Min.Lat())
		bb = bb.Extend(b.Max.Lon(), b.Max.Lat())
	}
	return bb
}

func (fc FeatureCollection) MarshalJSON() ([]byte, error) {
	features := fc.Features
	if features == nil {
		features = []Feature{}
	}
	return json.Marshal(struct {
		Type     string    `json:"type"`
		Features []Feature `json:"features"`
	}{"FeatureCollection", features})
}

func (fc *FeatureCollection) UnmarshalJSON(data []byte) error {
	var raw struct {
		Features []Feature `json:"features"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fc.Features = raw.Features
	return nil
}

// Chunk is one page of a cursor-paginated feature fetch. A nil NextChunk or an empty
// Features list ends pagination.
type Chunk struct {
	Features  []Feature
	NextChunk *int
}

func (c Chunk) MarshalJSON() ([]byte, error) {
	features := c.Features
	if features == nil {
		features = []Feature{}
	}
	return json.Marshal(struct {
		Type      string    `json:"type"`
		Features  []Feature `json:"features"`
		NextChunk *int      `json:"next_chunk"`
	}{"FeatureCollection", features, c.NextChunk})
}

func (c *Chunk) UnmarshalJSON(data []byte) error {
	var raw struct {
		Features  []Feature       `json:"features"`
		NextChunk json.RawMessage `json:"next_chunk"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Features = raw.Features
	c.NextChunk = nil

	next := strings.Trim(strings.TrimSpace(string(raw.NextChunk)), `"`)
	if next == "" || next == "null" {
		return nil
	}
	n, err := strconv.Atoi(next)
	if err != nil {
		return fmt.Errorf("invalid next_chunk %q: %w", next, err)
	}
	c.NextChunk = &n
	return nil
}
