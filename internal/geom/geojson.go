package geom

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/paulmach/orb"
)

// LoadGeoJSON reads a GeoJSON file (FeatureCollection, Feature or bare geometry).
func LoadGeoJSON(path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeGeoJSON(data)
}

// DecodeGeoJSON decodes a GeoJSON document into features. Features with malformed
// geometry are kept and marked Invalid.
func DecodeGeoJSON(data []byte) ([]Feature, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	t, _ := raw["type"].(string)
	if t == "" {
		return nil, errors.New("invalid geojson: missing type")
	}

	var features []Feature
	switch t {
	case "FeatureCollection":
		var fc FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, err
		}
		features = fc.Features
	case "Feature":
		var f Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		features = []Feature{f}
	default:
		g, ok := parseGeometry(raw)
		if !ok {
			return nil, errors.New("unsupported geojson type: " + t)
		}
		features = []Feature{NewFeature(g, nil)}
	}
	if len(features) == 0 {
		return nil, ErrNoFeatures
	}
	return features, nil
}

// parseGeometry converts a decoded GeoJSON geometry object. The nesting depth of
// coordinates must match the type; any mismatch rejects the whole geometry.
func parseGeometry(g map[string]any) (orb.Geometry, bool) {
	parsePoint := func(v any) (orb.Point, bool) {
		if a, ok := v.([]any); ok && len(a) >= 2 {
			lon, lok := a[0].(float64)
			lat, aok := a[1].(float64)
			if lok && aok {
				return orb.Point{lon, lat}, true
			}
		}
		return orb.Point{}, false
	}
	parseArrayPoints := func(v any) ([]orb.Point, bool) {
		arr, ok := v.([]any)
		if !ok {
			return nil, false
		}
		pts := make([]orb.Point, 0, len(arr))
		for _, el := range arr {
			pt, ok := parsePoint(el)
			if !ok {
				return nil, false
			}
			pts = append(pts, pt)
		}
		return pts, true
	}
	parsePolygon := func(v any) (orb.Polygon, bool) {
		arr, ok := v.([]any)
		if !ok {
			return nil, false
		}
		poly := make(orb.Polygon, 0, len(arr))
		for _, ring := range arr {
			pts, ok := parseArrayPoints(ring)
			if !ok {
				return nil, false
			}
			poly = append(poly, orb.Ring(pts))
		}
		return poly, true
	}

	gt, _ := g["type"].(string)
	coords := g["coordinates"]
	switch gt {
	case "Point":
		if pt, ok := parsePoint(coords); ok {
			return pt, true
		}
	case "MultiPoint":
		if pts, ok := parseArrayPoints(coords); ok {
			return orb.MultiPoint(pts), true
		}
	case "LineString":
		if pts, ok := parseArrayPoints(coords); ok {
			return orb.LineString(pts), true
		}
	case "MultiLineString":
		arr, ok := coords.([]any)
		if !ok {
			return nil, false
		}
		mls := make(orb.MultiLineString, 0, len(arr))
		for _, el := range arr {
			pts, ok := parseArrayPoints(el)
			if !ok {
				return nil, false
			}
			mls = append(mls, orb.LineString(pts))
		}
		return mls, true
	case "Polygon":
		if poly, ok := parsePolygon(coords); ok {
			return poly, true
		}
	case "MultiPolygon":
		arr, ok := coords.([]any)
		if !ok {
			return nil, false
		}
		mp := make(orb.MultiPolygon, 0, len(arr))
		for _, el := range arr {
			poly, ok := parsePolygon(el)
			if !ok {
				return nil, false
			}
			mp = append(mp, poly)
		}
		return mp, true
	}
	return nil, false
}
