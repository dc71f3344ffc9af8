package geom

import (
	"encoding/xml"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// LoadKML extracts Placemark points from a KML file. KML coordinates are
// "lon,lat[,alt]"; altitude is ignored. A placemark holding several tuples becomes a
// MultiPoint.
func LoadKML(path string) ([]Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeKML(f)
}

func DecodeKML(in io.Reader) ([]Feature, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}

	type kmlPoint struct {
		Coordinates string `xml:"coordinates"`
	}
	type kmlPlacemark struct {
		ID          string    `xml:"id,attr"`
		Name        string    `xml:"name"`
		Description string    `xml:"description"`
		Point       *kmlPoint `xml:"Point"`
	}
	type kmlDoc struct {
		Placemarks []kmlPlacemark `xml:"Placemark"`
		Document   struct {
			Placemarks []kmlPlacemark `xml:"Placemark"`
		} `xml:"Document"`
	}

	var doc kmlDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var features []Feature
	for _, pm := range append(doc.Placemarks, doc.Document.Placemarks...) {
		if pm.Point == nil {
			continue
		}
		var pts []orb.Point
		// coordinates may contain multiple tuples separated by spaces
		for _, tuple := range strings.Fields(pm.Point.Coordinates) {
			vals := strings.Split(tuple, ",")
			if len(vals) < 2 {
				continue
			}
			lon, err1 := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
			lat, err2 := strconv.ParseFloat(strings.TrimSpace(vals[1]), 64)
			if err1 != nil || err2 != nil {
				continue
			}
			pts = append(pts, orb.Point{lon, lat})
		}
		if len(pts) == 0 {
			continue
		}
		props := map[string]any{}
		if pm.Name != "" {
			props["name"] = pm.Name
		}
		if pm.Description != "" {
			props["description"] = strings.TrimSpace(pm.Description)
		}
		if pm.ID != "" {
			props["id"] = pm.ID
		}
		var g orb.Geometry = pts[0]
		if len(pts) > 1 {
			g = orb.MultiPoint(pts)
		}
		features = append(features, NewFeature(g, props))
	}
	if len(features) == 0 {
		return nil, errors.New("kml: no points found")
	}
	return features, nil
}
