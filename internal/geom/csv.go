package geom

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// LoadCSV reads a CSV with latitude/longitude columns, or a wkt column, and returns one
// feature per row. Column detection: lat|latitude|y, lon|lng|long|longitude|x and wkt
// (case-insensitive). Every other column becomes a string property.
func LoadCSV(path string) ([]Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCSV(f)
}

func DecodeCSV(in io.Reader) ([]Feature, error) {
	r := csv.NewReader(in)
	r.TrimLeadingSpace = true
	recs, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.New("empty csv")
	}
	header := recs[0]
	idxLat, idxLon, idxWKT := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "lat", "latitude", "y":
			if idxLat == -1 {
				idxLat = i
			}
		case "lon", "lng", "long", "longitude", "x":
			if idxLon == -1 {
				idxLon = i
			}
		case "wkt", "geometry":
			if idxWKT == -1 {
				idxWKT = i
			}
		}
	}
	if (idxLat == -1 || idxLon == -1) && idxWKT == -1 {
		return nil, errors.New("csv: latitude/longitude or wkt columns not found")
	}

	var features []Feature
	for _, row := range recs[1:] {
		var g orb.Geometry
		if idxWKT != -1 && idxWKT < len(row) {
			if wg, err := ParseWKT(row[idxWKT]); err == nil {
				g = wg
			}
		}
		if g == nil && idxLat != -1 && idxLon != -1 && idxLon < len(row) && idxLat < len(row) {
			lon, err1 := strconv.ParseFloat(strings.TrimSpace(row[idxLon]), 64)
			lat, err2 := strconv.ParseFloat(strings.TrimSpace(row[idxLat]), 64)
			if err1 == nil && err2 == nil {
				g = orb.Point{lon, lat}
			}
		}
		if g == nil {
			continue
		}
		props := map[string]any{}
		for i, h := range header {
			if i == idxLat || i == idxLon || i == idxWKT || i >= len(row) {
				continue
			}
			props[strings.TrimSpace(h)] = row[i]
		}
		features = append(features, NewFeature(g, props))
	}
	if len(features) == 0 {
		return nil, errors.New("csv: no valid rows parsed")
	}
	return features, nil
}
