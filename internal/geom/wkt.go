package geom

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// ParseWKT decodes a single WKT geometry. Empty geometries are rejected.
func ParseWKT(s string) (orb.Geometry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty wkt")
	}
	g, err := wkt.Unmarshal(parenthesizeMultiPoint(s))
	if err != nil {
		return nil, fmt.Errorf("wkt: %w", err)
	}
	if emptyGeometry(g) {
		return nil, errors.New("wkt: empty geometry")
	}
	return g, nil
}

// parenthesizeMultiPoint rewrites "MULTIPOINT (1 2, 3 4)" as "MULTIPOINT ((1 2), (3 4))",
// the only form orb decodes.
func parenthesizeMultiPoint(s string) string {
	if !strings.HasPrefix(strings.ToUpper(s), "MULTIPOINT") {
		return s
	}
	open := strings.IndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return s
	}
	body := strings.TrimSpace(s[open+1 : end])
	if body == "" || strings.HasPrefix(body, "(") {
		return s
	}
	points := strings.Split(body, ",")
	for i, p := range points {
		points[i] = "(" + strings.TrimSpace(p) + ")"
	}
	return s[:open] + "(" + strings.Join(points, ", ") + ")"
}

func emptyGeometry(g orb.Geometry) bool {
	switch g := g.(type) {
	case nil:
		return true
	case orb.MultiPoint:
		return len(g) == 0
	case orb.LineString:
		return len(g) == 0
	case orb.MultiLineString:
		return len(g) == 0
	case orb.Polygon:
		return len(g) == 0
	case orb.MultiPolygon:
		return len(g) == 0
	case orb.Collection:
		return len(g) == 0
	}
	return false
}

// LoadWKT reads one WKT geometry per non-empty line.
func LoadWKT(path string) ([]Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeWKT(f)
}

func DecodeWKT(in io.Reader) ([]Feature, error) {
	var features []Feature
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		g, err := ParseWKT(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		features = append(features, NewFeature(g, map[string]any{"line": line}))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, ErrNoFeatures
	}
	return features, nil
}
