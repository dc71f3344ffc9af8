package project

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"geolayers/internal/feed"
	"geolayers/internal/geom"
)

const (
	ProviderCustom = "custom"

	defaultMaxZoom = 19
	// maxTileURLs caps the number of tiles returned for a single viewport.
	maxTileURLs = 256
	// keeps corner tiles inside the tile grid at every zoom
	maxLatitude  = 85.0511
	maxLongitude = 179.9999
)

// SelectBasemap returns the basemap flagged as default, or the first one.
func SelectBasemap(basemaps []feed.Basemap) (feed.Basemap, bool) {
	if len(basemaps) == 0 {
		return feed.Basemap{}, false
	}
	for _, b := range basemaps {
		if b.IsDefault {
			return b, true
		}
	}
	return basemaps[0], true
}

// TileSource is the active raster background of a map widget.
type TileSource struct {
	Basemap feed.Basemap
	// Blank sources render nothing and make no requests.
	Blank bool

	subdomains []string
	maxZoom    int
}

func NewTileSource(b feed.Basemap) *TileSource {
	ts := &TileSource{
		Basemap: b,
		Blank:   strings.TrimSpace(b.URLTemplate) == "",
		maxZoom: defaultMaxZoom,
	}

	if b.Provider == ProviderCustom && ts.Blank {
		return ts
	}

	switch v := b.Options["subdomains"].(type) {
	case string:
		for _, r := range v {
			ts.subdomains = append(ts.subdomains, string(r))
		}
	case []any:
		for _, s := range v {
			ts.subdomains = append(ts.subdomains, fmt.Sprint(s))
		}
	case []string:
		ts.subdomains = v
	}
	if len(ts.subdomains) == 0 {
		ts.subdomains = []string{"a", "b", "c"}
	}

	if z, ok := optionInt(b.Options, "maxZoom"); ok && z > 0 {
		ts.maxZoom = z
	}

	return ts
}

func (ts *TileSource) Name() string {
	if ts.Blank {
		return ts.Basemap.Name + " (blank)"
	}
	return ts.Basemap.Name
}

// TileURLs expands the url template for every tile covering b at the given zoom.
func (ts *TileSource) TileURLs(b geom.BBox, zoom int) []string {
	if ts.Blank || b.Empty() {
		return nil
	}

	z := maptile.Zoom(min(max(zoom, 0), ts.maxZoom))
	nw := maptile.At(clampLonLat(b.MinX, b.MaxY), z)
	se := maptile.At(clampLonLat(b.MaxX, b.MinY), z)

	var urls []string
	for y := nw.Y; y <= se.Y; y++ {
		for x := nw.X; x <= se.X; x++ {
			if len(urls) == maxTileURLs {
				return urls
			}
			urls = append(urls, ts.expand(maptile.New(x, y, z)))
		}
	}
	return urls
}

func (ts *TileSource) expand(t maptile.Tile) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(int(t.Z)),
		"{x}", strconv.FormatUint(uint64(t.X), 10),
		"{y}", strconv.FormatUint(uint64(t.Y), 10),
		"{s}", ts.subdomains[int(t.X+t.Y)%len(ts.subdomains)],
		"{r}", "",
	)
	return r.Replace(ts.Basemap.URLTemplate)
}

func clampLonLat(lon, lat float64) orb.Point {
	lon = math.Max(-180, math.Min(lon, maxLongitude))
	lat = math.Max(-maxLatitude, math.Min(lat, maxLatitude))
	return orb.Point{lon, lat}
}

func optionInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		i, err := strconv.Atoi(v)
		return i, err == nil
	default:
		return 0, false
	}
}
