package project

import (
	"testing"

	"github.com/matryer/is"

	"geolayers/internal/feed"
	"geolayers/internal/geom"
)

func TestSelectBasemap(t *testing.T) {
	is := is.New(t)

	b, ok := SelectBasemap([]feed.Basemap{{ID: 1}, {ID: 2, IsDefault: true}})
	is.True(ok)
	is.Equal(b.ID, 2)

	b, ok = SelectBasemap([]feed.Basemap{{ID: 1}})
	is.True(ok)
	is.Equal(b.ID, 1)

	_, ok = SelectBasemap(nil)
	is.True(!ok)
}

func TestCustomBasemapWithoutURLIsBlank(t *testing.T) {
	is := is.New(t)

	ts := NewTileSource(feed.Basemap{ID: 3, Name: "none", Provider: ProviderCustom})

	is.True(ts.Blank)
	is.Equal(ts.Name(), "none (blank)")
	is.Equal(len(ts.TileURLs(geom.BBox{MinX: -10, MinY: -10, MaxX: 10, MaxY: 10}, 4)), 0)
}

func TestTileURLs(t *testing.T) {
	is := is.New(t)

	ts := NewTileSource(feed.Basemap{URLTemplate: "https://{s}.tile.example.org/{z}/{x}/{y}{r}.png"})

	is.Equal(ts.TileURLs(geom.BBox{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2}, 0), []string{
		"https://a.tile.example.org/0/0/0.png",
	})

	world := geom.BBox{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}
	is.Equal(ts.TileURLs(world, 1), []string{
		"https://a.tile.example.org/1/0/0.png",
		"https://b.tile.example.org/1/1/0.png",
		"https://b.tile.example.org/1/0/1.png",
		"https://c.tile.example.org/1/1/1.png",
	})

	is.Equal(len(ts.TileURLs(world, 12)), maxTileURLs)
}

func TestTileSourceOptions(t *testing.T) {
	is := is.New(t)

	ts := NewTileSource(feed.Basemap{
		URLTemplate: "https://{s}.example.org/{z}/{x}/{y}.png",
		Options:     map[string]any{"subdomains": []any{"t1"}, "maxZoom": float64(2)},
	})

	urls := ts.TileURLs(geom.BBox{MinX: 1, MinY: 1, MaxX: 1.1, MaxY: 1.1}, 18)
	is.Equal(urls, []string{"https://t1.example.org/2/2/1.png"})
}
