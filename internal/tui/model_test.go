package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/matryer/is"
	"github.com/paulmach/orb"

	"geolayers/internal/cull"
	"geolayers/internal/feed"
	"geolayers/internal/geom"
	"geolayers/internal/project"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func testModel(t *testing.T) (Model, *project.Orchestrator) {
	t.Helper()

	p := feed.Project{
		ID:     "7",
		Name:   "harbour",
		Center: [2]float64{17.3, 62.4},
		Zoom:   12,
		Groups: []feed.LayerGroup{{Name: "infra", Layers: []feed.LayerConfig{{ID: 1, Name: "wells"}}}},
		Basemaps: []feed.Basemap{
			{ID: 1, Name: "streets", URLTemplate: "https://{s}.tile.example.org/{z}/{x}/{y}.png", IsDefault: true},
			{ID: 2, Name: "none", Provider: project.ProviderCustom},
		},
	}
	fetcher := feed.ChunkFetcherFunc(func(ctx context.Context, layerID, cursor int, access feed.AccessContext) (geom.Chunk, error) {
		return geom.Chunk{Features: []geom.Feature{
			geom.NewFeature(orb.Point{17.3, 62.4}, map[string]any{"id": "w1", "depth": 3.0}),
		}}, nil
	})

	cfg := cull.DefaultConfig()
	cfg.Debounce = 0

	canvas := NewCanvas(80, 24)
	o := project.New(staticSource{"7": p, "h4sh": p}, fetcher, Markers, project.WithCullConfig(cfg))
	o.Attach(canvas)
	t.Cleanup(o.Close)

	m := New(context.Background(), o, canvas)
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, o
}

func TestWindowSizeResizesCanvas(t *testing.T) {
	is := is.New(t)
	m, _ := testModel(t)

	w, h := m.canvas.Size()
	is.Equal(w, 100)
	is.Equal(h, 27)

	m, _ = update(m, key("tab"))
	w, _ = m.canvas.Size()
	is.Equal(w, 100-sidebarWidth-1)
}

func TestOpenProjectPrompt(t *testing.T) {
	is := is.New(t)
	m, o := testModel(t)

	m, _ = update(m, key("o"))
	is.True(m.promptMode)

	m, _ = update(m, key("public:h4sh"))
	m, cmd := update(m, key("enter"))
	is.True(!m.promptMode)
	is.Equal(m.status, "opening h4sh")
	is.True(cmd != nil)

	msg := cmd().(projectLoadedMsg)
	is.NoErr(msg.err)

	m, _ = update(m, msg)
	is.Equal(m.status, "opened harbour: 1 layers")
	is.Equal(len(o.Layers()), 1)
	is.Equal(len(m.canvas.Snapshot().Markers), 1)
	is.True(strings.Contains(m.View(), "harbour"))
}

func TestKeysDriveTheMap(t *testing.T) {
	is := is.New(t)
	m, o := testModel(t)

	msg := m.openProject("7", false)().(projectLoadedMsg)
	m, _ = update(m, msg)

	_, zoom := m.canvas.Center()
	m, _ = update(m, key("+"))
	_, z := m.canvas.Center()
	is.Equal(z, zoom+1)
	is.Equal(m.status, "zoom: 13")

	before, _ := m.canvas.Center()
	m, _ = update(m, key("right"))
	after, _ := m.canvas.Center()
	is.True(after.Lon() > before.Lon())

	is.Equal(o.ActiveTileSource().Basemap.ID, 1)
	m, _ = update(m, key("b"))
	is.Equal(o.ActiveTileSource().Basemap.ID, 2)
	is.Equal(m.status, "basemap: none (blank)")

	m, _ = update(m, key("l"))
	is.Equal(o.Layers()[0].Status(), project.StatusHidden)
	is.Equal(len(m.canvas.Snapshot().Markers), 0)

	m, _ = update(m, key("l"))
	is.Equal(o.Layers()[0].Status(), project.StatusVisible)

	// pan back so the well is at the center again
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyLeft})
	m, _ = update(m, key("i"))
	is.True(strings.Contains(m.inspectPopup, "id: w1"))
	is.True(strings.Contains(m.inspectPopup, "depth: 3"))

	m, _ = update(m, key("esc"))
	is.Equal(m.inspectPopup, "")

	m, _ = update(m, key("a"))
	is.True(m.showAttrs)
	is.Equal(len(m.tbl.Rows()), 1)
}
