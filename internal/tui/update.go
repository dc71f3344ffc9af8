package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	list "github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
	case changedMsg:
		m.refreshLayers()
		if m.showAttrs {
			m.refreshAttrs()
		}
		return m, waitForChange(m.canvas.Changes())
	case projectLoadedMsg:
		m.refreshLayers()
		m.status = m.loadedStatus(msg)
		return m, nil
	case tea.KeyMsg:
		// If list is visible and filtering, send keys to list and ignore global commands
		if m.showSidebar && m.l.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.l, cmd = m.l.Update(msg)
			return m, cmd
		}
		if m.promptMode {
			switch msg.String() {
			case "esc":
				m.promptMode = false
				m.ta.Blur()
				return m, nil
			case "enter":
				id, public := parseProjectRef(m.ta.Value())
				if id == "" {
					m.status = "open: empty"
					return m, nil
				}
				m.promptMode = false
				m.ta.Blur()
				m.status = "opening " + id
				return m, m.openProject(id, public)
			}
			var cmd tea.Cmd
			m.ta, cmd = m.ta.Update(msg)
			return m, cmd
		}
		if m.showAttrs && msg.String() != "a" && msg.String() != "q" && msg.String() != "ctrl+c" {
			var cmd tea.Cmd
			m.tbl, cmd = m.tbl.Update(msg)
			return m, cmd
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "+", "=":
			if m.canvas.Zoom(1) {
				m.status = m.zoomStatus()
			}
		case "-", "_":
			if m.canvas.Zoom(-1) {
				m.status = m.zoomStatus()
			}
		case "tab":
			m.showSidebar = !m.showSidebar
			m.resize()
			if m.showSidebar {
				m.refreshLayers()
			}
			return m, nil
		case "o":
			m.promptMode = true
			m.ta.SetValue("")
			m.status = "open project"
			cmd := m.ta.Focus()
			return m, cmd
		case "b":
			if err := m.orch.CycleBasemap(); err != nil {
				m.status = "basemap: " + err.Error()
			} else if ts := m.orch.ActiveTileSource(); ts != nil {
				m.status = "basemap: " + ts.Name()
			}
		case "h":
			m.helpVisible = !m.helpVisible
		case "a":
			m.showAttrs = !m.showAttrs
			if m.showAttrs {
				m.refreshAttrs()
			}
		case "i":
			m.inspect()
		case "esc":
			m.inspectPopup = ""
		case "l":
			m.toggleAllLayers()
		case "enter", " ":
			if m.showSidebar {
				if it, ok := m.l.SelectedItem().(layerItem); ok {
					m.toggleLayer(it.layer)
					m.refreshLayers()
				}
				return m, nil
			}
		case "up":
			if !m.showSidebar {
				m.canvas.Pan(0, -m.panStepY())
			}
		case "down":
			if !m.showSidebar {
				m.canvas.Pan(0, m.panStepY())
			}
		case "left":
			m.canvas.Pan(-m.panStepX(), 0)
		case "right":
			m.canvas.Pan(m.panStepX(), 0)
		case "shift+up", "K":
			m.canvas.Pan(0, -m.panStepY())
		case "shift+down", "J":
			m.canvas.Pan(0, m.panStepY())
		}
	case tea.MouseMsg:
		// track hover over map area
		mx, my, w, h := m.mapArea()
		cx, cy := msg.X-mx, msg.Y-my
		if cx >= 0 && cx < w && cy >= 0 && cy < h {
			f := m.canvas.Snapshot()
			m.hovering = true
			m.hoverLonLat = f.ToLonLat(cx, cy)
			m.hoverMarker, _ = nearestMarker(f, cx*2+1, cy*4+2)
		} else {
			m.hovering = false
			m.hoverMarker = nil
		}
	}
	// Pass messages to list when visible
	if m.showSidebar {
		var cmd tea.Cmd
		m.l, cmd = m.l.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) panStepX() int {
	w, _ := m.canvas.Size()
	return max(1, w/8)
}

func (m Model) panStepY() int {
	_, h := m.canvas.Size()
	return max(1, h/8)
}

func (m Model) zoomStatus() string {
	_, zoom := m.canvas.Center()
	return fmt.Sprintf("zoom: %d", zoom)
}

func (m Model) loadedStatus(msg projectLoadedMsg) string {
	switch {
	case errors.Is(msg.err, context.Canceled):
		return "load of " + msg.id + " interrupted"
	case msg.err != nil:
		return "open error: " + msg.err.Error()
	}

	p, _ := m.orch.Project()
	failed := 0
	for _, l := range m.orch.Layers() {
		if l.Err() != nil {
			failed++
		}
	}
	status := fmt.Sprintf("opened %s: %d layers", p.Name, len(m.orch.Layers()))
	if failed > 0 {
		status += fmt.Sprintf(", %d failed", failed)
	}
	return status
}

// inspect opens a popup for the marker closest to the center of the map.
func (m *Model) inspect() {
	f := m.canvas.Snapshot()
	mk, ok := nearestMarker(f, f.width, f.height*2)
	if !ok {
		m.inspectPopup = "no feature nearby"
		m.status = m.inspectPopup
		return
	}

	p, _ := mk.Position()
	meta := []string{
		fmt.Sprintf("layer: %s", mk.layer),
		fmt.Sprintf("type: %s", mk.feature.Type),
		fmt.Sprintf("id: %s", mk.feature.KeyID()),
		fmt.Sprintf("position: lon=%.6f lat=%.6f", p.Lon(), p.Lat()),
	}
	keys := make([]string, 0, len(mk.feature.Properties))
	for k := range mk.feature.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys[:min(len(keys), 8)] {
		meta = append(meta, fmt.Sprintf("%s: %s", k, formatValue(mk.feature.Properties[k])))
	}

	m.inspectPopup = strings.Join(meta, "\n")
	m.status = "inspect popup"
}

// parseProjectRef reads "id" or "public:<hash>".
func parseProjectRef(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if hash, ok := strings.CutPrefix(s, publicPrefix); ok {
		return strings.TrimSpace(hash), true
	}
	return s, false
}
