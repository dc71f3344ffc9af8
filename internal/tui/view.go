package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	contentWidth := max(10, m.width)
	_, _, mapWidth, mapHeight := m.mapArea()
	contentHeight := mapHeight

	// Header
	header := titleStyle.Render(" geolayers ") + dimStyle.Render(m.projectTitle())
	header = lipgloss.NewStyle().Width(contentWidth).MaxHeight(headerHeight).Render(header)

	// Sidebar
	var sidebar string
	if m.showSidebar {
		sidebar = lipgloss.NewStyle().Width(sidebarWidth).Render(m.l.View())
	}

	frame := m.canvas.Snapshot()

	var mapView string
	switch {
	case m.showAttrs:
		// Render attributes table centered in the map area
		colW := 0
		for _, c := range m.tbl.Columns() {
			colW += c.Width + 3
		}
		if colW == 0 {
			colW = min(60, contentWidth-6)
		}
		maxW := min(mapWidth, max(32, colW))
		tbl := m.tbl
		tbl.SetWidth(maxW - 4)
		tbl.SetHeight(min(mapHeight-2, 20))
		attrsBox := boxStyle.Width(maxW).Render(tbl.View())
		mapView = lipgloss.Place(mapWidth, mapHeight, lipgloss.Center, lipgloss.Center, attrsBox)
	case m.promptMode:
		ta := m.ta
		ta.SetWidth(min(mapWidth-4, 60))
		box := boxStyle.Render(titleStyle.Render("open project") + "\n" + ta.View())
		mapView = lipgloss.Place(mapWidth, mapHeight, lipgloss.Center, lipgloss.Center, box)
	default:
		var hover *Marker
		if m.hovering {
			hover = m.hoverMarker
		}
		// plain map canvas: no border, no background highlight
		mapView = lipgloss.NewStyle().Width(mapWidth).Height(mapHeight).MaxHeight(mapHeight).Render(renderFrame(frame, hover))
	}

	// Inspect popup overlays the left of the map
	if m.inspectPopup != "" && !m.showAttrs && !m.promptMode {
		maxPopupW := max(20, min(48, contentWidth/2))
		box := boxStyle.MaxWidth(maxPopupW).Render(m.inspectPopup)
		mapView = lipgloss.Place(mapWidth, mapHeight, lipgloss.Left, lipgloss.Center, box)
	}

	// Body row
	body := mapView
	if m.showSidebar {
		body = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", mapView)
	}
	body = lipgloss.NewStyle().Height(contentHeight).MaxHeight(contentHeight).Render(body)

	// Footer: status line, then help and coordinates
	status := dimStyle.Render(" " + m.status + " ")
	basemap := dimStyle.Render(m.basemapStatus(frame))
	statusLine := lipgloss.NewStyle().Width(contentWidth).MaxWidth(contentWidth).Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, status, basemap))

	help := m.renderHelp()
	coords := ""
	if m.hovering {
		coords = dimStyle.Render(fmt.Sprintf("  lon=%.5f lat=%.5f  ", m.hoverLonLat.Lon(), m.hoverLonLat.Lat()))
	}
	spacerW := max(0, contentWidth-lipgloss.Width(help)-lipgloss.Width(coords))
	right := lipgloss.Place(spacerW+lipgloss.Width(coords), 1, lipgloss.Right, lipgloss.Center, coords)
	helpLine := lipgloss.NewStyle().Width(contentWidth).MaxWidth(contentWidth).Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, help, right))

	ui := lipgloss.JoinVertical(lipgloss.Left, header, body, statusLine, helpLine)
	return appStyle.Width(contentWidth).Height(m.height).MaxHeight(m.height).Render(ui)
}

func (m Model) projectTitle() string {
	p, ok := m.orch.Project()
	if !ok {
		return " no project"
	}
	_, zoom := m.canvas.Center()
	visible, total := 0, 0
	for _, l := range m.orch.Layers() {
		visible += l.VisibleMarkerCount()
		total += l.TotalFeatureCount()
	}
	return fmt.Sprintf(" %s  z%d  %d/%d features", p.Name, zoom, visible, total)
}

// basemapStatus names the active tile source and the tiles it would fetch for the view.
func (m Model) basemapStatus(f Frame) string {
	ts := f.Tiles
	if ts == nil {
		return ""
	}
	vp := f.Viewport()
	return fmt.Sprintf("  basemap %s: %d tiles", ts.Name(), len(ts.TileURLs(vp.Bounds, vp.Zoom)))
}

func (m Model) renderHelp() string {
	if !m.helpVisible {
		return ""
	}
	keys := []string{
		"↑↓←→ pan",
		"+/- zoom",
		"Tab layers",
		"Enter toggle",
		"o open",
		"b basemap",
		"a attrs",
		"i inspect",
		"l all",
		"h help",
		"q quit",
	}
	return dimStyle.Render("  " + strings.Join(keys, "  "))
}
