package tui

import (
	"fmt"

	list "github.com/charmbracelet/bubbles/list"

	"geolayers/internal/project"
)

type layerItem struct {
	layer *project.Layer
}

func (i layerItem) Title() string {
	if g := i.layer.Group(); g != "" {
		return g + " / " + i.layer.Name()
	}
	return i.layer.Name()
}

func (i layerItem) Description() string {
	l := i.layer
	switch status := l.Status(); status {
	case project.StatusLoading:
		p := l.Progress()
		return fmt.Sprintf("loading  %d chunks  %d features", p.Chunks, p.Features)
	case project.StatusVisible, project.StatusHidden:
		return fmt.Sprintf("%s  %d/%d", status, l.VisibleMarkerCount(), l.TotalFeatureCount())
	case project.StatusFailed:
		if err := l.Err(); err != nil {
			return "failed: " + err.Error()
		}
		return "failed"
	default:
		return status.String()
	}
}

func (i layerItem) FilterValue() string { return i.layer.Group() + " " + i.layer.Name() }

func (m *Model) refreshLayers() {
	layers := m.orch.Layers()
	items := make([]list.Item, 0, len(layers))
	for _, l := range layers {
		items = append(items, layerItem{layer: l})
	}
	m.l.SetItems(items)
}

// toggleLayer shows a hidden layer and hides a visible one.
func (m *Model) toggleLayer(l *project.Layer) {
	var err error
	switch l.Status() {
	case project.StatusVisible:
		err = l.Hide()
	case project.StatusHidden:
		err = l.Show()
	default:
		m.status = fmt.Sprintf("%s is %s", l.Name(), l.Status())
		return
	}
	if err != nil {
		m.status = "layer error: " + err.Error()
		return
	}
	m.status = fmt.Sprintf("%s %s", l.Name(), l.Status())
}

// toggleAllLayers hides every visible layer, or shows every hidden one when none is visible.
func (m *Model) toggleAllLayers() {
	layers := m.orch.Layers()
	anyVisible := false
	for _, l := range layers {
		if l.Status() == project.StatusVisible {
			anyVisible = true
			break
		}
	}
	n := 0
	for _, l := range layers {
		var err error
		switch {
		case anyVisible && l.Status() == project.StatusVisible:
			err = l.Hide()
		case !anyVisible && l.Status() == project.StatusHidden:
			err = l.Show()
		default:
			continue
		}
		if err == nil {
			n++
		}
	}
	if anyVisible {
		m.status = fmt.Sprintf("hid %d layers", n)
	} else {
		m.status = fmt.Sprintf("showed %d layers", n)
	}
}
