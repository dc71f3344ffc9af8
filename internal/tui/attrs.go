package tui

import (
	"encoding/json"
	"fmt"
	"sort"

	table "github.com/charmbracelet/bubbles/table"
)

const maxAttrRows = 500

// refreshAttrs rebuilds the table columns/rows from the markers currently on the canvas
func (m *Model) refreshAttrs() {
	cols, rows := buildAttributes(m.canvas.Snapshot().Markers)
	if len(rows) == 0 {
		m.showAttrs = false
		m.status = "no features on the map"
		return
	}

	tcols := make([]table.Column, 0, len(cols)+2)
	tcols = append(tcols, table.Column{Title: "#", Width: 4}, table.Column{Title: "layer", Width: 12})
	maxColW := 24
	for _, c := range cols {
		tcols = append(tcols, table.Column{Title: c, Width: min(len(c)+2, maxColW)})
	}

	trows := make([]table.Row, 0, len(rows))
	for i, r := range rows {
		row := make([]string, 0, len(tcols))
		row = append(row, fmt.Sprintf("%d", i+1))
		row = append(row, r...)
		trows = append(trows, table.Row(row))
	}

	// Avoid transient mismatch: clear rows, set columns, then set rows
	m.tbl.SetRows(nil)
	m.tbl.SetColumns(tcols)
	m.tbl.SetRows(trows)
}

// buildAttributes unions the property keys of the markers and returns (columns, rows).
// Each row starts with the marker's layer name.
func buildAttributes(markers []*Marker) ([]string, [][]string) {
	if len(markers) > maxAttrRows {
		markers = markers[:maxAttrRows]
	}

	seen := map[string]bool{}
	var order []string
	for _, mk := range markers {
		for k := range mk.feature.Properties {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
		}
	}
	sort.Strings(order)

	rows := make([][]string, 0, len(markers))
	for _, mk := range markers {
		vals := make([]string, 0, len(order)+1)
		vals = append(vals, mk.layer.String())
		for _, k := range order {
			vals = append(vals, formatValue(mk.feature.Properties[k]))
		}
		rows = append(rows, vals)
	}
	return order, rows
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		bs, _ := json.Marshal(t)
		return string(bs)
	}
}
