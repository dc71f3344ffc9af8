package tui

import (
	"context"

	list "github.com/charmbracelet/bubbles/list"
	table "github.com/charmbracelet/bubbles/table"
	textarea "github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/paulmach/orb"

	"geolayers/internal/project"
)

const (
	sidebarWidth = 34
	headerHeight = 1
	footerHeight = 2

	// public projects are opened by typing this prefix before the hash
	publicPrefix = "public:"
)

type Model struct {
	ctx    context.Context
	orch   *project.Orchestrator
	canvas *Canvas

	width  int
	height int

	showSidebar bool
	helpVisible bool

	status string

	// project opened on start
	projectID string
	public    bool

	// layers sidebar
	l list.Model

	// open project prompt
	promptMode bool
	ta         textarea.Model

	// inspect popup
	inspectPopup string

	// hover state
	hovering    bool
	hoverLonLat orb.Point
	hoverMarker *Marker

	// attributes table
	showAttrs bool
	tbl       table.Model
}

// New returns the viewer for a canvas the orchestrator is attached to.
func New(ctx context.Context, orch *project.Orchestrator, canvas *Canvas) Model {
	m := Model{
		ctx:         ctx,
		orch:        orch,
		canvas:      canvas,
		helpVisible: true,
		status:      "geolayers ready, press o to open a project",
	}
	// list setup
	d := list.NewDefaultDelegate()
	m.l = list.New(nil, d, 0, 0)
	m.l.Title = "Layers"
	m.l.SetShowHelp(false)
	m.l.SetShowStatusBar(false)
	m.l.SetFilteringEnabled(true)
	// textarea setup
	m.ta = textarea.New()
	m.ta.Placeholder = "Project id, or public:<hash>. Press Enter to open; Esc to cancel."
	m.ta.CharLimit = 256
	m.ta.ShowLineNumbers = false
	m.ta.SetWidth(50)
	m.ta.SetHeight(1)
	// attributes table setup (columns are inferred from the visible features)
	m.tbl = table.New(table.WithFocused(true))
	m.tbl.SetHeight(12)
	return m
}

// WithProject makes the viewer open a project as soon as it starts.
func (m Model) WithProject(id string, public bool) Model {
	m.projectID = id
	m.public = public
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForChange(m.canvas.Changes())}
	if m.projectID != "" {
		cmds = append(cmds, m.openProject(m.projectID, m.public))
	}
	return tea.Batch(cmds...)
}

// changedMsg is delivered whenever the canvas or a layer changed.
type changedMsg struct{}

type projectLoadedMsg struct {
	id  string
	err error
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func (m Model) openProject(id string, public bool) tea.Cmd {
	ctx, orch := m.ctx, m.orch
	return func() tea.Msg {
		return projectLoadedMsg{id: id, err: orch.LoadProject(ctx, id, public)}
	}
}

// mapArea returns the map origin and size in cells, matching the layout of View.
func (m Model) mapArea() (x, y, w, h int) {
	contentWidth := max(10, m.width)
	contentHeight := max(4, m.height-headerHeight-footerHeight)

	x = 0
	w = contentWidth
	if m.showSidebar {
		x = sidebarWidth + 1
		w = contentWidth - sidebarWidth - 1
	}
	return x, headerHeight, max(10, w), contentHeight
}

// resize fits the sidebar and the canvas to the current layout.
func (m *Model) resize() {
	_, _, w, h := m.mapArea()
	m.l.SetSize(sidebarWidth-2, h-2)
	m.canvas.Resize(w, h)
}
