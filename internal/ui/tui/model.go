package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/stackforge/internal/engine"
)

// maxLogLines bounds the observer lines kept below the resource list.
const maxLogLines = 5

// Status is the display state of one resource.
type Status string

const (
	StatusActive    Status = "active"
	StatusRetrying  Status = "retrying"
	StatusDone      Status = "done"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Resource is one row of the progress view.
type Resource struct {
	Addr    string
	Status  Status
	Detail  string
	Started time.Time
	Elapsed time.Duration
}

// Finished reports whether the resource reached a final status.
func (r Resource) Finished() bool {
	switch r.Status {
	case StatusDone, StatusUnchanged, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Model is the Bubble Tea model for the progress view.
type Model struct {
	Title string
	Verb  string

	Resources []Resource
	index     map[string]int
	Logs      []string
	Summary   string
	Saves     int

	StartTime time.Time

	// Animation
	SpinnerFrame int

	// UI state
	Width       int
	Height      int
	Err         error
	Done        bool
	Interrupted bool

	cancel context.CancelFunc
}

// NewModel creates a progress model. cancel is called when the user
// interrupts; the view stays up until the run returns.
func NewModel(verb, title string, cancel context.CancelFunc) Model {
	return Model{
		Title:     title,
		Verb:      verb,
		StartTime: time.Now(),
		index:     make(map[string]int),
		cancel:    cancel,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.Done {
				return m, tea.Quit
			}
			if !m.Interrupted && m.cancel != nil {
				m.cancel()
			}
			m.Interrupted = true
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case EventMsg:
		m.applyEvent(msg.Event)

	case LogMsg:
		m.appendLog(msg.Line)

	case TickMsg:
		m.SpinnerFrame++
		return m, tickCmd()

	case DoneMsg:
		m.Err = msg.Err
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) applyEvent(e engine.Event) {
	switch e.Type {
	case engine.EventResourceCreating, engine.EventResourceUpdating,
		engine.EventResourceReplacing, engine.EventResourceDeleting:
		m.setStatus(e, StatusActive)
	case engine.EventResourceRetrying:
		m.setStatus(e, StatusRetrying)
	case engine.EventResourceCreated, engine.EventResourceUpdated, engine.EventResourceDeleted:
		m.setStatus(e, StatusDone)
	case engine.EventResourceUnchanged:
		m.setStatus(e, StatusUnchanged)
	case engine.EventResourceFailed:
		m.setStatus(e, StatusFailed)
	case engine.EventResourceSkipped:
		m.setStatus(e, StatusSkipped)
	case engine.EventRunCompleted, engine.EventRunFailed:
		m.Summary = e.Message
	case engine.EventStateSaved:
		m.Saves++
	default:
		if e.Message != "" {
			m.appendLog(e.Message)
		}
	}
}

func (m *Model) setStatus(e engine.Event, s Status) {
	if e.Resource == "" {
		return
	}
	if m.index == nil {
		m.index = make(map[string]int)
	}
	now := e.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	i, ok := m.index[e.Resource]
	if !ok {
		m.Resources = append(m.Resources, Resource{Addr: e.Resource, Started: now})
		i = len(m.Resources) - 1
		m.index[e.Resource] = i
	}
	r := &m.Resources[i]
	r.Status = s
	r.Detail = e.Message
	if r.Finished() {
		r.Elapsed = now.Sub(r.Started)
	}
}

func (m *Model) appendLog(line string) {
	m.Logs = append(m.Logs, line)
	if len(m.Logs) > maxLogLines {
		m.Logs = m.Logs[len(m.Logs)-maxLogLines:]
	}
}

// Counts returns how many resources have finished and how many are known.
func (m Model) Counts() (finished, total int) {
	for _, r := range m.Resources {
		if r.Finished() {
			finished++
		}
	}
	return finished, len(m.Resources)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
