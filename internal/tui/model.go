package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-playback-probe/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// SnapshotMsg carries an updated snapshot.
type SnapshotMsg struct {
	Snapshot *stats.Snapshot
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// SnapshotSource provides playback statistics. historyLen bounds the
// per-channel history returned.
type SnapshotSource interface {
	Snapshot(historyLen int) *stats.Snapshot
}

// Config holds TUI configuration.
type Config struct {
	Source      SnapshotSource
	Target      string // what is being played, e.g. a stream URL
	MetricsAddr string

	// OnClick delivers a click to the player's surface. It reports whether
	// a handler was attached.
	OnClick func() bool

	// Refresh is the redraw interval (default 250ms).
	Refresh time.Duration

	// HistoryLen is the number of points drawn per sparkline (default 40).
	HistoryLen int
}

// Model represents the TUI state.
type Model struct {
	source      SnapshotSource
	target      string
	metricsAddr string
	onClick     func() bool
	refresh     time.Duration
	historyLen  int

	snap       *stats.Snapshot
	startTime  time.Time
	lastUpdate time.Time

	clicks      int
	lastClickOK bool

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	if cfg.Refresh <= 0 {
		cfg.Refresh = 250 * time.Millisecond
	}
	if cfg.HistoryLen <= 0 {
		cfg.HistoryLen = 40
	}
	return Model{
		source:      cfg.Source,
		target:      cfg.Target,
		metricsAddr: cfg.MetricsAddr,
		onClick:     cfg.OnClick,
		refresh:     cfg.Refresh,
		historyLen:  cfg.HistoryLen,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case " ", "c":
			m.clicks++
			m.lastClickOK = m.onClick != nil && m.onClick()
			return m, nil
		case "r":
			m.poll()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.poll()
		return m, m.tickCmd()

	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

func (m *Model) poll() {
	if m.source == nil {
		return
	}
	m.snap = m.source.Snapshot(m.historyLen)
	m.lastUpdate = time.Now()
}

// =============================================================================
// Commands
// =============================================================================

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the session time, from the snapshot when one is held.
func (m Model) Elapsed() time.Duration {
	if m.snap != nil {
		return m.snap.Elapsed
	}
	return time.Since(m.startTime)
}

// Snapshot returns the last snapshot received, or nil.
func (m Model) Snapshot() *stats.Snapshot {
	return m.snap
}

// Clicks returns the number of click keys pressed.
func (m Model) Clicks() int {
	return m.clicks
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
