package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-playback-probe/internal/playback"
	"github.com/randomizedcoder/go-playback-probe/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderDashboard() string {
	sections := []string{m.renderHeader()}

	if m.snap == nil {
		sections = append(sections, boxStyle.Width(m.width-2).Render(
			mutedStyle.Render("Waiting for samples..."),
		))
	} else {
		sections = append(sections,
			m.renderHealth(),
			m.renderChannels(),
			m.renderHistory(),
		)
	}

	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	state := playback.StateStopped
	if m.snap != nil && m.snap.State != "" {
		state = m.snap.State
	}

	header := fmt.Sprintf(
		" playback-probe │ %s │ Elapsed: %s ",
		GetStateLabel(state),
		stats.FormatDuration(m.Elapsed()),
	)
	if m.metricsAddr != "" {
		header += fmt.Sprintf("│ Metrics: %s ", m.metricsAddr)
	}

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Playback Health
// =============================================================================

func (m Model) renderHealth() string {
	s := m.snap
	ratio := s.StallRatio()

	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}

	var stall string
	switch {
	case !s.State.IsActive():
		stall = mutedStyle.Render("- Idle")
	case s.Stalled():
		stall = statusError.Render("✗ Stalled")
	default:
		stall = statusOK.Render("✓ Progressing")
	}

	rate := "-"
	if ch, ok := s.Channel(playback.MetricPlaybackRate); ok {
		rate = GetSpeedStyle(ch.Latest).Render(stats.FormatValue(playback.MetricPlaybackRate, ch.Latest))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Playback Health"),
		RenderKeyValue("Position", stall),
		RenderKeyValue("Playback rate", rate),
		RenderKeyValue("State changes", stats.FormatNumber(int64(s.StateChanges))),
		RenderKeyValue("Stalled samples", GetStallStyle(ratio).Render(
			fmt.Sprintf("%s of %s", stats.FormatPercent(ratio), stats.FormatNumber(s.StallTicks+s.ProgressTicks)),
		)),
		RenderProgressBar(ratio, barWidth),
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Per-channel Table
// =============================================================================

const colWidth = 12

func (m Model) renderChannels() string {
	header := tableHeaderStyle.Render(fmt.Sprintf("%-18s%*s%*s%*s%*s%*s%*s",
		"Channel",
		colWidth, "Latest",
		colWidth, "Min",
		colWidth, "Max",
		colWidth, "p50",
		colWidth, "p95",
		8, "Count",
	))

	rows := []string{sectionHeaderStyle.Render("Channels"), header}
	for _, metric := range playback.AllMetrics {
		if metric == playback.MetricCurrentTime {
			continue
		}
		rows = append(rows, renderChannelRow(m.snap, metric))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderChannelRow(s *stats.Snapshot, metric playback.Metric) string {
	ch, ok := s.Channel(metric)
	if !ok {
		return dimStyle.Render(fmt.Sprintf("%-18s%*s", metric.String(), colWidth, "-"))
	}

	cell := func(v float64) string {
		return fmt.Sprintf("%*s", colWidth, stats.FormatValue(metric, v))
	}
	p50, p95 := fmt.Sprintf("%*s", colWidth, "-"), fmt.Sprintf("%*s", colWidth, "-")
	if ch.Windowed > 0 {
		p50, p95 = cell(ch.P50), cell(ch.P95)
	}

	return fmt.Sprintf("%-18s%s%s%s%s%s%*s",
		metric.String(),
		valueStyle.Render(cell(ch.Latest)),
		cell(ch.Min),
		cell(ch.Max),
		p50,
		p95,
		8, stats.FormatNumber(ch.Count),
	)
}

// =============================================================================
// History
// =============================================================================

func (m Model) renderHistory() string {
	width := m.width - 24
	if width < 10 {
		width = 10
	}

	rows := []string{sectionHeaderStyle.Render("History")}
	for _, metric := range []playback.Metric{
		playback.MetricBufferSize,
		playback.MetricBandwidth,
		playback.MetricVideoBitrate,
		playback.MetricPlaybackRate,
	} {
		ch, ok := m.snap.Channel(metric)
		if !ok || len(ch.History) == 0 {
			continue
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render(metric.String()),
			sparkStyle.Render(Sparkline(ch.History, width)),
		))
	}
	if len(rows) == 1 {
		rows = append(rows, mutedStyle.Render("No history yet"))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"space: click",
		"r: refresh",
	}
	if m.clicks > 0 && !m.lastClickOK {
		shortcuts = append(shortcuts, statusWarning.Render("click ignored"))
	}

	target := m.target
	maxLen := m.width - 50
	if len(target) > maxLen && maxLen > 10 {
		target = target[:maxLen-3] + "..."
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := dimStyle.Render("Playing: " + target)

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
