package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Engine is the playback engine name
	Engine string

	// Source is the stream URL or simulator description
	Source string

	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// ErrorCounts are engine diagnostic pattern counts (ffmpeg stderr)
	ErrorCounts map[string]int

	// Restarts is the number of engine reloads after failures
	Restarts int
}

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
)

// FormatExitSummary formats a recorder snapshot for display at program exit.
func FormatExitSummary(snap *Snapshot, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                          playback-probe Exit Summary\n")
	b.WriteString(ruleHeavy + "\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Engine:                 %s\n", cfg.Engine)
	if cfg.Source != "" {
		fmt.Fprintf(&b, "Source:                 %s\n", cfg.Source)
	}

	if snap == nil {
		b.WriteString("\n(no samples were recorded)\n\n")
		writeFooter(&b, cfg)
		return b.String()
	}

	fmt.Fprintf(&b, "Final State:            %s (%d transitions)\n", snap.State, snap.StateChanges)
	if cfg.Restarts > 0 {
		fmt.Fprintf(&b, "Engine Restarts:        %d\n", cfg.Restarts)
	}
	b.WriteString("\n")

	section(&b, "Playback Health")
	total := snap.StallTicks + snap.ProgressTicks
	if total > 0 {
		fmt.Fprintf(&b, "  Progressing samples:  %d (%d%%)\n", snap.ProgressTicks, snap.ProgressTicks*100/total)
		fmt.Fprintf(&b, "  Stalled samples:      %d (%d%%)\n", snap.StallTicks, snap.StallTicks*100/total)
	} else {
		b.WriteString("  No position samples\n")
	}
	b.WriteString("\n")

	section(&b, "Channels")
	fmt.Fprintf(&b, "  %-18s %8s %12s %12s %12s %12s\n", "Metric", "Samples", "Latest", "P50", "P95", "Max")
	b.WriteString("  " + strings.Repeat("─", 78) + "\n")
	for _, m := range playback.AllMetrics {
		if m == playback.MetricCurrentTime {
			continue
		}
		ch, ok := snap.Channel(m)
		if !ok {
			fmt.Fprintf(&b, "  %-18s %8d %12s %12s %12s %12s\n", m, 0, "-", "-", "-", "-")
			continue
		}
		p50, p95 := "-", "-"
		if ch.Windowed > 0 {
			p50, p95 = FormatValue(m, ch.P50), FormatValue(m, ch.P95)
		}
		fmt.Fprintf(&b, "  %-18s %8s %12s %12s %12s %12s\n",
			m,
			FormatNumber(ch.Count),
			FormatValue(m, ch.Latest),
			p50,
			p95,
			FormatValue(m, ch.Max),
		)
	}
	fmt.Fprintf(&b, "\n  Percentiles cover the last %s.\n\n", snap.Window)

	if len(cfg.ErrorCounts) > 0 {
		section(&b, "Errors")

		patterns := make([]string, 0, len(cfg.ErrorCounts))
		for p := range cfg.ErrorCounts {
			patterns = append(patterns, p)
		}
		sort.Strings(patterns)

		for _, p := range patterns {
			fmt.Fprintf(&b, "  %-22s %d\n", p+":", cfg.ErrorCounts[p])
		}
		b.WriteString("\n")
	}

	writeFooter(&b, cfg)
	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(ruleLight)
	pad := (79 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(ruleLight + "\n")
}

func writeFooter(b *strings.Builder, cfg SummaryConfig) {
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(ruleHeavy)
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatValue formats v in the unit of metric.
func FormatValue(metric playback.Metric, v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	switch metric.Unit() {
	case "bps":
		return FormatBitrate(v)
	case "s":
		return fmt.Sprintf("%.2f s", v)
	case "x":
		return fmt.Sprintf("%.2fx", v)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// FormatBitrate formats bits/second with kbps/Mbps/Gbps suffixes.
func FormatBitrate(bps float64) string {
	switch {
	case bps >= 1e9:
		return fmt.Sprintf("%.2f Gbps", bps/1e9)
	case bps >= 1e6:
		return fmt.Sprintf("%.2f Mbps", bps/1e6)
	case bps >= 1e3:
		return fmt.Sprintf("%.1f kbps", bps/1e3)
	default:
		return fmt.Sprintf("%.0f bps", bps)
	}
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatPercent formats a 0..1 ratio as a percentage.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}
