package tui

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

// =============================================================================
// Tests: State Indicator
// =============================================================================

func TestGetStateStyle(t *testing.T) {
	tests := []struct {
		state playback.State
		want  interface{}
	}{
		{playback.StatePlaying, colorSuccess},
		{playback.StateBuffering, colorError},
		{playback.StateLoading, colorWarning},
		{playback.StateLoaded, colorWarning},
		{playback.StatePaused, colorWarning},
		{playback.StateStopped, colorInfo},
		{playback.StateEnded, colorInfo},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := GetStateStyle(tt.state).GetForeground(); got != tt.want {
				t.Errorf("GetStateStyle(%s) foreground = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestGetStateLabel(t *testing.T) {
	if got := GetStateLabel(playback.StateBuffering); !strings.Contains(got, "BUFFERING") {
		t.Errorf("GetStateLabel(BUFFERING) = %q", got)
	}
	if got := GetStateLabel(""); !strings.Contains(got, "STOPPED") {
		t.Errorf("GetStateLabel(\"\") = %q, want STOPPED", got)
	}
}

// =============================================================================
// Tests: Stall and Speed Styles
// =============================================================================

func TestGetStallStyle(t *testing.T) {
	tests := []struct {
		ratio float64
		want  interface{}
	}{
		{0, colorSuccess},
		{0.01, colorWarning},
		{0.049, colorWarning},
		{0.05, colorError},
		{0.5, colorError},
	}

	for _, tt := range tests {
		if got := GetStallStyle(tt.ratio).GetForeground(); got != tt.want {
			t.Errorf("GetStallStyle(%v) foreground = %v, want %v", tt.ratio, got, tt.want)
		}
	}
}

func TestGetSpeedStyle(t *testing.T) {
	tests := []struct {
		speed float64
		want  interface{}
	}{
		{1.5, colorSuccess},
		{1.0, colorSuccess},
		{0.95, colorWarning},
		{0.9, colorWarning},
		{0.5, colorError},
		{0, colorError},
	}

	for _, tt := range tests {
		if got := GetSpeedStyle(tt.speed).GetForeground(); got != tt.want {
			t.Errorf("GetSpeedStyle(%v) foreground = %v, want %v", tt.speed, got, tt.want)
		}
	}
}

// =============================================================================
// Tests: Helper Functions
// =============================================================================

func TestRenderKeyValue(t *testing.T) {
	got := RenderKeyValue("Buffer", "12.00 s")
	if !strings.Contains(got, "Buffer:") || !strings.Contains(got, "12.00 s") {
		t.Errorf("RenderKeyValue() = %q", got)
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		progress float64
		width    int
		percent  string
	}{
		{"empty", 0, 20, "0%"},
		{"half", 0.5, 20, "50%"},
		{"full", 1, 20, "100%"},
		{"over", 1.5, 20, "150%"},
		{"narrow", 0.25, 2, "25%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderProgressBar(tt.progress, tt.width)
			if !strings.Contains(got, tt.percent) {
				t.Errorf("RenderProgressBar(%v, %d) = %q, want %q", tt.progress, tt.width, got, tt.percent)
			}
		})
	}
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		width  int
		want   string
	}{
		{"empty", nil, 10, ""},
		{"flat", []float64{3, 3, 3}, 10, "▁▁▁"},
		{"ramp", []float64{0, 1, 2, 3, 4, 5, 6, 7}, 10, "▁▂▃▄▅▆▇█"},
		{"extremes", []float64{10, 0, 10}, 10, "█▁█"},
		{"truncated to newest", []float64{0, 0, 0, 7}, 2, "▁█"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sparkline(tt.values, tt.width); got != tt.want {
				t.Errorf("Sparkline(%v, %d) = %q, want %q", tt.values, tt.width, got, tt.want)
			}
		})
	}
}

func TestSparkline_Width(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i % 7)
	}
	if got := utf8.RuneCountInString(Sparkline(values, 40)); got != 40 {
		t.Errorf("Sparkline width = %d, want 40", got)
	}
}

func TestRepeatChar(t *testing.T) {
	if got := repeatChar('x', 3); got != "xxx" {
		t.Errorf("repeatChar('x', 3) = %q", got)
	}
	if got := repeatChar('x', -1); got != "" {
		t.Errorf("repeatChar('x', -1) = %q", got)
	}
}
