package logging

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept for the exit summary.
	MaxBufferedLines = 100
)

// LineHandler consumes line-oriented diagnostic output from a child
// process (ffmpeg stderr). Each line is classified and logged, kept in a
// ring of recent lines, and handed to every observer.
type LineHandler struct {
	source    string
	logger    *slog.Logger
	verbose   bool
	observers []func(line string)

	mu     sync.Mutex
	buffer []string
	next   int
	total  int
}

// NewLineHandler creates a handler labelling its log records with source.
func NewLineHandler(source string, logger *slog.Logger, verbose bool, observers ...func(line string)) *LineHandler {
	return &LineHandler{
		source:    source,
		logger:    logger,
		verbose:   verbose,
		observers: observers,
		buffer:    make([]string, MaxBufferedLines),
	}
}

// HandleReader reads r to EOF, handling each line. Run it in a goroutine.
func (h *LineHandler) HandleReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		h.HandleLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		h.logger.Debug("line_reader_stopped", "source", h.source, "error", err)
		// Keep draining so the writer never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

// HandleLine processes a single line.
func (h *LineHandler) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.next] = line
	h.next = (h.next + 1) % MaxBufferedLines
	h.total++
	h.mu.Unlock()

	for _, observe := range h.observers {
		observe(line)
	}

	level := classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}
	h.logger.Log(context.Background(), level, "ffmpeg_stderr",
		"source", h.source,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "[error]") ||
		strings.Contains(lower, "error") && strings.Contains(lower, "failed") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "server returned") {
		return slog.LevelWarn
	}

	if strings.Contains(lower, "[warning]") ||
		strings.Contains(lower, "skip") ||
		strings.Contains(lower, "reconnect") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *LineHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if n > h.total {
		n = h.total
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.next - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}
	return lines
}

// Total returns the number of lines handled.
func (h *LineHandler) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// ErrorPatterns are common failure patterns counted for the exit summary.
var ErrorPatterns = []string{
	"Connection refused",
	"Server returned",
	"[hls] Skip",
	"Reconnecting",
	"timeout",
	"403",
	"404",
	"500",
	"503",
}

// CountErrors counts occurrences of ErrorPatterns in the recent lines.
func (h *LineHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range h.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}
