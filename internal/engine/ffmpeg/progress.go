package ffmpeg

// FFmpeg's -progress pipe:1 output is a series of key=value lines, each
// block terminated by "progress=continue" or "progress=end":
//
//	frame=0
//	bitrate=512.0kbits/s
//	total_size=51324
//	out_time_us=2000000
//	speed=1.00x
//	progress=continue
//
// Live HLS input reports total_size=N/A.

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Progress is one progress block.
type Progress struct {
	// Bitrate is the output bitrate in bits/s, 0 when FFmpeg reports N/A.
	Bitrate float64

	// TotalSize is cumulative output bytes, 0 when N/A.
	TotalSize int64

	// OutTime is the media position reached.
	OutTime time.Duration

	// Speed is media time over wall time (1.0 = realtime), 0 when N/A.
	Speed float64

	// Status is "continue" or "end".
	Status string
}

// IsEnd returns true if this is the final progress block.
func (p Progress) IsEnd() bool {
	return p.Status == "end"
}

// ProgressParser accumulates progress lines into blocks.
// Safe for use from multiple goroutines.
type ProgressParser struct {
	callback func(Progress)

	mu      sync.Mutex
	current Progress
	blocks  int64
	lines   int64
}

// NewProgressParser creates a parser calling cb once per complete block.
func NewProgressParser(cb func(Progress)) *ProgressParser {
	return &ProgressParser{callback: cb}
}

// ParseLine handles a single line of progress output.
func (p *ProgressParser) ParseLine(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}

	p.mu.Lock()
	p.lines++

	switch key {
	case "bitrate":
		p.current.Bitrate = parseBitrate(value)

	case "total_size":
		p.current.TotalSize, _ = strconv.ParseInt(value, 10, 64)

	case "out_time_us":
		us, err := strconv.ParseInt(value, 10, 64)
		if err == nil && us >= 0 {
			p.current.OutTime = time.Duration(us) * time.Microsecond
		}

	case "speed":
		p.current.Speed = parseSpeed(value)

	case "progress":
		p.current.Status = value
		block := p.current
		p.current = Progress{}
		p.blocks++
		p.mu.Unlock()

		if p.callback != nil {
			p.callback(block)
		}
		return
	}
	p.mu.Unlock()
}

// Stats returns parser statistics.
func (p *ProgressParser) Stats() (blocks, lines int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blocks, p.lines
}

// parseSpeed converts an FFmpeg speed string ("1.00x", "N/A") to float64.
func parseSpeed(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "x"))
	if s == "N/A" || s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// parseBitrate converts an FFmpeg bitrate string ("512.0kbits/s", "N/A")
// to bits/s.
func parseBitrate(s string) float64 {
	s = strings.TrimSpace(s)
	scale := 1.0
	switch {
	case strings.HasSuffix(s, "kbits/s"):
		s, scale = strings.TrimSuffix(s, "kbits/s"), 1e3
	case strings.HasSuffix(s, "Mbits/s"):
		s, scale = strings.TrimSuffix(s, "Mbits/s"), 1e6
	case strings.HasSuffix(s, "bits/s"):
		s = strings.TrimSuffix(s, "bits/s")
	default:
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f * scale
}
