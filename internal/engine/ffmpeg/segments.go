package ffmpeg

// FFmpeg logs HLS requests on stderr at verbose level:
//
//	[hls @ 0x55f8a1b2c3d0] Opening 'http://10.177.0.10:17080/stream.m3u8' for reading
//	[hls @ 0x55f8a1b2c3d0] Opening 'http://10.177.0.10:17080/seg00123.ts' for reading
//	[http @ 0x55f8a1b2c3e0] Server returned 503 Service Unavailable
//	Reconnecting to http://example.com

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// URLType identifies the type of URL being requested.
type URLType int

const (
	URLTypeUnknown  URLType = iota // Unrecognized URL pattern (fallback bucket)
	URLTypeManifest                // .m3u8 playlist
	URLTypeSegment                 // .ts / .m4s media segment
	URLTypeInit                    // .mp4 init segment (fMP4)
)

// String returns a human-readable name for the URL type.
func (t URLType) String() string {
	switch t {
	case URLTypeManifest:
		return "manifest"
	case URLTypeSegment:
		return "segment"
	case URLTypeInit:
		return "init"
	default:
		return "unknown"
	}
}

var (
	// Opening 'http://example.com/stream.m3u8' for reading
	reOpening = regexp.MustCompile(`Opening '([^']+)' for reading`)

	// Server returned 404 Not Found
	reHTTPErr = regexp.MustCompile(`Server returned (\d{3})`)

	// Reconnecting to http://example.com
	reReconn = regexp.MustCompile(`Reconnecting`)
)

// SegmentStats counts HLS requests seen on stderr.
type SegmentStats struct {
	Manifests     int64
	Segments      int64
	Inits         int64
	Unknown       int64
	Reconnections int64
	HTTPErrors    map[int]int64
	LastSegment   string
}

// SegmentTracker counts HLS requests from FFmpeg stderr lines.
// Safe for use from multiple goroutines.
type SegmentTracker struct {
	mu    sync.Mutex
	stats SegmentStats
}

// NewSegmentTracker creates an empty tracker.
func NewSegmentTracker() *SegmentTracker {
	return &SegmentTracker{stats: SegmentStats{HTTPErrors: make(map[int]int64)}}
}

// ParseLine handles a single stderr line.
func (t *SegmentTracker) ParseLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m := reOpening.FindStringSubmatch(line); m != nil {
		switch classifyURL(m[1]) {
		case URLTypeManifest:
			t.stats.Manifests++
		case URLTypeSegment:
			t.stats.Segments++
			t.stats.LastSegment = m[1]
		case URLTypeInit:
			t.stats.Inits++
		default:
			t.stats.Unknown++
		}
		return
	}

	if m := reHTTPErr.FindStringSubmatch(line); m != nil {
		code, _ := strconv.Atoi(m[1])
		t.stats.HTTPErrors[code]++
		return
	}

	if reReconn.MatchString(line) {
		t.stats.Reconnections++
	}
}

// Reset clears every counter.
func (t *SegmentTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = SegmentStats{HTTPErrors: make(map[int]int64)}
}

// Segments returns the number of media segments requested.
func (t *SegmentTracker) Segments() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats.Segments
}

// Stats returns a copy of the counters.
func (t *SegmentTracker) Stats() SegmentStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.stats
	out.HTTPErrors = make(map[int]int64, len(t.stats.HTTPErrors))
	for k, v := range t.stats.HTTPErrors {
		out.HTTPErrors[k] = v
	}
	return out
}

// classifyURL determines the type of URL from its path extension,
// ignoring any query string.
func classifyURL(url string) URLType {
	path := strings.ToLower(url)
	if idx := strings.Index(path, "?"); idx > 0 {
		path = path[:idx]
	}

	switch {
	case strings.HasSuffix(path, ".m3u8"):
		return URLTypeManifest
	case strings.HasSuffix(path, ".ts"), strings.HasSuffix(path, ".m4s"),
		strings.HasSuffix(path, ".aac"):
		return URLTypeSegment
	case strings.HasSuffix(path, ".mp4"):
		return URLTypeInit
	default:
		return URLTypeUnknown
	}
}
