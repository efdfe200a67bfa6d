package ffmpeg

import (
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the FFmpeg engine.
type Config struct {
	// BinaryPath is the path to the FFmpeg binary.
	BinaryPath string

	// StreamURL is the HLS stream URL to play.
	StreamURL string

	// UserAgent is the HTTP User-Agent header.
	UserAgent string

	// Timeout is the network read/write timeout.
	Timeout time.Duration

	// Realtime reads input at its native rate (-re), the way a viewer
	// consumes it. Without it FFmpeg pulls as fast as the network allows.
	Realtime bool

	// Reconnect enables FFmpeg's reconnection flags.
	Reconnect bool

	// ReconnectDelayMax is the maximum reconnection delay in seconds.
	ReconnectDelayMax int

	// SegmentHint is the media duration of one segment, used to turn
	// segment requests into a buffered-range estimate.
	SegmentHint time.Duration

	// Headers are additional HTTP headers to send.
	Headers []string

	// StatsPeriod is how often FFmpeg writes a progress block.
	StatsPeriod time.Duration

	// Verbose logs every stderr line, not just warnings and errors.
	Verbose bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(streamURL string) Config {
	return Config{
		BinaryPath:        "ffmpeg",
		StreamURL:         streamURL,
		UserAgent:         "playback-probe/1.0",
		Timeout:           15 * time.Second,
		Realtime:          true,
		Reconnect:         true,
		ReconnectDelayMax: 5,
		SegmentHint:       4 * time.Second,
		StatsPeriod:       500 * time.Millisecond,
	}
}

// BuildArgs constructs the FFmpeg command-line arguments.
//
// FFmpeg demuxes the stream and discards it (-c copy -f null), writing
// progress blocks to stdout and request logs to stderr.
func (c Config) BuildArgs() []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "verbose",
		"-progress", "pipe:1",
		"-stats_period", formatSeconds(c.StatsPeriod),
	}

	if c.Realtime {
		args = append(args, "-re")
	}

	// Reconnection flags (must come before -i)
	if c.Reconnect {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_on_network_error", "1",
			"-reconnect_delay_max", strconv.Itoa(c.ReconnectDelayMax),
		)
	}

	// Network timeout (in microseconds)
	if c.Timeout > 0 {
		args = append(args, "-rw_timeout", strconv.FormatInt(c.Timeout.Microseconds(), 10))
	}

	if c.UserAgent != "" {
		args = append(args, "-user_agent", c.UserAgent)
	}

	if len(c.Headers) > 0 {
		args = append(args, "-headers", strings.Join(c.Headers, "\r\n")+"\r\n")
	}

	args = append(args, "-i", c.StreamURL)

	// First video and first audio rendition, like a single-variant viewer.
	args = append(args, "-map", "0:v:0?", "-map", "0:a:0?")

	// Output: copy streams to null (no decode)
	args = append(args, "-c", "copy", "-f", "null", "-")

	return args
}

// CommandString returns the command that would be executed (for debugging).
func (c Config) CommandString() string {
	return c.BinaryPath + " " + strings.Join(c.BuildArgs(), " ")
}

func formatSeconds(d time.Duration) string {
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
