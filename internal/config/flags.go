package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// headerList is a custom flag type for repeatable -header flags.
type headerList []string

func (h *headerList) String() string {
	return strings.Join(*h, ", ")
}

func (h *headerList) Set(value string) error {
	*h = append(*h, value)
	return nil
}

// bitrateList is a comma-separated list of bits/second values.
type bitrateList []float64

func (b *bitrateList) String() string {
	parts := make([]string, len(*b))
	for i, v := range *b {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (b *bitrateList) Set(value string) error {
	var out []float64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return fmt.Errorf("invalid bitrate %q: %w", part, err)
		}
		out = append(out, v)
	}
	*b = out
	return nil
}

// ParseFlags parses the process command line and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(flag.CommandLine, os.Args[1:])
}

// ParseArgs registers every flag on fs, parses args and returns a Config.
func ParseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := DefaultConfig()
	var headers headerList
	bitrates := bitrateList(cfg.SimBitrates)

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, `playback-probe - playback-health instrumentation for a live HLS player

Usage:
  playback-probe [flags] [HLS_URL]

Engine Flags:
`)
		printFlagCategory(fs, []string{"engine", "ffmpeg", "user-agent", "timeout", "realtime", "segment-hint", "header"})

		fmt.Fprintf(out, "\nRestart Policy:\n")
		printFlagCategory(fs, []string{"max-restarts", "backoff-initial", "backoff-max"})

		fmt.Fprintf(out, "\nSimulator:\n")
		printFlagCategory(fs, []string{"sim-seed", "sim-bitrates", "sim-segment", "sim-download-speed",
			"sim-stall-every", "sim-stall-for", "sim-tick", "sim-media-duration"})

		fmt.Fprintf(out, "\nSampling:\n")
		printFlagCategory(fs, []string{"position-interval", "rate-interval", "live-edge-interval",
			"bandwidth-interval", "buffer-interval"})

		fmt.Fprintf(out, "\nBandwidth Probing:\n")
		printFlagCategory(fs, []string{"bandwidth-source", "bandwidth-url", "bandwidth-max-bytes",
			"exporter-url", "exporter-device"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, []string{"metrics", "v", "log-format", "tui", "summary-window", "dump-metrics"})

		fmt.Fprintf(out, "\nRun & Diagnostics:\n")
		printFlagCategory(fs, []string{"duration", "print-cmd", "skip-preflight", "check"})

		fmt.Fprintf(out, `
Flag Convention:
  Single-dash flags (-engine, -metrics) are normal options.
  Double-dash flags (--check, --print-cmd) are diagnostic modes.

Examples:
  # Deterministic simulated player with the live dashboard
  playback-probe -tui

  # Watch a real stream through ffmpeg, probing bandwidth by download
  playback-probe -engine ffmpeg -bandwidth-source download \
    https://test-streams.mux.dev/x36xhzz/x36xhzz.m3u8

`)
	}

	// Engine
	fs.StringVar(&cfg.Engine, "engine", cfg.Engine, `Playback engine: "sim" or "ffmpeg"`)
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "Path to FFmpeg binary")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "HTTP User-Agent header")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Network read/write timeout")
	fs.BoolVar(&cfg.Realtime, "realtime", cfg.Realtime, "Read input at native rate (ffmpeg -re)")
	fs.DurationVar(&cfg.SegmentHint, "segment-hint", cfg.SegmentHint, "Media duration per segment, for ffmpeg buffer estimates")
	fs.Var(&headers, "header", "Add custom HTTP header (can repeat)")

	// Restart policy
	fs.IntVar(&cfg.MaxRestarts, "max-restarts", cfg.MaxRestarts, "Reload the engine this many times after a failure (0 = never)")
	fs.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "Initial restart delay")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum restart delay")

	// Simulator
	fs.Int64Var(&cfg.SimSeed, "sim-seed", cfg.SimSeed, "Simulator random seed")
	fs.Var(&bitrates, "sim-bitrates", "Simulated bitrate ladder in bits/s, comma separated")
	fs.DurationVar(&cfg.SimSegment, "sim-segment", cfg.SimSegment, "Simulated segment duration")
	fs.Float64Var(&cfg.SimDownloadSpeed, "sim-download-speed", cfg.SimDownloadSpeed, "Simulated network speed in bits/s")
	fs.DurationVar(&cfg.SimStallEvery, "sim-stall-every", cfg.SimStallEvery, "Inject a stall this often (0 = never)")
	fs.DurationVar(&cfg.SimStallFor, "sim-stall-for", cfg.SimStallFor, "Length of each injected stall")
	fs.DurationVar(&cfg.SimTick, "sim-tick", cfg.SimTick, "Simulator clock step")
	fs.DurationVar(&cfg.SimMediaDuration, "sim-media-duration", cfg.SimMediaDuration, "Simulated VOD length (0 = live stream)")

	// Sampling
	fs.DurationVar(&cfg.PositionInterval, "position-interval", cfg.PositionInterval, "Position staleness sampling interval")
	fs.DurationVar(&cfg.RateInterval, "rate-interval", cfg.RateInterval, "Playback rate sampling interval")
	fs.DurationVar(&cfg.LiveEdgeInterval, "live-edge-interval", cfg.LiveEdgeInterval, "Live edge sampling interval")
	fs.DurationVar(&cfg.BandwidthInterval, "bandwidth-interval", cfg.BandwidthInterval, "Bandwidth probe interval")
	fs.DurationVar(&cfg.BufferInterval, "buffer-interval", cfg.BufferInterval, "Buffer size sampling interval")

	// Bandwidth
	fs.StringVar(&cfg.BandwidthSource, "bandwidth-source", cfg.BandwidthSource,
		`Bandwidth estimate source: "none", "download" or "exporter"`)
	fs.StringVar(&cfg.BandwidthURL, "bandwidth-url", cfg.BandwidthURL,
		"URL to time for -bandwidth-source=download (defaults to the stream URL)")
	fs.Int64Var(&cfg.BandwidthMaxBytes, "bandwidth-max-bytes", cfg.BandwidthMaxBytes,
		"Stop each download probe after this many bytes (0 = whole body)")
	fs.StringVar(&cfg.ExporterURL, "exporter-url", cfg.ExporterURL,
		"node_exporter URL for -bandwidth-source=exporter (e.g., http://10.177.0.10:9100/metrics)")
	fs.StringVar(&cfg.ExporterDevice, "exporter-device", cfg.ExporterDevice,
		"Network device to read (empty = sum of all non-loopback devices)")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.DurationVar(&cfg.SummaryWindow, "summary-window", cfg.SummaryWindow, "Rolling window for percentiles")
	fs.BoolVar(&cfg.DumpMetrics, "dump-metrics", cfg.DumpMetrics, "Print the final Prometheus metrics on exit")

	// Run & diagnostics (double-dash convention)
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Run duration (0 = until signal or end of stream)")
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print FFmpeg command and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config and run for 10 seconds")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Headers = headers
	cfg.SimBitrates = bitrates

	// Positional argument: stream URL
	if rest := fs.Args(); len(rest) >= 1 {
		cfg.StreamURL = rest[0]
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, names []string) {
	out := fs.Output()
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		printFlag(out, f)
	}
}

func printFlag(out io.Writer, f *flag.Flag) {
	fmt.Fprintf(out, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
	if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
		fmt.Fprintf(out, " (default %s)", f.DefValue)
	}
	fmt.Fprintln(out)
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if strings.Contains(f.DefValue, ",") {
		return "list"
	}

	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := strconv.ParseInt(f.DefValue, 10, 64); err == nil {
		return "int"
	}
	if _, err := strconv.ParseFloat(f.DefValue, 64); err == nil {
		return "float"
	}

	return "string"
}
