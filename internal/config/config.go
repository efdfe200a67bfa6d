// Package config provides configuration management for playback-probe.
package config

import "time"

// Engine names.
const (
	EngineSim    = "sim"
	EngineFFmpeg = "ffmpeg"
)

// Bandwidth sources.
const (
	BandwidthNone     = "none"
	BandwidthDownload = "download"
	BandwidthExporter = "exporter"
)

// Config holds all configuration options for a probe session.
type Config struct {
	// Engine
	Engine      string        `json:"engine"` // sim, ffmpeg
	StreamURL   string        `json:"stream_url"`
	FFmpegPath  string        `json:"ffmpeg_path"`
	UserAgent   string        `json:"user_agent"`
	Timeout     time.Duration `json:"timeout"`
	Realtime    bool          `json:"realtime"`
	SegmentHint time.Duration `json:"segment_hint"` // media per segment, for ffmpeg buffer estimates
	Headers     []string      `json:"headers"`

	// Restart policy for engine failures
	MaxRestarts    int           `json:"max_restarts"` // 0 = never restart
	BackoffInitial time.Duration `json:"backoff_initial"`
	BackoffMax     time.Duration `json:"backoff_max"`

	// Simulator
	SimSeed          int64         `json:"sim_seed"`
	SimBitrates      []float64     `json:"sim_bitrates"`
	SimSegment       time.Duration `json:"sim_segment"`
	SimDownloadSpeed float64       `json:"sim_download_speed"` // bits/s
	SimStallEvery    time.Duration `json:"sim_stall_every"`    // 0 = never
	SimStallFor      time.Duration `json:"sim_stall_for"`
	SimTick          time.Duration `json:"sim_tick"`
	SimMediaDuration time.Duration `json:"sim_media_duration"` // 0 = live

	// Sampling cadences
	PositionInterval  time.Duration `json:"position_interval"`
	RateInterval      time.Duration `json:"rate_interval"`
	LiveEdgeInterval  time.Duration `json:"live_edge_interval"`
	BandwidthInterval time.Duration `json:"bandwidth_interval"`
	BufferInterval    time.Duration `json:"buffer_interval"`

	// Bandwidth probing
	BandwidthSource   string `json:"bandwidth_source"` // none, download, exporter
	BandwidthURL      string `json:"bandwidth_url"`
	BandwidthMaxBytes int64  `json:"bandwidth_max_bytes"`
	ExporterURL       string `json:"exporter_url"`
	ExporterDevice    string `json:"exporter_device"`

	// Observability
	MetricsAddr   string        `json:"metrics_addr"` // empty = disabled
	Verbose       bool          `json:"verbose"`
	LogFormat     string        `json:"log_format"` // json, text
	TUIEnabled    bool          `json:"tui_enabled"`
	SummaryWindow time.Duration `json:"summary_window"`
	DumpMetrics   bool          `json:"dump_metrics"`

	// Run
	Duration      time.Duration `json:"duration"` // 0 = until signal or end of stream
	PrintCmd      bool          `json:"print_cmd"`
	SkipPreflight bool          `json:"skip_preflight"`
	Check         bool          `json:"check"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine:      EngineSim,
		FFmpegPath:  "ffmpeg",
		UserAgent:   "playback-probe/1.0",
		Timeout:     15 * time.Second,
		Realtime:    true,
		SegmentHint: 4 * time.Second,

		MaxRestarts:    3,
		BackoffInitial: 250 * time.Millisecond,
		BackoffMax:     5 * time.Second,

		SimSeed:          1,
		SimBitrates:      []float64{400_000, 1_200_000, 3_000_000},
		SimSegment:       4 * time.Second,
		SimDownloadSpeed: 8_000_000,
		SimStallEvery:    45 * time.Second,
		SimStallFor:      3 * time.Second,
		SimTick:          100 * time.Millisecond,

		PositionInterval:  1000 * time.Millisecond,
		RateInterval:      1000 * time.Millisecond,
		LiveEdgeInterval:  100 * time.Millisecond,
		BandwidthInterval: 1000 * time.Millisecond,
		BufferInterval:    100 * time.Millisecond,

		BandwidthSource:   BandwidthNone,
		BandwidthMaxBytes: 4 << 20,

		MetricsAddr:   "0.0.0.0:17095",
		LogFormat:     "json",
		TUIEnabled:    false,
		SummaryWindow: 30 * time.Second,
	}
}
