package session

import (
	"fmt"
	"log/slog"

	"github.com/randomizedcoder/go-playback-probe/internal/binder"
	"github.com/randomizedcoder/go-playback-probe/internal/config"
	"github.com/randomizedcoder/go-playback-probe/internal/engine"
	"github.com/randomizedcoder/go-playback-probe/internal/engine/ffmpeg"
	"github.com/randomizedcoder/go-playback-probe/internal/engine/sim"
	"github.com/randomizedcoder/go-playback-probe/internal/network"
)

// NewEngine builds the engine cfg selects.
func NewEngine(cfg *config.Config, logger *slog.Logger) (engine.Engine, error) {
	switch cfg.Engine {
	case config.EngineSim:
		sc := sim.DefaultConfig()
		sc.Seed = cfg.SimSeed
		sc.Bitrates = cfg.SimBitrates
		sc.SegmentDuration = cfg.SimSegment
		sc.DownloadSpeed = cfg.SimDownloadSpeed
		sc.StallEvery = cfg.SimStallEvery
		sc.StallFor = cfg.SimStallFor
		sc.Tick = cfg.SimTick
		sc.MediaDuration = cfg.SimMediaDuration
		sc.Logger = logger
		return sim.New(sc), nil

	case config.EngineFFmpeg:
		return ffmpeg.New(FFmpegConfig(cfg), logger), nil
	}
	return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
}

// FFmpegConfig maps cfg onto the ffmpeg engine's settings.
func FFmpegConfig(cfg *config.Config) ffmpeg.Config {
	fc := ffmpeg.DefaultConfig(cfg.StreamURL)
	fc.BinaryPath = cfg.FFmpegPath
	fc.UserAgent = cfg.UserAgent
	fc.Timeout = cfg.Timeout
	fc.Realtime = cfg.Realtime
	fc.SegmentHint = cfg.SegmentHint
	fc.Headers = cfg.Headers
	fc.Verbose = cfg.Verbose
	return fc
}

// NewProber builds the bandwidth prober cfg selects, or nil for none.
func NewProber(cfg *config.Config) (binder.BandwidthProber, error) {
	opts := network.ClientOptions{
		UserAgent: cfg.UserAgent,
		Headers:   cfg.Headers,
		Timeout:   cfg.Timeout,
	}

	switch cfg.BandwidthSource {
	case config.BandwidthNone, "":
		return nil, nil
	case config.BandwidthDownload:
		return network.NewDownloadProber(bandwidthTarget(cfg), cfg.BandwidthMaxBytes, opts), nil
	case config.BandwidthExporter:
		return network.NewExporterProber(cfg.ExporterURL, cfg.ExporterDevice, opts), nil
	}
	return nil, fmt.Errorf("unknown bandwidth source %q", cfg.BandwidthSource)
}

// bandwidthTarget is the URL a download probe times.
func bandwidthTarget(cfg *config.Config) string {
	if cfg.BandwidthURL != "" {
		return cfg.BandwidthURL
	}
	return cfg.StreamURL
}
