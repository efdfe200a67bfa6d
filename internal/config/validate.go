package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined into one error.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch cfg.Engine {
	case EngineSim, EngineFFmpeg:
	default:
		add("engine", "must be 'sim' or 'ffmpeg' (got %q)", cfg.Engine)
	}

	// The ffmpeg engine needs something to play (unless only printing the command)
	if cfg.Engine == EngineFFmpeg && cfg.StreamURL == "" && !cfg.PrintCmd {
		add("stream_url", "HLS stream URL is required for the ffmpeg engine")
	}
	if cfg.StreamURL != "" {
		if err := validateURL(cfg.StreamURL); err != nil {
			add("stream_url", "%s", err)
		}
	}

	if cfg.Timeout <= 0 {
		add("timeout", "must be positive")
	}
	if cfg.Engine == EngineFFmpeg && cfg.SegmentHint <= 0 {
		add("segment_hint", "must be positive")
	}

	if cfg.MaxRestarts < 0 {
		add("max_restarts", "must not be negative")
	}
	if cfg.MaxRestarts > 0 {
		if cfg.BackoffInitial <= 0 {
			add("backoff_initial", "must be positive")
		}
		if cfg.BackoffMax < cfg.BackoffInitial {
			add("backoff_max", "must be at least backoff_initial (%v)", cfg.BackoffInitial)
		}
	}

	for _, h := range cfg.Headers {
		if !strings.Contains(h, ":") {
			add("header", "must be in 'Name: value' form (got %q)", h)
		}
	}

	if cfg.Engine == EngineSim {
		validateSim(cfg, add)
	}

	intervals := []struct {
		field string
		value time.Duration
	}{
		{"position_interval", cfg.PositionInterval},
		{"rate_interval", cfg.RateInterval},
		{"live_edge_interval", cfg.LiveEdgeInterval},
		{"bandwidth_interval", cfg.BandwidthInterval},
		{"buffer_interval", cfg.BufferInterval},
	}
	for _, iv := range intervals {
		if iv.value <= 0 {
			add(iv.field, "must be positive")
		}
	}

	switch cfg.BandwidthSource {
	case BandwidthNone:
	case BandwidthDownload:
		target := cfg.BandwidthURL
		if target == "" {
			target = cfg.StreamURL
		}
		if target == "" {
			add("bandwidth_url", "required for -bandwidth-source=download when no stream URL is given")
		} else if err := validateURL(target); err != nil {
			add("bandwidth_url", "%s", err)
		}
		if cfg.BandwidthMaxBytes < 0 {
			add("bandwidth_max_bytes", "must not be negative")
		}
	case BandwidthExporter:
		if cfg.ExporterURL == "" {
			add("exporter_url", "required for -bandwidth-source=exporter")
		} else if err := validateURL(cfg.ExporterURL); err != nil {
			add("exporter_url", "%s", err)
		}
	default:
		add("bandwidth_source", "must be one of: none, download, exporter (got %q)", cfg.BandwidthSource)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		add("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}

	const minWindow = time.Second
	if cfg.SummaryWindow < minWindow {
		add("summary_window", "must be at least %v (got %v)", minWindow, cfg.SummaryWindow)
	}

	if cfg.Duration < 0 {
		add("duration", "must not be negative")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateSim(cfg *Config, add func(field, format string, args ...any)) {
	if len(cfg.SimBitrates) == 0 {
		add("sim_bitrates", "must list at least one bitrate")
	}
	for _, b := range cfg.SimBitrates {
		if b <= 0 {
			add("sim_bitrates", "bitrates must be positive (got %v)", b)
			break
		}
	}
	if cfg.SimSegment <= 0 {
		add("sim_segment", "must be positive")
	}
	if cfg.SimDownloadSpeed <= 0 {
		add("sim_download_speed", "must be positive")
	}
	if cfg.SimTick <= 0 {
		add("sim_tick", "must be positive")
	}
	if cfg.SimStallEvery < 0 {
		add("sim_stall_every", "must not be negative")
	}
	if cfg.SimStallFor < 0 {
		add("sim_stall_for", "must not be negative")
	}
	if cfg.SimStallEvery > 0 && cfg.SimStallFor >= cfg.SimStallEvery {
		add("sim_stall_for", "must be shorter than -sim-stall-every (%v)", cfg.SimStallEvery)
	}
	if cfg.SimMediaDuration < 0 {
		add("sim_media_duration", "must not be negative")
	}
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}

// ApplyCheckMode modifies config for --check mode.
func ApplyCheckMode(cfg *Config) {
	cfg.Duration = 10 * time.Second
	cfg.Verbose = true
	cfg.TUIEnabled = false
}
