// Package main provides the playback-probe CLI entry point.
//
// playback-probe plays a single HLS stream (or a simulated one) and exports
// the player's health as Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-playback-probe/internal/config"
	"github.com/randomizedcoder/go-playback-probe/internal/logging"
	"github.com/randomizedcoder/go-playback-probe/internal/session"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/playback-probe
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("playback-probe %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// The dashboard owns the terminal, so logs are dropped while it runs.
	var logger *slog.Logger
	if cfg.TUIEnabled && !cfg.Check {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.Check {
		config.ApplyCheckMode(cfg)
		logger.Info("check_mode_enabled", "engine", cfg.Engine, "duration", cfg.Duration)
	}

	if cfg.PrintCmd {
		if cfg.Engine != config.EngineFFmpeg {
			fmt.Fprintln(os.Stderr, "--print-cmd requires -engine ffmpeg")
			return 1
		}
		fmt.Println("# FFmpeg command that would be run:")
		fmt.Println()
		fmt.Println(session.FFmpegConfig(cfg).CommandString())
		return 0
	}

	logger.Info("starting",
		"version", version,
		"engine", cfg.Engine,
		"stream_url", cfg.StreamURL,
		"bandwidth_source", cfg.BandwidthSource,
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	s, err := session.New(cfg, logger, session.WithVersion(version))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := s.Run(context.Background()); err != nil {
		logger.Error("session_failed", "error", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        playback-probe                             ║")
	fmt.Println("║        Player Instrumentation for HLS Playback Health             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Engine:      %s\n", cfg.Engine)
	if cfg.Engine == config.EngineFFmpeg {
		fmt.Printf("  Stream:      %s\n", cfg.StreamURL)
	} else {
		fmt.Printf("  Seed:        %d\n", cfg.SimSeed)
	}
	if cfg.BandwidthSource != "" && cfg.BandwidthSource != config.BandwidthNone {
		fmt.Printf("  Bandwidth:   %s\n", cfg.BandwidthSource)
	}
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.Duration > 0 {
		fmt.Printf("  Duration:    %s\n", cfg.Duration)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
