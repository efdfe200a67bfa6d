// Package session wires one probe run: an engine, the instrumentation binder,
// the metrics sinks and the optional dashboard.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-playback-probe/internal/binder"
	"github.com/randomizedcoder/go-playback-probe/internal/config"
	"github.com/randomizedcoder/go-playback-probe/internal/engine"
	"github.com/randomizedcoder/go-playback-probe/internal/metrics"
	"github.com/randomizedcoder/go-playback-probe/internal/playback"
	"github.com/randomizedcoder/go-playback-probe/internal/preflight"
	"github.com/randomizedcoder/go-playback-probe/internal/stats"
	"github.com/randomizedcoder/go-playback-probe/internal/tui"
)

const shutdownTimeout = 10 * time.Second

// Option configures a Session.
type Option func(*Session)

// WithVersion sets the version reported by the info metric.
func WithVersion(v string) Option {
	return func(s *Session) { s.version = v }
}

// WithOutput sets where preflight results, the summary and the metrics dump
// are written (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(s *Session) {
		if w != nil {
			s.out = w
		}
	}
}

// WithEngine replaces the engine built from the config.
func WithEngine(e engine.Engine) Option {
	return func(s *Session) { s.engine = e }
}

// WithProber replaces the bandwidth prober built from the config.
func WithProber(p binder.BandwidthProber) Option {
	return func(s *Session) { s.prober = p }
}

// Session coordinates all components of a probe run.
type Session struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string
	out     io.Writer

	engine    engine.Engine
	prober    binder.BandwidthProber
	registry  *prometheus.Registry
	collector *metrics.Collector
	recorder  *stats.Recorder
	server    *metrics.Server

	restarts  atomic.Int32
	startTime time.Time
}

// New creates a Session from cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:    cfg,
		logger: logger,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.engine == nil {
		e, err := NewEngine(cfg, logger)
		if err != nil {
			return nil, err
		}
		s.engine = e
	}
	if s.prober == nil {
		p, err := NewProber(cfg)
		if err != nil {
			return nil, err
		}
		if p != nil {
			s.prober = p
		}
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version: s.version,
		Engine:  cfg.Engine,
		Source:  s.engine.Describe(),
	}, s.registry)
	s.recorder = stats.NewRecorder(stats.RecorderConfig{Window: cfg.SummaryWindow})

	if cfg.MetricsAddr != "" {
		s.server = metrics.NewServer(cfg.MetricsAddr, s.registry, logger)
	}
	return s, nil
}

// Run executes the session. It blocks until a signal, the configured
// duration, the end of the stream, the dashboard quitting or ctx.
func (s *Session) Run(ctx context.Context) error {
	s.startTime = time.Now()

	if !s.cfg.SkipPreflight {
		result := preflight.RunAll(s.preflightOptions())
		preflight.PrintResults(s.out, result)
		if !result.Passed {
			return errors.New("preflight checks failed (use --skip-preflight to override)")
		}
	}

	removeState := s.engine.AddEventListener(playback.EventPlayerStateChange, s.onStateChange)
	defer removeState()

	if s.server != nil {
		if err := s.server.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	teardown := binder.Bind(s.engine, s.engine, s.bindOptions()...)
	if s.server != nil {
		s.server.SetReady(true)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var durationTimer <-chan time.Time
	if s.cfg.Duration > 0 {
		durationTimer = time.After(s.cfg.Duration)
	}

	engineDone := make(chan error, 1)
	if err := s.engine.Load(); err != nil {
		engineDone <- fmt.Errorf("load engine: %w", err)
	} else {
		s.logger.Info("engine_loaded", "engine", s.cfg.Engine, "source", s.engine.Describe())
		go func() { engineDone <- s.runEngine(ctx) }()
	}

	var program *tea.Program
	tuiDone := make(chan error, 1)
	if s.cfg.TUIEnabled {
		program = tea.NewProgram(tui.New(tui.Config{
			Source:      s.recorder,
			Target:      s.engine.Describe(),
			MetricsAddr: s.cfg.MetricsAddr,
			OnClick:     s.engine.Click,
		}), tea.WithAltScreen())
		go func() {
			_, err := program.Run()
			tuiDone <- err
		}()
	}

	var runErr error
	engineFinished := false
	select {
	case sig := <-sigCh:
		s.logger.Info("received_signal", "signal", sig.String())
	case <-durationTimer:
		s.logger.Info("duration_elapsed", "duration", s.cfg.Duration.String())
	case runErr = <-engineDone:
		engineFinished = true
		s.logger.Info("engine_finished", "state", s.engine.State().String(), "error", runErr)
	case err := <-tuiDone:
		program = nil
		s.logger.Info("tui_quit", "error", err)
	case <-ctx.Done():
		s.logger.Info("context_cancelled")
	}

	cancel()
	if !engineFinished {
		runErr = <-engineDone
	}
	if program != nil {
		tui.SendQuit(program)
		<-tuiDone
	}

	if state := s.engine.State(); state != playback.StateStopped {
		if err := s.engine.Stop(); err != nil && !errors.Is(err, engine.ErrInvalidTransition) {
			s.logger.Warn("engine_stop_failed", "error", err)
		}
	}
	teardown()

	s.shutdownServer()
	s.printExitSummary()

	if s.cfg.DumpMetrics {
		if err := metrics.WriteText(s.out, s.registry); err != nil {
			s.logger.Warn("metrics_dump_failed", "error", err)
		}
	}

	return runErr
}

// runEngine runs the engine until it ends or ctx is done, reloading it after
// failures per the restart policy. A cancelled ctx is not an error.
func (s *Session) runEngine(ctx context.Context) error {
	backoff := NewBackoff(s.cfg.SimSeed, BackoffConfig{
		Initial:    s.cfg.BackoffInitial,
		Max:        s.cfg.BackoffMax,
		Multiplier: DefaultBackoffConfig().Multiplier,
		JitterPct:  DefaultBackoffConfig().JitterPct,
	})

	started := time.Now()
	err := s.engine.Run(ctx)
	for {
		if err == nil || ctx.Err() != nil {
			return nil
		}

		restarts := int(s.restarts.Load())
		if restarts >= s.cfg.MaxRestarts {
			if restarts == 0 {
				return err
			}
			return fmt.Errorf("engine failed after %d restarts: %w", restarts, err)
		}

		if ShouldReset(time.Since(started)) {
			backoff.Reset()
		}
		delay := backoff.Next()
		s.logger.Warn("engine_restart_scheduled",
			"attempt", restarts+1,
			"delay", delay.String(),
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		s.restarts.Add(1)
		s.collector.EngineRestarted()

		started = time.Now()
		if err = s.engine.Load(); err == nil {
			err = s.engine.Run(ctx)
		}
	}
}

func (s *Session) onStateChange(n playback.Notification) {
	s.collector.SetPlayerState(n.State)
	s.recorder.SetPlayerState(n.State)
	if s.cfg.Verbose {
		s.logger.Debug("player_state", "state", n.State.String())
	}
}

func (s *Session) bindOptions() []binder.Option {
	opts := []binder.Option{
		binder.WithSink(binder.Fanout{s.collector, s.recorder}),
		binder.WithLogger(s.logger),
		binder.WithIntervals(binder.Intervals{
			Position:     s.cfg.PositionInterval,
			PlaybackRate: s.cfg.RateInterval,
			LiveEdge:     s.cfg.LiveEdgeInterval,
			Bandwidth:    s.cfg.BandwidthInterval,
			BufferSize:   s.cfg.BufferInterval,
		}),
	}
	if s.prober != nil {
		opts = append(opts, binder.WithProber(s.prober))
	}
	return opts
}

func (s *Session) preflightOptions() preflight.Options {
	opts := preflight.Options{MetricsAddr: s.cfg.MetricsAddr}
	if s.cfg.Engine == config.EngineFFmpeg {
		opts.FFmpegPath = s.cfg.FFmpegPath
	}
	switch s.cfg.BandwidthSource {
	case config.BandwidthDownload:
		opts.BandwidthURL = bandwidthTarget(s.cfg)
	case config.BandwidthExporter:
		opts.ExporterURL = s.cfg.ExporterURL
	}
	return opts
}

func (s *Session) shutdownServer() {
	if s.server == nil {
		return
	}
	s.server.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

// printExitSummary prints a summary of the session.
func (s *Session) printExitSummary() {
	cfg := stats.SummaryConfig{
		Engine:      s.cfg.Engine,
		Source:      s.engine.Describe(),
		Duration:    time.Since(s.startTime),
		MetricsAddr: s.cfg.MetricsAddr,
		Restarts:    s.Restarts(),
	}
	if ec, ok := s.engine.(interface{ ErrorCounts() map[string]int }); ok {
		cfg.ErrorCounts = ec.ErrorCounts()
	}
	fmt.Fprint(s.out, stats.FormatExitSummary(s.recorder.Snapshot(0), cfg))
}

// Engine returns the session's engine.
func (s *Session) Engine() engine.Engine {
	return s.engine
}

// Recorder returns the session statistics.
func (s *Session) Recorder() *stats.Recorder {
	return s.recorder
}

// Registry returns the session's metrics registry.
func (s *Session) Registry() *prometheus.Registry {
	return s.registry
}

// Restarts returns the number of engine reloads so far.
func (s *Session) Restarts() int {
	return int(s.restarts.Load())
}
