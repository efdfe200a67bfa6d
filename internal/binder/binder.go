// Package binder attaches playback-health instrumentation to a running
// player session.
//
// A binder subscribes to the player's bitrate and state notifications,
// runs five independent periodic samplers against the media surface
// (position staleness, playback rate, live edge, bandwidth, buffer size),
// forwards every sample to a Sink, and returns a single teardown function
// that releases all of it exactly once.
//
// Usage:
//
//	teardown := binder.Bind(player, surface,
//	    binder.WithSink(sink),
//	    binder.WithProber(prober),
//	    binder.WithLogger(logger),
//	)
//	defer teardown()
package binder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

// Player is the playback engine the binder listens to.
type Player interface {
	// AddEventListener registers h and returns a disposer that removes it.
	AddEventListener(event playback.Event, h playback.Handler) (remove func())
	State() playback.State
	Play() error
	Pause() error
}

// MediaSurface is the rendered media element.
type MediaSurface interface {
	// CurrentTime returns the playback position in seconds.
	CurrentTime() (float64, error)
	PlaybackRate() (float64, error)
	Buffered() (playback.TimeRanges, error)

	// SetClickHandler installs the click input handler, replacing any
	// previous one. A nil handler detaches.
	SetClickHandler(h func())
}

// BandwidthProber resolves a network bandwidth estimate in bits per second.
type BandwidthProber interface {
	Probe(ctx context.Context) (float64, error)
}

// Sink receives named metric values. Record must not block for long and
// must not call the teardown function.
type Sink interface {
	Record(metric playback.Metric, value float64)
}

// Intervals holds the sampler cadences.
type Intervals struct {
	Position     time.Duration
	PlaybackRate time.Duration
	LiveEdge     time.Duration
	Bandwidth    time.Duration
	BufferSize   time.Duration
}

// DefaultIntervals returns the standard sampling cadences.
func DefaultIntervals() Intervals {
	return Intervals{
		Position:     1000 * time.Millisecond,
		PlaybackRate: 1000 * time.Millisecond,
		LiveEdge:     100 * time.Millisecond,
		Bandwidth:    1000 * time.Millisecond,
		BufferSize:   100 * time.Millisecond,
	}
}

// withDefaults replaces non-positive intervals with the defaults.
func (iv Intervals) withDefaults() Intervals {
	def := DefaultIntervals()
	if iv.Position <= 0 {
		iv.Position = def.Position
	}
	if iv.PlaybackRate <= 0 {
		iv.PlaybackRate = def.PlaybackRate
	}
	if iv.LiveEdge <= 0 {
		iv.LiveEdge = def.LiveEdge
	}
	if iv.Bandwidth <= 0 {
		iv.Bandwidth = def.Bandwidth
	}
	if iv.BufferSize <= 0 {
		iv.BufferSize = def.BufferSize
	}
	return iv
}

// Option configures a Binder.
type Option func(*Binder)

// WithSink sets the metrics sink. Without it samples are discarded.
func WithSink(s Sink) Option {
	return func(b *Binder) {
		if s != nil {
			b.sink = s
		}
	}
}

// WithProber sets the bandwidth prober. Without it no bandwidth is reported.
func WithProber(p BandwidthProber) Option {
	return func(b *Binder) { b.prober = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Binder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock sets the ticker source. Useful for testing.
func WithClock(c Clock) Option {
	return func(b *Binder) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithIntervals overrides the sampler cadences.
func WithIntervals(iv Intervals) Option {
	return func(b *Binder) { b.intervals = iv.withDefaults() }
}

// Binder owns one instrumentation session.
type Binder struct {
	player    Player
	surface   MediaSurface
	sink      Sink
	prober    BandwidthProber
	logger    *slog.Logger
	clock     Clock
	intervals Intervals

	ctx    context.Context
	cancel context.CancelFunc

	// closed gates every forward to the sink; held for reading while
	// recording so nothing is forwarded once Teardown has flipped it.
	mu     sync.RWMutex
	closed bool

	// lastObservedPosition is only touched by the position sampler.
	lastObservedPosition float64

	click *clickToggle

	disposers    []func()
	teardownOnce sync.Once
}

// Bind instruments player and surface and returns the teardown function.
// Subscriptions and samplers are live when Bind returns. The teardown
// function is idempotent.
func Bind(player Player, surface MediaSurface, opts ...Option) (teardown func()) {
	b := newBinder(player, surface, opts...)
	if player == nil || surface == nil {
		b.logger.Error("binder_missing_collaborator",
			"player", player != nil,
			"surface", surface != nil,
		)
		return func() {}
	}
	b.start()
	return b.Teardown
}

// newBinder builds a Binder without registering anything.
func newBinder(player Player, surface MediaSurface, opts ...Option) *Binder {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Binder{
		player:    player,
		surface:   surface,
		sink:      nopSink{},
		logger:    slog.Default(),
		clock:     realClock{},
		intervals: DefaultIntervals(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.click = newClickToggle(player, surface, b.logger)
	return b
}

// start registers subscriptions and samplers. Disposers run in reverse
// order on teardown: samplers stop first, then subscriptions go, and the
// click handler is detached last.
func (b *Binder) start() {
	b.disposers = append(b.disposers, b.click.shutdown)

	b.disposers = append(b.disposers,
		b.player.AddEventListener(playback.EventAudioBitrateChange, b.onAudioBitrateChange),
		b.player.AddEventListener(playback.EventVideoBitrateChange, b.onVideoBitrateChange),
		b.player.AddEventListener(playback.EventPlayerStateChange, b.onPlayerStateChange),
	)

	b.disposers = append(b.disposers,
		b.schedule("position", b.intervals.Position, b.samplePosition),
		b.schedule("playback_rate", b.intervals.PlaybackRate, b.samplePlaybackRate),
		b.schedule("live_edge", b.intervals.LiveEdge, b.sampleLiveEdge),
		b.schedule("bandwidth", b.intervals.Bandwidth, b.sampleBandwidth),
		b.schedule("buffer_size", b.intervals.BufferSize, b.sampleBufferSize),
	)

	b.logger.Debug("binder_started",
		"position_interval", b.intervals.Position.String(),
		"live_edge_interval", b.intervals.LiveEdge.String(),
		"bandwidth", b.prober != nil,
	)
}

// Teardown stops every sampler, removes every subscription and detaches
// the click handler. Safe to call any number of times. In-flight
// bandwidth probes are cancelled but not awaited; their results are
// dropped.
func (b *Binder) Teardown() {
	b.teardownOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		disposers := b.disposers
		b.disposers = nil
		b.mu.Unlock()

		b.cancel()
		for i := len(disposers) - 1; i >= 0; i-- {
			disposers[i]()
		}
		b.logger.Debug("binder_torn_down")
	})
}

// emit forwards a sample unless the session is closed.
func (b *Binder) emit(metric playback.Metric, value float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.sink.Record(metric, value)
}

// =============================================================================
// Event reactions
// =============================================================================

func (b *Binder) onAudioBitrateChange(n playback.Notification) {
	b.emit(playback.MetricAudioBitrate, n.Bitrate)
}

func (b *Binder) onVideoBitrateChange(n playback.Notification) {
	b.emit(playback.MetricVideoBitrate, n.Bitrate)
}

func (b *Binder) onPlayerStateChange(n playback.Notification) {
	b.click.handleState(n.State)
	if n.State == playback.StateLoaded {
		b.probeBandwidth("loaded")
	}
}

// probeBandwidth launches one probe and forwards its result when it
// resolves. Probes may overlap; results are forwarded in arrival order.
func (b *Binder) probeBandwidth(trigger string) {
	if b.prober == nil || b.ctx.Err() != nil {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Warn("bandwidth_probe_panic", "trigger", trigger, "panic", fmt.Sprint(r))
			}
		}()

		bw, err := b.prober.Probe(b.ctx)
		if err != nil {
			b.logger.Debug("bandwidth_probe_failed", "trigger", trigger, "error", err)
			return
		}
		if math.IsNaN(bw) || math.IsInf(bw, 0) {
			b.logger.Debug("bandwidth_probe_invalid", "trigger", trigger)
			return
		}
		b.emit(playback.MetricBandwidth, bw)
	}()
}

// =============================================================================
// Sinks
// =============================================================================

type nopSink struct{}

func (nopSink) Record(playback.Metric, float64) {}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(metric playback.Metric, value float64)

// Record calls f.
func (f SinkFunc) Record(metric playback.Metric, value float64) {
	f(metric, value)
}

// Fanout forwards every sample to each sink in order.
type Fanout []Sink

// Record implements Sink.
func (f Fanout) Record(metric playback.Metric, value float64) {
	for _, s := range f {
		if s != nil {
			s.Record(metric, value)
		}
	}
}
