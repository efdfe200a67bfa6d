package binder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

// =============================================================================
// Test doubles
// =============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePlayer records play/pause commands and lets tests emit events.
type fakePlayer struct {
	playback.Emitter

	mu     sync.Mutex
	state  playback.State
	plays  int
	pauses int
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{state: playback.StateStopped}
}

func (p *fakePlayer) State() playback.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
	return nil
}

// setState changes the state and notifies listeners, as an engine would.
func (p *fakePlayer) setState(s playback.State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.Emit(playback.Notification{Event: playback.EventPlayerStateChange, State: s})
}

func (p *fakePlayer) commands() (plays, pauses int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays, p.pauses
}

// fakeSurface serves canned reads.
type fakeSurface struct {
	mu          sync.Mutex
	position    float64
	rate        float64
	ranges      playback.TimeRanges
	positionErr error
	panicOnRate bool

	handler     func()
	handlerSets int
}

func (s *fakeSurface) CurrentTime() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, s.positionErr
}

func (s *fakeSurface) PlaybackRate() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOnRate {
		panic("surface gone")
	}
	return s.rate, nil
}

func (s *fakeSurface) Buffered() (playback.TimeRanges, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranges.Clone(), nil
}

func (s *fakeSurface) SetClickHandler(h func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
	if h != nil {
		s.handlerSets++
	}
}

func (s *fakeSurface) setPosition(p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = p
}

func (s *fakeSurface) setRate(r float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = r
}

func (s *fakeSurface) setRanges(r playback.TimeRanges) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = r
}

func (s *fakeSurface) hasHandler() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler != nil
}

func (s *fakeSurface) attachCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlerSets
}

// click invokes the installed handler, if any.
func (s *fakeSurface) click() bool {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h()
	return true
}

// sample is one recorded sink value.
type sample struct {
	metric playback.Metric
	value  float64
}

// recordingSink keeps every sample in arrival order.
type recordingSink struct {
	mu      sync.Mutex
	samples []sample
}

func (r *recordingSink) Record(metric playback.Metric, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample{metric: metric, value: value})
}

func (r *recordingSink) values(metric playback.Metric) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []float64
	for _, s := range r.samples {
		if s.metric == metric {
			out = append(out, s.value)
		}
	}
	return out
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// fakeProber counts probes and answers each one at once.
type fakeProber struct {
	calls atomic.Int32
	value float64
	err   error
}

func (p *fakeProber) Probe(_ context.Context) (float64, error) {
	p.calls.Add(1)
	return p.value, p.err
}

// gatedProber blocks every probe on a gate of its own, ignoring ctx.
// Gates are handed out in call order; sending on one resolves that probe.
type gatedProber struct {
	started chan chan float64
}

func newGatedProber() *gatedProber {
	return &gatedProber{started: make(chan chan float64, 8)}
}

func (p *gatedProber) Probe(_ context.Context) (float64, error) {
	gate := make(chan float64, 1)
	p.started <- gate
	return <-gate, nil
}

// next returns the gate of the next probe to start.
func (p *gatedProber) next(t *testing.T) chan<- float64 {
	t.Helper()
	select {
	case gate := <-p.started:
		return gate
	case <-time.After(time.Second):
		t.Fatal("no probe started")
		return nil
	}
}

var errProbe = errors.New("probe failed")

// manualClock hands out tickers that only fire when the test says so.
type manualClock struct {
	mu      sync.Mutex
	tickers map[time.Duration][]*manualTicker
}

func newManualClock() *manualClock {
	return &manualClock{tickers: make(map[time.Duration][]*manualTicker)}
}

func (c *manualClock) NewTicker(d time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time)}
	c.mu.Lock()
	c.tickers[d] = append(c.tickers[d], t)
	c.mu.Unlock()
	return t
}

// Tick delivers one tick to every live ticker of interval d and returns
// how many accepted it.
func (c *manualClock) Tick(d time.Duration) int {
	c.mu.Lock()
	tickers := append([]*manualTicker(nil), c.tickers[d]...)
	c.mu.Unlock()

	delivered := 0
	for _, t := range tickers {
		if t.stopped.Load() {
			continue
		}
		select {
		case t.ch <- time.Now():
			delivered++
		case <-time.After(time.Second):
		}
	}
	return delivered
}

// live returns the number of tickers not yet stopped.
func (c *manualClock) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ts := range c.tickers {
		for _, t := range ts {
			if !t.stopped.Load() {
				n++
			}
		}
	}
	return n
}

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.stopped.Store(true) }

// testIntervals gives every sampler a distinct cadence so a manual clock
// can drive them one at a time.
var testIntervals = Intervals{
	Position:     1000 * time.Millisecond,
	PlaybackRate: 1001 * time.Millisecond,
	LiveEdge:     100 * time.Millisecond,
	Bandwidth:    999 * time.Millisecond,
	BufferSize:   101 * time.Millisecond,
}
