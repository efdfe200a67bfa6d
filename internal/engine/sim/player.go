// Package sim is a deterministic simulated HLS player.
//
// The Player implements both the binder's Player and MediaSurface. Time only
// moves when Advance is called (or Run drives it from a ticker), so tests
// step it exactly. Segments download at a seeded random speed, an ABR rule
// picks the rendition from measured throughput, and playback stalls when
// the buffer runs dry or a stall is injected.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/randomizedcoder/go-playback-probe/internal/engine"
	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

var _ engine.Engine = (*Player)(nil)

// Player is a simulated player and media surface.
type Player struct {
	playback.Emitter

	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	machine  *engine.Machine
	dispatch engine.Dispatcher
	rng      *rand.Rand

	position  float64 // seconds
	bufferEnd float64
	rate      float64

	rendition  int
	throughput float64 // smoothed bits/s

	segBits      float64
	segRemaining float64
	segElapsed   float64
	segSpeed     float64
	segments     int

	playClock      float64 // seconds spent PLAYING
	nextStallAt    float64
	stallRemaining float64
	stalls         int

	clickMu sync.Mutex
	click   func()
}

// New creates a stopped player.
func New(cfg Config) *Player {
	cfg = cfg.withDefaults()
	p := &Player{
		cfg:     cfg,
		logger:  cfg.Logger,
		machine: engine.NewMachine(),
		rate:    1,
	}
	return p
}

// Describe names the simulated source for labels and logs.
func (p *Player) Describe() string {
	return fmt.Sprintf("sim://seed=%d", p.cfg.Seed)
}

// do runs fn under mu, then emits whatever fn queued. Notifications from
// concurrent calls reach listeners in the order fn ran.
func (p *Player) do(fn func() error) error {
	p.mu.Lock()
	err := fn()
	p.dispatch.Enqueue(p.machine.Drain())
	p.mu.Unlock()

	p.dispatch.Flush(p.Emit)
	return err
}

// fire sends event to the machine. Must be called with mu held.
func (p *Player) fire(event string) error {
	from := p.machine.Current()
	if err := p.machine.Fire(event); err != nil {
		return err
	}
	if to := p.machine.Current(); to != from {
		p.logger.Debug("sim_state", "event", event, "from", from, "to", to)
	}
	return nil
}

func (p *Player) current() playback.State {
	return p.machine.Current()
}

// Load starts loading the stream from the beginning.
func (p *Player) Load() error {
	return p.do(func() error {
		if err := p.fire(engine.EventLoad); err != nil {
			return err
		}
		p.reset()
		p.queueBitrate(playback.EventAudioBitrateChange, p.cfg.AudioBitrate)
		p.queueBitrate(playback.EventVideoBitrateChange, p.cfg.Bitrates[p.rendition])
		return nil
	})
}

// reset clears the playback session. Must be called with mu held.
func (p *Player) reset() {
	p.rng = rand.New(rand.NewSource(p.cfg.Seed))
	p.position = 0
	p.bufferEnd = 0
	p.rendition = 0
	p.throughput = 0
	p.segRemaining = 0
	p.segments = 0
	p.playClock = 0
	p.nextStallAt = p.cfg.StallEvery.Seconds()
	p.stallRemaining = 0
	p.stalls = 0
}

// Play resumes or starts playback.
func (p *Player) Play() error {
	return p.do(func() error { return p.fire(engine.EventPlay) })
}

// Pause pauses playback.
func (p *Player) Pause() error {
	return p.do(func() error { return p.fire(engine.EventPause) })
}

// Stop unloads the stream.
func (p *Player) Stop() error {
	return p.do(func() error { return p.fire(engine.EventStop) })
}

// State returns the current player state.
func (p *Player) State() playback.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current()
}

// CurrentTime returns the playback position in seconds.
func (p *Player) CurrentTime() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

// PlaybackRate returns the speed multiplier.
func (p *Player) PlaybackRate() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate, nil
}

// SetPlaybackRate changes the speed multiplier.
func (p *Player) SetPlaybackRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("playback rate must be positive (got %v)", rate)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
	return nil
}

// Buffered returns the buffered range, empty until the first segment lands.
func (p *Player) Buffered() (playback.TimeRanges, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bufferEnd <= 0 {
		return nil, nil
	}
	start := p.position - p.cfg.BackBuffer.Seconds()
	if start < 0 {
		start = 0
	}
	return playback.TimeRanges{{Start: start, End: p.bufferEnd}}, nil
}

// SetClickHandler installs the click handler; nil detaches.
func (p *Player) SetClickHandler(h func()) {
	p.clickMu.Lock()
	defer p.clickMu.Unlock()
	p.click = h
}

// Click simulates a click on the surface. It reports whether a handler
// was installed.
func (p *Player) Click() bool {
	p.clickMu.Lock()
	h := p.click
	p.clickMu.Unlock()

	if h == nil {
		return false
	}
	h()
	return true
}

// Stats reports simulation counters.
type Stats struct {
	Segments  int
	Stalls    int
	Rendition int
	Bitrate   float64
}

// Stats returns simulation counters.
func (p *Player) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Segments:  p.segments,
		Stalls:    p.stalls,
		Rendition: p.rendition,
		Bitrate:   p.cfg.Bitrates[p.rendition],
	}
}

// Advance moves simulated time forward by d in Tick-sized steps.
func (p *Player) Advance(d time.Duration) {
	for d > 0 {
		step := p.cfg.Tick
		if d < step {
			step = d
		}
		_ = p.do(func() error {
			p.step(step.Seconds())
			return nil
		})
		d -= step
	}
}

// Run advances the simulation in real time until ctx is done or the
// stream ends.
func (p *Player) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			p.Advance(now.Sub(last))
			last = now
			if p.State() == playback.StateEnded {
				return nil
			}
		}
	}
}
