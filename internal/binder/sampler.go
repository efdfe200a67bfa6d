package binder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

// errInvalidValue is returned by a tick when a collaborator read is not a
// finite number.
var errInvalidValue = errors.New("invalid value")

// Clock creates tickers. The real clock wraps time.NewTicker.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the samplers need.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// schedule runs tick every interval on its own goroutine until the
// returned stop function is called. stop waits for the goroutine to exit.
func (b *Binder) schedule(name string, interval time.Duration, tick func() error) (stop func()) {
	ctx, cancel := context.WithCancel(b.ctx)
	ticker := b.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if ctx.Err() != nil {
					return
				}
				b.runTick(name, tick)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// runTick executes one sampler tick in isolation. A failing or panicking
// collaborator costs only this tick.
func (b *Binder) runTick(name string, tick func() error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("sampler_panic", "sampler", name, "panic", fmt.Sprint(r))
		}
	}()

	if err := tick(); err != nil {
		b.logger.Debug("sampler_tick_failed", "sampler", name, "error", err)
	}
}

// samplePosition is the binary stall detector: 0 when the position has
// not moved since the previous tick, 1 (and remember it) when it has.
func (b *Binder) samplePosition() error {
	pos, err := b.surface.CurrentTime()
	if err != nil {
		return fmt.Errorf("read current time: %w", err)
	}
	if !finite(pos) {
		return fmt.Errorf("current time: %w", errInvalidValue)
	}

	if pos == b.lastObservedPosition {
		b.emit(playback.MetricCurrentTime, 0)
		return nil
	}
	b.emit(playback.MetricCurrentTime, 1)
	b.lastObservedPosition = pos
	return nil
}

func (b *Binder) samplePlaybackRate() error {
	rate, err := b.surface.PlaybackRate()
	if err != nil {
		return fmt.Errorf("read playback rate: %w", err)
	}
	if !finite(rate) {
		return fmt.Errorf("playback rate: %w", errInvalidValue)
	}
	b.emit(playback.MetricPlaybackRate, rate)
	return nil
}

func (b *Binder) sampleLiveEdge() error {
	ranges, err := b.surface.Buffered()
	if err != nil {
		return fmt.Errorf("read buffered: %w", err)
	}
	edge, err := LiveEdge(ranges)
	if err != nil {
		return err
	}
	b.emit(playback.MetricLiveEdgePosition, edge)
	return nil
}

func (b *Binder) sampleBandwidth() error {
	b.probeBandwidth("interval")
	return nil
}

func (b *Binder) sampleBufferSize() error {
	ranges, err := b.surface.Buffered()
	if err != nil {
		return fmt.Errorf("read buffered: %w", err)
	}
	pos, err := b.surface.CurrentTime()
	if err != nil {
		return fmt.Errorf("read current time: %w", err)
	}
	if !finite(pos) {
		return fmt.Errorf("current time: %w", errInvalidValue)
	}
	b.emit(playback.MetricBufferSize, ComputeBufferSize(ranges, pos))
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
