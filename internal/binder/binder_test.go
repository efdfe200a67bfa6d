package binder

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

// bindForTest binds with a manual clock and returns everything a test
// needs to drive the session.
func bindForTest(t *testing.T, prober BandwidthProber) (*fakePlayer, *fakeSurface, *recordingSink, *manualClock, func()) {
	t.Helper()

	player := newFakePlayer()
	surface := &fakeSurface{rate: 1}
	sink := &recordingSink{}
	clock := newManualClock()

	opts := []Option{
		WithSink(sink),
		WithLogger(discardLogger()),
		WithClock(clock),
		WithIntervals(testIntervals),
	}
	if prober != nil {
		opts = append(opts, WithProber(prober))
	}
	teardown := Bind(player, surface, opts...)
	t.Cleanup(teardown)
	return player, surface, sink, clock, teardown
}

// =============================================================================
// Tests: position staleness
// =============================================================================

func TestSamplePosition_StallSignal(t *testing.T) {
	tests := []struct {
		name      string
		positions []float64
		want      []float64
	}{
		{
			name:      "never moves",
			positions: []float64{0, 0, 0, 0},
			want:      []float64{0, 0, 0, 0},
		},
		{
			name:      "progressing",
			positions: []float64{1, 2, 3},
			want:      []float64{1, 1, 1},
		},
		{
			name:      "stall then resume",
			positions: []float64{1.5, 1.5, 1.5, 2.5, 2.5},
			want:      []float64{1, 0, 0, 1, 0},
		},
		{
			name:      "seek backwards counts as progress",
			positions: []float64{10, 4, 4},
			want:      []float64{1, 1, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surface := &fakeSurface{}
			sink := &recordingSink{}
			b := newBinder(newFakePlayer(), surface, WithSink(sink), WithLogger(discardLogger()))

			for _, p := range tt.positions {
				surface.setPosition(p)
				require.NoError(t, b.samplePosition())
			}

			assert.Equal(t, tt.want, sink.values(playback.MetricCurrentTime))
			assert.Equal(t, tt.positions[len(tt.positions)-1], b.lastObservedPosition)
		})
	}
}

func TestSamplePosition_ReadFailure(t *testing.T) {
	surface := &fakeSurface{positionErr: errors.New("element detached")}
	sink := &recordingSink{}
	b := newBinder(newFakePlayer(), surface, WithSink(sink), WithLogger(discardLogger()))

	err := b.samplePosition()
	require.Error(t, err)
	assert.Empty(t, sink.values(playback.MetricCurrentTime))
}

// =============================================================================
// Tests: live edge, playback rate, buffer size
// =============================================================================

func TestSampleLiveEdge_ReportsLastRangeEnd(t *testing.T) {
	surface := &fakeSurface{ranges: playback.TimeRanges{{Start: 0, End: 5}, {Start: 5, End: 12}}}
	sink := &recordingSink{}
	b := newBinder(newFakePlayer(), surface, WithSink(sink), WithLogger(discardLogger()))

	require.NoError(t, b.sampleLiveEdge())
	surface.setRanges(playback.TimeRanges{{Start: 0, End: 5}, {Start: 5, End: 20}})
	require.NoError(t, b.sampleLiveEdge())

	assert.Equal(t, []float64{12, 20}, sink.values(playback.MetricLiveEdgePosition))
}

func TestSampleLiveEdge_NoRanges(t *testing.T) {
	sink := &recordingSink{}
	b := newBinder(newFakePlayer(), &fakeSurface{}, WithSink(sink), WithLogger(discardLogger()))

	err := b.sampleLiveEdge()
	require.ErrorIs(t, err, playback.ErrNoRanges)
	assert.Zero(t, sink.count())
}

func TestSamplePlaybackRate_NoCoalescing(t *testing.T) {
	surface := &fakeSurface{rate: 1.0}
	sink := &recordingSink{}
	b := newBinder(newFakePlayer(), surface, WithSink(sink), WithLogger(discardLogger()))

	require.NoError(t, b.samplePlaybackRate())
	surface.setRate(1.5)
	require.NoError(t, b.samplePlaybackRate())
	require.NoError(t, b.samplePlaybackRate())

	assert.Equal(t, []float64{1.0, 1.5, 1.5}, sink.values(playback.MetricPlaybackRate))
}

func TestSampleBufferSize(t *testing.T) {
	surface := &fakeSurface{
		position: 7,
		ranges:   playback.TimeRanges{{Start: 0, End: 5}, {Start: 6, End: 18}},
	}
	sink := &recordingSink{}
	b := newBinder(newFakePlayer(), surface, WithSink(sink), WithLogger(discardLogger()))

	require.NoError(t, b.sampleBufferSize())
	assert.Equal(t, []float64{11}, sink.values(playback.MetricBufferSize))
}

func TestComputeBufferSize(t *testing.T) {
	ranges := playback.TimeRanges{{Start: 0, End: 5}, {Start: 10, End: 20}}

	tests := []struct {
		name     string
		ranges   playback.TimeRanges
		position float64
		want     float64
	}{
		{"inside first range", ranges, 2, 3},
		{"inside second range", ranges, 12.5, 7.5},
		{"in a gap", ranges, 7, 0},
		{"just before a range", ranges, 9.95, 10.05},
		{"past the end", ranges, 25, 0},
		{"at range end", ranges, 5, 0},
		{"no ranges", nil, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ComputeBufferSize(tt.ranges, tt.position), 1e-9)
		})
	}
}

// =============================================================================
// Tests: scheduled samplers
// =============================================================================

func TestBind_SamplersRunOnTheirOwnCadence(t *testing.T) {
	_, surface, sink, clock, _ := bindForTest(t, &fakeProber{value: 5e6})
	surface.setRanges(playback.TimeRanges{{Start: 0, End: 5}, {Start: 5, End: 12}})
	surface.setPosition(3)

	require.Equal(t, 1, clock.Tick(testIntervals.LiveEdge))
	require.Eventually(t, func() bool {
		return len(sink.values(playback.MetricLiveEdgePosition)) == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, clock.Tick(testIntervals.Position))
	require.Equal(t, 1, clock.Tick(testIntervals.PlaybackRate))
	require.Equal(t, 1, clock.Tick(testIntervals.BufferSize))
	require.Equal(t, 1, clock.Tick(testIntervals.Bandwidth))

	require.Eventually(t, func() bool {
		return len(sink.values(playback.MetricCurrentTime)) == 1 &&
			len(sink.values(playback.MetricPlaybackRate)) == 1 &&
			len(sink.values(playback.MetricBufferSize)) == 1 &&
			len(sink.values(playback.MetricBandwidth)) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []float64{12}, sink.values(playback.MetricLiveEdgePosition))
	assert.Equal(t, []float64{1}, sink.values(playback.MetricCurrentTime))
	assert.Equal(t, []float64{2}, sink.values(playback.MetricBufferSize))
	assert.Equal(t, []float64{5e6}, sink.values(playback.MetricBandwidth))
}

func TestBind_FailingSamplerDoesNotStopOthers(t *testing.T) {
	_, surface, sink, clock, _ := bindForTest(t, nil)
	surface.mu.Lock()
	surface.panicOnRate = true
	surface.positionErr = errors.New("detached")
	surface.mu.Unlock()
	surface.setRanges(playback.TimeRanges{{Start: 0, End: 8}})

	// Each failing sampler keeps accepting ticks.
	for i := 0; i < 3; i++ {
		require.Equal(t, 1, clock.Tick(testIntervals.PlaybackRate))
		require.Equal(t, 1, clock.Tick(testIntervals.Position))
		require.Equal(t, 1, clock.Tick(testIntervals.LiveEdge))
	}

	require.Eventually(t, func() bool {
		return len(sink.values(playback.MetricLiveEdgePosition)) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, sink.values(playback.MetricPlaybackRate))
	assert.Empty(t, sink.values(playback.MetricCurrentTime))
}

func TestBind_RealClock(t *testing.T) {
	player := newFakePlayer()
	surface := &fakeSurface{rate: 1, ranges: playback.TimeRanges{{Start: 0, End: 30}}}
	sink := &recordingSink{}

	teardown := Bind(player, surface,
		WithSink(sink),
		WithProber(&fakeProber{value: 1e6}),
		WithLogger(discardLogger()),
		WithIntervals(Intervals{
			Position:     5 * time.Millisecond,
			PlaybackRate: 5 * time.Millisecond,
			LiveEdge:     2 * time.Millisecond,
			Bandwidth:    5 * time.Millisecond,
			BufferSize:   2 * time.Millisecond,
		}),
	)
	defer teardown()

	require.Eventually(t, func() bool {
		for _, m := range []playback.Metric{
			playback.MetricCurrentTime,
			playback.MetricPlaybackRate,
			playback.MetricLiveEdgePosition,
			playback.MetricBandwidth,
			playback.MetricBufferSize,
		} {
			if len(sink.values(m)) == 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

// =============================================================================
// Tests: events
// =============================================================================

func TestBind_ForwardsBitrates(t *testing.T) {
	player, _, sink, _, _ := bindForTest(t, nil)

	player.Emit(playback.Notification{Event: playback.EventAudioBitrateChange, Bitrate: 128000})
	player.Emit(playback.Notification{Event: playback.EventVideoBitrateChange, Bitrate: 2500000})
	player.Emit(playback.Notification{Event: playback.EventVideoBitrateChange, Bitrate: 4000000})

	assert.Equal(t, []float64{128000}, sink.values(playback.MetricAudioBitrate))
	assert.Equal(t, []float64{2500000, 4000000}, sink.values(playback.MetricVideoBitrate))
}

func TestBind_ClickToggleLifecycle(t *testing.T) {
	prober := &fakeProber{value: 8e6}
	player, surface, sink, _, _ := bindForTest(t, prober)

	assert.False(t, surface.hasHandler(), "detached initially")

	player.setState(playback.StateLoaded)
	assert.True(t, surface.hasHandler(), "attached after LOADED")
	require.Eventually(t, func() bool {
		return len(sink.values(playback.MetricBandwidth)) == 1
	}, time.Second, 5*time.Millisecond)

	player.setState(playback.StatePlaying)
	assert.True(t, surface.hasHandler(), "PLAYING leaves the attachment")

	player.setState(playback.StateStopped)
	assert.False(t, surface.hasHandler(), "detached after STOPPED")

	assert.Equal(t, int32(1), prober.calls.Load(), "one probe per LOADED entry")
}

func TestBind_LoadingDetaches(t *testing.T) {
	player, surface, _, _, _ := bindForTest(t, nil)

	player.setState(playback.StateLoaded)
	require.True(t, surface.hasHandler())

	player.setState(playback.StateBuffering)
	assert.True(t, surface.hasHandler())

	player.setState(playback.StateLoading)
	assert.False(t, surface.hasHandler())

	player.setState(playback.StatePaused)
	assert.False(t, surface.hasHandler(), "PAUSED does not re-attach")
}

func TestBind_RepeatedLoadedDoesNotStack(t *testing.T) {
	prober := &fakeProber{value: 1}
	player, surface, _, _, _ := bindForTest(t, prober)

	player.setState(playback.StateLoaded)
	player.setState(playback.StateLoaded)

	assert.Equal(t, 1, surface.attachCount())
	require.Eventually(t, func() bool { return prober.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBind_ClickHandlerTogglesPlayback(t *testing.T) {
	player, surface, _, _, _ := bindForTest(t, nil)
	player.setState(playback.StateLoaded)

	// LOADED is not PLAYING, so a click plays.
	require.True(t, surface.click())
	plays, pauses := player.commands()
	assert.Equal(t, 1, plays)
	assert.Equal(t, 0, pauses)

	player.setState(playback.StatePlaying)
	require.True(t, surface.click())
	plays, pauses = player.commands()
	assert.Equal(t, 1, plays)
	assert.Equal(t, 1, pauses)

	player.setState(playback.StatePaused)
	require.True(t, surface.click())
	plays, _ = player.commands()
	assert.Equal(t, 2, plays)
}

func TestBind_ProbeFailureIsDiscarded(t *testing.T) {
	player, _, sink, _, _ := bindForTest(t, &fakeProber{err: errProbe})

	player.setState(playback.StateLoaded)
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, sink.values(playback.MetricBandwidth))
}

func TestBind_OverlappingProbesForwardInArrivalOrder(t *testing.T) {
	prober := newGatedProber()
	player, _, sink, clock, _ := bindForTest(t, prober)

	player.setState(playback.StateLoaded)
	loaded := prober.next(t)
	require.Equal(t, 1, clock.Tick(testIntervals.Bandwidth))
	ticked := prober.next(t)

	// The later probe resolves first and is not held back.
	ticked <- 20e6
	require.Eventually(t, func() bool {
		return len(sink.values(playback.MetricBandwidth)) == 1
	}, time.Second, 5*time.Millisecond)

	loaded <- 10e6
	require.Eventually(t, func() bool {
		return len(sink.values(playback.MetricBandwidth)) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []float64{20e6, 10e6}, sink.values(playback.MetricBandwidth))
}

// =============================================================================
// Tests: teardown
// =============================================================================

func TestTeardown_ReleasesEverything(t *testing.T) {
	player, surface, sink, clock, teardown := bindForTest(t, &fakeProber{value: 1})
	require.Equal(t, 5, clock.live())
	require.Equal(t, 1, player.ListenerCount(playback.EventPlayerStateChange))

	player.setState(playback.StateLoaded)
	require.True(t, surface.hasHandler())
	require.Eventually(t, func() bool { return sink.count() > 0 }, time.Second, 5*time.Millisecond)

	teardown()

	assert.Zero(t, clock.live(), "every ticker stopped")
	assert.Zero(t, player.ListenerCount(playback.EventAudioBitrateChange))
	assert.Zero(t, player.ListenerCount(playback.EventVideoBitrateChange))
	assert.Zero(t, player.ListenerCount(playback.EventPlayerStateChange))
	assert.False(t, surface.hasHandler())

	before := sink.count()
	player.Emit(playback.Notification{Event: playback.EventVideoBitrateChange, Bitrate: 1})
	player.setState(playback.StateLoaded)
	assert.Zero(t, clock.Tick(testIntervals.Position))
	assert.Zero(t, clock.Tick(testIntervals.LiveEdge))
	assert.Equal(t, before, sink.count())
	assert.False(t, surface.hasHandler())
}

func TestTeardown_Idempotent(t *testing.T) {
	player, _, _, _, teardown := bindForTest(t, nil)

	assert.NotPanics(t, func() {
		teardown()
		teardown()
		teardown()
	})
	assert.Zero(t, player.ListenerCount(playback.EventPlayerStateChange))
}

func TestTeardown_DropsLateProbe(t *testing.T) {
	prober := newGatedProber()
	player, _, sink, _, teardown := bindForTest(t, prober)

	player.setState(playback.StateLoaded)
	gate := prober.next(t)

	teardown()
	gate <- 42e6

	assert.Never(t, func() bool {
		return len(sink.values(playback.MetricBandwidth)) > 0
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestBind_MissingCollaborator(t *testing.T) {
	teardown := Bind(nil, &fakeSurface{}, WithLogger(discardLogger()))
	require.NotNil(t, teardown)
	assert.NotPanics(t, teardown)
}

// =============================================================================
// Tests: sinks
// =============================================================================

func TestFanout(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	var seen []playback.Metric
	fan := Fanout{a, nil, b, SinkFunc(func(m playback.Metric, _ float64) { seen = append(seen, m) })}

	fan.Record(playback.MetricBandwidth, 3)

	assert.Equal(t, []float64{3}, a.values(playback.MetricBandwidth))
	assert.Equal(t, []float64{3}, b.values(playback.MetricBandwidth))
	assert.Equal(t, []playback.Metric{playback.MetricBandwidth}, seen)
}

func TestIntervals_WithDefaults(t *testing.T) {
	iv := Intervals{LiveEdge: 50 * time.Millisecond}.withDefaults()
	def := DefaultIntervals()

	assert.Equal(t, 50*time.Millisecond, iv.LiveEdge)
	assert.Equal(t, def.Position, iv.Position)
	assert.Equal(t, def.BufferSize, iv.BufferSize)
	assert.Equal(t, time.Second, def.Bandwidth)
	assert.Equal(t, 100*time.Millisecond, def.BufferSize)
}
