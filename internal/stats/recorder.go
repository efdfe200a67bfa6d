// Package stats aggregates playback samples for the dashboard and the exit
// summary.
//
// The Recorder is a binder sink. Per channel it keeps the latest value, a
// sample count, lifetime min/max, a history series for sparklines and
// rolling-window percentiles from a T-Digest. The binary position channel
// is counted as stall vs progressing ticks instead.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-playback-probe/internal/playback"
	"github.com/randomizedcoder/go-playback-probe/internal/timeseries"
)

const (
	// digestCompression bounds each digest to ~100 centroids.
	digestCompression = 100

	// DefaultWindow is the rolling window for percentiles.
	DefaultWindow = 30 * time.Second

	// DefaultHistoryLen is the sparkline history per channel.
	DefaultHistoryLen = 120
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Window     time.Duration
	HistoryLen int
	Clock      timeseries.Clock // nil = real clock
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type windowSample struct {
	value float64
	time  time.Time
}

// channel holds everything tracked for one metric.
type channel struct {
	count    int64
	latest   float64
	min, max float64
	history  *timeseries.Series

	digest *tdigest.TDigest
	window []windowSample
}

// Recorder aggregates samples. Safe for concurrent use.
type Recorder struct {
	cfg       RecorderConfig
	startTime time.Time

	mu            sync.Mutex
	channels      map[playback.Metric]*channel
	stallTicks    int64
	progressTicks int64
	state         playback.State
	stateChanges  int
}

// NewRecorder creates a Recorder.
func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.HistoryLen <= 0 {
		cfg.HistoryLen = DefaultHistoryLen
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}

	r := &Recorder{
		cfg:       cfg,
		startTime: cfg.Clock.Now(),
		channels:  make(map[playback.Metric]*channel, len(playback.AllMetrics)),
	}
	for _, m := range playback.AllMetrics {
		r.channels[m] = &channel{
			history: timeseries.NewWithClock(cfg.HistoryLen, cfg.Clock),
			digest:  tdigest.NewWithCompression(digestCompression),
		}
	}
	return r
}

// Record implements the binder sink.
func (r *Recorder) Record(metric playback.Metric, value float64) {
	now := r.cfg.Clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[metric]
	if !ok {
		return
	}

	if ch.count == 0 || value < ch.min {
		ch.min = value
	}
	if ch.count == 0 || value > ch.max {
		ch.max = value
	}
	ch.count++
	ch.latest = value
	ch.history.AddAt(now, value)

	if metric == playback.MetricCurrentTime {
		if value == 0 {
			r.stallTicks++
		} else {
			r.progressTicks++
		}
		return
	}

	ch.digest.Add(value, 1)
	ch.window = append(ch.window, windowSample{value: value, time: now})
	r.cleanupWindow(ch, now)
}

// cleanupWindow drops samples older than the window and rebuilds the
// digest, only when something actually expired. Must be called with mu held.
func (r *Recorder) cleanupWindow(ch *channel, now time.Time) {
	cutoff := now.Add(-r.cfg.Window)
	if len(ch.window) == 0 || ch.window[0].time.After(cutoff) {
		return
	}

	valid := make([]windowSample, 0, len(ch.window))
	for _, s := range ch.window {
		if s.time.After(cutoff) {
			valid = append(valid, s)
		}
	}

	ch.digest = tdigest.NewWithCompression(digestCompression)
	for _, s := range valid {
		ch.digest.Add(s.value, 1)
	}
	ch.window = valid
}

// SetPlayerState records a player state transition.
func (r *Recorder) SetPlayerState(s playback.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s == r.state {
		return
	}
	r.state = s
	r.stateChanges++
}

// ChannelStats is the summary of one channel.
type ChannelStats struct {
	Metric   playback.Metric
	Count    int64
	Latest   float64
	Min      float64
	Max      float64
	P50      float64 // over the rolling window
	P95      float64
	Windowed int // samples in the rolling window
	History  []float64
}

// Snapshot is a point-in-time copy of the recorder.
type Snapshot struct {
	Elapsed       time.Duration
	Window        time.Duration
	State         playback.State
	StateChanges  int
	StallTicks    int64
	ProgressTicks int64
	Channels      map[playback.Metric]ChannelStats
}

// StallRatio is the fraction of position samples that found playback
// stalled.
func (s *Snapshot) StallRatio() float64 {
	total := s.StallTicks + s.ProgressTicks
	if total == 0 {
		return 0
	}
	return float64(s.StallTicks) / float64(total)
}

// Stalled reports whether the most recent position sample was a stall.
func (s *Snapshot) Stalled() bool {
	ch, ok := s.Channels[playback.MetricCurrentTime]
	return ok && ch.Count > 0 && ch.Latest == 0
}

// Channel returns the stats for m, and whether it has any samples.
func (s *Snapshot) Channel(m playback.Metric) (ChannelStats, bool) {
	ch, ok := s.Channels[m]
	return ch, ok && ch.Count > 0
}

// Snapshot returns a copy of the current aggregates. historyLen limits the
// history returned per channel (0 = all held).
func (r *Recorder) Snapshot(historyLen int) *Snapshot {
	now := r.cfg.Clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := &Snapshot{
		Elapsed:       now.Sub(r.startTime),
		Window:        r.cfg.Window,
		State:         r.state,
		StateChanges:  r.stateChanges,
		StallTicks:    r.stallTicks,
		ProgressTicks: r.progressTicks,
		Channels:      make(map[playback.Metric]ChannelStats, len(r.channels)),
	}

	n := historyLen
	if n <= 0 {
		n = r.cfg.HistoryLen
	}

	for m, ch := range r.channels {
		r.cleanupWindow(ch, now)

		cs := ChannelStats{
			Metric:   m,
			Count:    ch.count,
			Latest:   ch.latest,
			Min:      ch.min,
			Max:      ch.max,
			Windowed: len(ch.window),
			History:  ch.history.Values(n),
		}
		if len(ch.window) > 0 {
			cs.P50 = ch.digest.Quantile(0.50)
			cs.P95 = ch.digest.Quantile(0.95)
		}
		snap.Channels[m] = cs
	}
	return snap
}
