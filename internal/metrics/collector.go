// Package metrics exposes playback-health samples as Prometheus metrics.
//
// The Collector is a binder sink: every recorded sample sets the gauge for
// its channel and bumps a per-channel sample counter. Gauges are created
// per Collector and registered on an injected registry so sessions and
// tests stay isolated.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

const namespace = "playback_probe"

// gaugeSpecs names the gauge behind each metric channel.
var gaugeSpecs = map[playback.Metric]prometheus.GaugeOpts{
	playback.MetricAudioBitrate: {
		Namespace: namespace,
		Name:      "audio_bitrate_bps",
		Help:      "Current audio rendition bitrate in bits per second",
	},
	playback.MetricVideoBitrate: {
		Namespace: namespace,
		Name:      "video_bitrate_bps",
		Help:      "Current video rendition bitrate in bits per second",
	},
	playback.MetricPlaybackRate: {
		Namespace: namespace,
		Name:      "playback_rate",
		Help:      "Playback speed multiplier (1.0 = realtime)",
	},
	playback.MetricCurrentTime: {
		Namespace: namespace,
		Name:      "progressing",
		Help:      "1 if the playback position moved since the previous sample, 0 if stalled",
	},
	playback.MetricBufferSize: {
		Namespace: namespace,
		Name:      "buffer_seconds",
		Help:      "Seconds of media buffered ahead of the playback position",
	},
	playback.MetricBandwidth: {
		Namespace: namespace,
		Name:      "bandwidth_bps",
		Help:      "Most recent network bandwidth estimate in bits per second",
	},
	playback.MetricLiveEdgePosition: {
		Namespace: namespace,
		Name:      "live_edge_seconds",
		Help:      "End of the last buffered range in seconds",
	},
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	Engine  string
	Source  string // stream URL or simulator description
}

// Collector records playback samples into Prometheus metrics.
type Collector struct {
	gauges       map[playback.Metric]prometheus.Gauge
	samplesTotal *prometheus.CounterVec
	stallTicks   prometheus.Counter
	restarts     prometheus.Counter
	playerState  *prometheus.GaugeVec
	info         *prometheus.GaugeVec
	uptime       prometheus.GaugeFunc

	startTime time.Time

	mu        sync.Mutex
	lastState playback.State
}

// NewCollector creates a collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		gauges:    make(map[playback.Metric]prometheus.Gauge, len(gaugeSpecs)),
		startTime: time.Now(),
	}

	for _, m := range playback.AllMetrics {
		c.gauges[m] = prometheus.NewGauge(gaugeSpecs[m])
	}

	c.samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples recorded per metric channel",
		},
		[]string{"metric"},
	)
	c.stallTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stall_ticks_total",
			Help:      "Position samples that found playback not progressing",
		},
	)
	c.restarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_restarts_total",
			Help:      "Engine reloads after a failure",
		},
	)
	c.playerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "player_state",
			Help:      "1 for the player's current state, 0 otherwise",
		},
		[]string{"state"},
	)
	c.info = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the probe session (value always 1)",
		},
		[]string{"version", "engine", "source"},
	)
	c.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_elapsed_seconds",
			Help:      "Seconds since the session started",
		},
		func() float64 { return time.Since(c.startTime).Seconds() },
	)

	for _, m := range playback.AllMetrics {
		registry.MustRegister(c.gauges[m])
	}
	registry.MustRegister(c.samplesTotal, c.stallTicks, c.restarts, c.playerState, c.info, c.uptime)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version, cfg.Engine, cfg.Source).Set(1)

	// Pre-create the per-channel series so every channel is exported at 0.
	for _, m := range playback.AllMetrics {
		c.samplesTotal.WithLabelValues(m.String())
	}

	return c
}

// Record implements the binder sink.
func (c *Collector) Record(metric playback.Metric, value float64) {
	g, ok := c.gauges[metric]
	if !ok {
		return
	}
	g.Set(value)
	c.samplesTotal.WithLabelValues(metric.String()).Inc()

	if metric == playback.MetricCurrentTime && value == 0 {
		c.stallTicks.Inc()
	}
}

// SetPlayerState marks s as the current player state.
func (c *Collector) SetPlayerState(s playback.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastState != "" && c.lastState != s {
		c.playerState.WithLabelValues(c.lastState.String()).Set(0)
	}
	c.playerState.WithLabelValues(s.String()).Set(1)
	c.lastState = s
}

// EngineRestarted counts one engine reload.
func (c *Collector) EngineRestarted() {
	c.restarts.Inc()
}
