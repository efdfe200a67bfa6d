package playback

// Metric names a channel of the metrics sink.
type Metric string

const (
	MetricAudioBitrate     Metric = "audioBitrate"
	MetricVideoBitrate     Metric = "videoBitrate"
	MetricPlaybackRate     Metric = "playbackRate"
	MetricCurrentTime      Metric = "currentTime" // stall signal: 0 = stalled, 1 = progressing
	MetricBufferSize       Metric = "bufferSize"
	MetricBandwidth        Metric = "bandwidth"
	MetricLiveEdgePosition Metric = "liveEdgePosition"
)

// AllMetrics lists every channel in display order.
var AllMetrics = []Metric{
	MetricCurrentTime,
	MetricPlaybackRate,
	MetricBufferSize,
	MetricLiveEdgePosition,
	MetricBandwidth,
	MetricVideoBitrate,
	MetricAudioBitrate,
}

// String returns the channel name.
func (m Metric) String() string {
	return string(m)
}

// Unit returns a short unit suffix for display.
func (m Metric) Unit() string {
	switch m {
	case MetricAudioBitrate, MetricVideoBitrate, MetricBandwidth:
		return "bps"
	case MetricBufferSize, MetricLiveEdgePosition:
		return "s"
	case MetricPlaybackRate:
		return "x"
	default:
		return ""
	}
}
