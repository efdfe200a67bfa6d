package sim

import (
	"log/slog"
	"sort"
	"time"
)

// Config describes the simulated stream and network.
type Config struct {
	// Seed makes a run reproducible: equal seeds give equal runs.
	Seed int64

	// Bitrates is the video rendition ladder in bits/s.
	Bitrates []float64

	// AudioBitrate is the fixed audio rendition bitrate in bits/s.
	AudioBitrate float64

	SegmentDuration time.Duration

	// DownloadSpeed is the nominal network speed in bits/s. Each segment
	// downloads at a seeded random 75%..125% of it.
	DownloadSpeed float64

	// StallEvery injects a playback stall after this much playing time
	// (0 = never). Each stall lasts StallFor.
	StallEvery time.Duration
	StallFor   time.Duration

	// Tick is the simulation step used by Advance and Run.
	Tick time.Duration

	// MediaDuration ends playback at this position (0 = live, never ends).
	MediaDuration time.Duration

	// MaxBufferAhead stops downloading once this much is buffered.
	MaxBufferAhead time.Duration

	// BackBuffer is how much played media stays in the buffered range.
	BackBuffer time.Duration

	// StartupSegments must be buffered before the player reports LOADED.
	StartupSegments int

	// Autoplay starts playback as soon as the player is LOADED.
	Autoplay bool

	Logger *slog.Logger
}

// DefaultConfig returns a live stream with a three-rung ladder.
func DefaultConfig() Config {
	return Config{
		Seed:            1,
		Bitrates:        []float64{400_000, 1_200_000, 3_000_000},
		AudioBitrate:    128_000,
		SegmentDuration: 4 * time.Second,
		DownloadSpeed:   8_000_000,
		StallEvery:      45 * time.Second,
		StallFor:        3 * time.Second,
		Tick:            100 * time.Millisecond,
		MaxBufferAhead:  30 * time.Second,
		BackBuffer:      30 * time.Second,
		StartupSegments: 1,
		Autoplay:        true,
	}
}

// withDefaults fills zero fields from DefaultConfig and sorts the ladder.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if len(c.Bitrates) == 0 {
		c.Bitrates = def.Bitrates
	}
	c.Bitrates = append([]float64(nil), c.Bitrates...)
	sort.Float64s(c.Bitrates)

	if c.AudioBitrate <= 0 {
		c.AudioBitrate = def.AudioBitrate
	}
	if c.SegmentDuration <= 0 {
		c.SegmentDuration = def.SegmentDuration
	}
	if c.DownloadSpeed <= 0 {
		c.DownloadSpeed = def.DownloadSpeed
	}
	if c.Tick <= 0 {
		c.Tick = def.Tick
	}
	if c.MaxBufferAhead <= 0 {
		c.MaxBufferAhead = def.MaxBufferAhead
	}
	if c.BackBuffer <= 0 {
		c.BackBuffer = def.BackBuffer
	}
	if c.StartupSegments <= 0 {
		c.StartupSegments = def.StartupSegments
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
