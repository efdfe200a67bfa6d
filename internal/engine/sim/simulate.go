package sim

import (
	"github.com/randomizedcoder/go-playback-probe/internal/engine"
	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

const (
	// abrSafety is the share of measured throughput the ABR rule spends.
	abrSafety = 0.8

	// throughputSmoothing weights the newest segment in the estimate.
	throughputSmoothing = 0.3
)

// step advances the simulation by dt seconds. Must be called with mu held.
func (p *Player) step(dt float64) {
	seg := p.cfg.SegmentDuration.Seconds()

	switch p.current() {
	case playback.StateLoading:
		p.download(dt)
		if p.bufferAhead() >= float64(p.cfg.StartupSegments)*seg || p.atMediaEnd() {
			_ = p.fire(engine.EventReady)
			if p.cfg.Autoplay {
				_ = p.fire(engine.EventPlay)
			}
		}

	case playback.StatePlaying:
		p.download(dt)
		p.playClock += dt

		if p.cfg.StallEvery > 0 && p.playClock >= p.nextStallAt {
			p.nextStallAt += p.cfg.StallEvery.Seconds()
			p.stallRemaining = p.cfg.StallFor.Seconds()
			p.stalls++
			_ = p.fire(engine.EventStall)
			return
		}

		p.position += dt * p.rate
		if p.position > p.bufferEnd {
			p.position = p.bufferEnd
		}

		if end := p.cfg.MediaDuration.Seconds(); end > 0 && p.position >= end {
			p.position = end
			_ = p.fire(engine.EventEnd)
			return
		}
		if p.bufferAhead() <= 0 {
			p.stalls++
			_ = p.fire(engine.EventStall)
		}

	case playback.StateBuffering:
		p.download(dt)
		p.stallRemaining -= dt
		if p.stallRemaining <= 0 && (p.bufferAhead() >= seg || p.atMediaEnd()) {
			_ = p.fire(engine.EventResume)
		}

	case playback.StateLoaded, playback.StatePaused:
		p.download(dt)
	}
}

// download spends dt seconds fetching segments. Must be called with mu held.
func (p *Player) download(dt float64) {
	for dt > 0 {
		if p.atMediaEnd() || p.bufferAhead() >= p.cfg.MaxBufferAhead.Seconds() {
			return
		}
		if p.segRemaining <= 0 {
			p.startSegment()
		}

		need := p.segRemaining / p.segSpeed
		if need > dt {
			p.segRemaining -= p.segSpeed * dt
			p.segElapsed += dt
			return
		}

		p.segElapsed += need
		dt -= need
		p.segRemaining = 0
		p.completeSegment()
	}
}

// startSegment begins fetching the next segment at the current rendition.
func (p *Player) startSegment() {
	p.segBits = p.cfg.Bitrates[p.rendition] * p.cfg.SegmentDuration.Seconds()
	p.segRemaining = p.segBits
	p.segElapsed = 0
	p.segSpeed = p.cfg.DownloadSpeed * (0.75 + 0.5*p.rng.Float64())
}

// completeSegment extends the buffer and re-runs rendition selection.
func (p *Player) completeSegment() {
	p.segments++
	p.bufferEnd += p.cfg.SegmentDuration.Seconds()
	if end := p.cfg.MediaDuration.Seconds(); end > 0 && p.bufferEnd > end {
		p.bufferEnd = end
	}

	measured := p.segBits / p.segElapsed
	if p.throughput == 0 {
		p.throughput = measured
	} else {
		p.throughput = (1-throughputSmoothing)*p.throughput + throughputSmoothing*measured
	}
	p.selectRendition()
}

// selectRendition picks the highest bitrate the throughput sustains.
func (p *Player) selectRendition() {
	target := abrSafety * p.throughput
	next := 0
	for i, b := range p.cfg.Bitrates {
		if b <= target {
			next = i
		}
	}
	if next == p.rendition {
		return
	}

	p.logger.Debug("sim_rendition_switch",
		"from_bps", p.cfg.Bitrates[p.rendition],
		"to_bps", p.cfg.Bitrates[next],
		"throughput_bps", p.throughput,
	)
	p.rendition = next
	p.queueBitrate(playback.EventVideoBitrateChange, p.cfg.Bitrates[next])
}

func (p *Player) queueBitrate(event playback.Event, bps float64) {
	p.machine.Queue(playback.Notification{Event: event, Bitrate: bps})
}

func (p *Player) bufferAhead() float64 {
	return p.bufferEnd - p.position
}

func (p *Player) atMediaEnd() bool {
	end := p.cfg.MediaDuration.Seconds()
	return end > 0 && p.bufferEnd >= end
}
