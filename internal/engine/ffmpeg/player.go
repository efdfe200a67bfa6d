// Package ffmpeg plays a real HLS stream through an FFmpeg child process.
//
// FFmpeg demuxes the stream at its native rate and discards the media.
// Progress blocks on stdout drive the position and the player state;
// request logs on stderr count segments, which estimate the buffered range.
// Pause and resume suspend and continue the process.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-playback-probe/internal/engine"
	"github.com/randomizedcoder/go-playback-probe/internal/logging"
	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

const (
	// stopTimeout is how long Stop waits after SIGTERM before SIGKILL.
	stopTimeout = 5 * time.Second

	// backBuffer is how much played media stays in the buffered range.
	backBuffer = 30.0

	// bitrateChangeRatio is the relative change that counts as a new
	// bitrate.
	bitrateChangeRatio = 0.1
)

// ErrNotLoaded is returned by Run before Load.
var ErrNotLoaded = errors.New("ffmpeg: stream not loaded")

var _ engine.Engine = (*Player)(nil)

// Player is an FFmpeg-backed player and media surface.
type Player struct {
	playback.Emitter

	cfg      Config
	logger   *slog.Logger
	stderr   *logging.LineHandler
	segments *SegmentTracker
	progress *ProgressParser

	mu       sync.Mutex
	machine  *engine.Machine
	dispatch engine.Dispatcher
	cmd      *exec.Cmd
	done     chan struct{}
	exitErr  error
	position float64
	speed    float64
	bitrate  float64

	clickMu sync.Mutex
	click   func()
}

// New creates a stopped player.
func New(cfg Config, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SegmentHint <= 0 {
		cfg.SegmentHint = DefaultConfig("").SegmentHint
	}

	p := &Player{
		cfg:      cfg,
		logger:   logger,
		segments: NewSegmentTracker(),
		machine:  engine.NewMachine(),
	}
	p.stderr = logging.NewLineHandler("ffmpeg", logger, cfg.Verbose, p.segments.ParseLine)
	p.progress = NewProgressParser(p.onProgress)
	return p
}

// Describe names the stream for labels and logs.
func (p *Player) Describe() string {
	return p.cfg.StreamURL
}

// CommandString returns the FFmpeg command Load runs.
func (p *Player) CommandString() string {
	return p.cfg.CommandString()
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
		p.logger.Debug("ffmpeg_state", "event", event, "from", from, "to", to)
	}
	return nil
}

// Load starts FFmpeg.
func (p *Player) Load() error {
	return p.do(func() error {
		if !p.machine.Can(engine.EventLoad) {
			return p.machine.Fire(engine.EventLoad)
		}

		cmd := exec.Command(p.cfg.BinaryPath, p.cfg.BuildArgs()...)
		setProcessGroup(cmd)

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return fmt.Errorf("stderr pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start ffmpeg: %w", err)
		}

		p.logger.Info("ffmpeg_started",
			"pid", cmd.Process.Pid,
			"url", p.cfg.StreamURL,
			"realtime", p.cfg.Realtime,
		)

		p.position, p.speed, p.bitrate = 0, 0, 0
		p.segments.Reset()
		p.cmd = cmd
		p.done = make(chan struct{})
		p.exitErr = nil

		go p.supervise(cmd, stdout, stderr, p.done)
		return p.fire(engine.EventLoad)
	})
}

// supervise drains both pipes, then reaps the process.
func (p *Player) supervise(cmd *exec.Cmd, stdout, stderr io.Reader, done chan struct{}) {
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		p.readProgress(stdout)
	}()
	go func() {
		defer readers.Done()
		p.stderr.HandleReader(stderr)
	}()

	// Wait closes the pipes, so every read must finish first.
	readers.Wait()
	err := cmd.Wait()
	p.exited(cmd, err)
	close(done)
}

func (p *Player) readProgress(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.progress.ParseLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		p.logger.Debug("progress_reader_stopped", "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
}

// exited records the process exit and settles the state.
func (p *Player) exited(cmd *exec.Cmd, err error) {
	blocks, lines := p.progress.Stats()
	stats := p.segments.Stats()

	_ = p.do(func() error {
		if p.cmd != cmd {
			return nil
		}
		p.cmd = nil
		p.exitErr = err

		p.logger.Info("ffmpeg_exited",
			"exit_code", exitCode(err),
			"progress_blocks", blocks,
			"progress_lines", lines,
			"segments", stats.Segments,
			"manifests", stats.Manifests,
			"reconnections", stats.Reconnections,
		)

		switch state := p.machine.Current(); {
		case state == playback.StateStopped, state == playback.StateEnded:
		case err == nil && p.machine.Can(engine.EventEnd):
			return p.fire(engine.EventEnd)
		default:
			p.logger.Warn("ffmpeg_exited_unexpectedly",
				"state", state.String(),
				"exit_code", exitCode(err),
				"error", err,
			)
			return p.fire(engine.EventStop)
		}
		return nil
	})
}

// onProgress applies one progress block.
func (p *Player) onProgress(u Progress) {
	_ = p.do(func() error {
		state := p.machine.Current()
		if state == playback.StateStopped || state == playback.StateEnded {
			return nil
		}

		p.speed = u.Speed
		if u.Bitrate > 0 && bitrateChanged(p.bitrate, u.Bitrate) {
			p.bitrate = u.Bitrate
			p.machine.Queue(playback.Notification{
				Event:   playback.EventVideoBitrateChange,
				Bitrate: u.Bitrate,
			})
		}

		pos := u.OutTime.Seconds()
		advanced := pos > p.position
		if advanced {
			p.position = pos
		}

		if u.IsEnd() {
			if p.machine.Can(engine.EventEnd) {
				return p.fire(engine.EventEnd)
			}
			return nil
		}

		switch state {
		case playback.StateLoading:
			if advanced {
				if err := p.fire(engine.EventReady); err != nil {
					return err
				}
				return p.fire(engine.EventPlay)
			}
		case playback.StatePlaying:
			if !advanced {
				return p.fire(engine.EventStall)
			}
		case playback.StateBuffering:
			if advanced {
				return p.fire(engine.EventResume)
			}
		}
		return nil
	})
}

func bitrateChanged(old, next float64) bool {
	if old <= 0 {
		return true
	}
	return math.Abs(next-old)/old > bitrateChangeRatio
}

// Play resumes a paused process, or starts playback from LOADED.
func (p *Player) Play() error {
	return p.do(func() error {
		if p.machine.Current() == playback.StatePaused {
			if err := resume(p.cmd); err != nil {
				return fmt.Errorf("resume ffmpeg: %w", err)
			}
		}
		return p.fire(engine.EventPlay)
	})
}

// Pause suspends the process.
func (p *Player) Pause() error {
	return p.do(func() error {
		if !p.machine.Can(engine.EventPause) {
			return p.machine.Fire(engine.EventPause)
		}
		if err := suspend(p.cmd); err != nil {
			return fmt.Errorf("suspend ffmpeg: %w", err)
		}
		return p.fire(engine.EventPause)
	})
}

// Stop terminates FFmpeg and waits for it to exit.
func (p *Player) Stop() error {
	var (
		cmd  *exec.Cmd
		done chan struct{}
	)
	err := p.do(func() error {
		if err := p.fire(engine.EventStop); err != nil {
			return err
		}
		cmd, done = p.cmd, p.done
		return nil
	})
	if err != nil || cmd == nil {
		return err
	}

	if err := terminate(cmd); err != nil {
		p.logger.Debug("ffmpeg_terminate_failed", "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(stopTimeout):
		p.logger.Warn("force_killing_process", "pid", cmd.Process.Pid)
		_ = kill(cmd)
		<-done
		return errors.New("ffmpeg did not exit gracefully")
	}
}

// Run waits for FFmpeg to exit. When ctx is done first it stops FFmpeg and
// returns ctx.Err().
func (p *Player) Run(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done == nil {
		return ErrNotLoaded
	}

	select {
	case <-ctx.Done():
		if err := p.Stop(); err != nil && !errors.Is(err, engine.ErrInvalidTransition) {
			p.logger.Warn("ffmpeg_stop_failed", "error", err)
		}
		return ctx.Err()
	case <-done:
		p.mu.Lock()
		err := p.exitErr
		p.mu.Unlock()
		if err != nil {
			return fmt.Errorf("ffmpeg exited: %w", err)
		}
		return nil
	}
}

// State returns the current player state.
func (p *Player) State() playback.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.machine.Current()
}

// CurrentTime returns the media position FFmpeg has reached, in seconds.
func (p *Player) CurrentTime() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

// PlaybackRate returns FFmpeg's reported speed, 1 before the first report.
func (p *Player) PlaybackRate() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.speed <= 0 {
		return 1, nil
	}
	return p.speed, nil
}

// Buffered estimates the buffered range from the segments requested so far.
func (p *Player) Buffered() (playback.TimeRanges, error) {
	fetched := float64(p.segments.Segments()) * p.cfg.SegmentHint.Seconds()

	p.mu.Lock()
	defer p.mu.Unlock()

	end := math.Max(p.position, fetched)
	if end <= 0 {
		return nil, nil
	}
	return playback.TimeRanges{{Start: math.Max(0, p.position-backBuffer), End: end}}, nil
}

// SetClickHandler installs the click handler; nil detaches.
func (p *Player) SetClickHandler(h func()) {
	p.clickMu.Lock()
	defer p.clickMu.Unlock()
	p.click = h
}

// Click delivers a click to the installed handler.
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

// ErrorCounts returns stderr error categories and their counts.
func (p *Player) ErrorCounts() map[string]int {
	return p.stderr.CountErrors()
}

// RecentStderr returns up to n recent stderr lines, oldest first.
func (p *Player) RecentStderr(n int) []string {
	return p.stderr.RecentLines(n)
}

// SegmentStats returns the HLS request counters.
func (p *Player) SegmentStats() SegmentStats {
	return p.segments.Stats()
}

// exitCode extracts the exit code from a Wait error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}
	return 1
}
