// Package engine holds what playback engines share: the Engine interface
// the session drives and the player state machine.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/randomizedcoder/go-playback-probe/internal/binder"
	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

// Engine is a playback engine: a player and its media surface.
type Engine interface {
	binder.Player
	binder.MediaSurface

	// Load starts loading the stream.
	Load() error

	// Stop unloads the stream.
	Stop() error

	// Run drives playback until ctx is done or the stream ends.
	Run(ctx context.Context) error

	// Click delivers a click to the surface, reporting whether a handler
	// took it.
	Click() bool

	// Describe names the source for labels and logs.
	Describe() string
}

// ErrInvalidTransition is returned for a command the current state does
// not accept.
var ErrInvalidTransition = errors.New("invalid transition")

// State machine events.
const (
	EventLoad   = "load"
	EventReady  = "ready"
	EventPlay   = "play"
	EventPause  = "pause"
	EventStall  = "stall"
	EventResume = "resume"
	EventEnd    = "end"
	EventStop   = "stop"
)

func names(s ...playback.State) []string {
	out := make([]string, len(s))
	for i, st := range s {
		out[i] = string(st)
	}
	return out
}

// Machine is the player state machine. State changes are queued as
// playerStateChange notifications for the owner to emit with Drain once
// its own lock is released.
//
// Machine is not safe for concurrent use; the owning engine serializes
// access.
type Machine struct {
	fsm     *fsm.FSM
	pending []playback.Notification
}

// NewMachine returns a machine in STOPPED.
func NewMachine() *Machine {
	m := &Machine{}
	m.fsm = fsm.NewFSM(
		string(playback.StateStopped),
		fsm.Events{
			{Name: EventLoad, Src: names(playback.StateStopped, playback.StateEnded), Dst: string(playback.StateLoading)},
			{Name: EventReady, Src: names(playback.StateLoading), Dst: string(playback.StateLoaded)},
			{Name: EventPlay, Src: names(playback.StateLoaded, playback.StatePaused), Dst: string(playback.StatePlaying)},
			{Name: EventPause, Src: names(playback.StatePlaying, playback.StateBuffering), Dst: string(playback.StatePaused)},
			{Name: EventStall, Src: names(playback.StatePlaying), Dst: string(playback.StateBuffering)},
			{Name: EventResume, Src: names(playback.StateBuffering), Dst: string(playback.StatePlaying)},
			{Name: EventEnd, Src: names(playback.StatePlaying, playback.StateBuffering), Dst: string(playback.StateEnded)},
			{Name: EventStop, Src: names(
				playback.StateLoading, playback.StateLoaded, playback.StatePlaying,
				playback.StatePaused, playback.StateBuffering, playback.StateEnded,
			), Dst: string(playback.StateStopped)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.pending = append(m.pending, playback.Notification{
					Event: playback.EventPlayerStateChange,
					State: playback.State(e.Dst),
				})
			},
		},
	)
	return m
}

// Fire applies event. An event that leaves the state unchanged is not an
// error.
func (m *Machine) Fire(event string) error {
	from := m.fsm.Current()
	if err := m.fsm.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return nil
		}
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
	}
	return nil
}

// Can reports whether event is accepted in the current state.
func (m *Machine) Can(event string) bool {
	return m.fsm.Can(event)
}

// Current returns the current state.
func (m *Machine) Current() playback.State {
	return playback.State(m.fsm.Current())
}

// Queue appends a notification behind any pending state changes.
func (m *Machine) Queue(n playback.Notification) {
	m.pending = append(m.pending, n)
}

// Drain returns and clears the queued notifications.
func (m *Machine) Drain() []playback.Notification {
	out := m.pending
	m.pending = nil
	return out
}
