package binder

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/looplab/fsm"

	"github.com/randomizedcoder/go-playback-probe/internal/playback"
)

// Click-toggle attachment states and events.
const (
	clickDetached = "detached"
	clickAttached = "attached"

	clickEventAttach = "attach"
	clickEventDetach = "detach"
)

// clickToggle attaches a play/pause toggle to the surface's click input
// while content is loaded.
//
//	DETACHED ──LOADED──▶ ATTACHED
//	ATTACHED ──LOADING / STOPPED──▶ DETACHED
//
// Other states leave the attachment unchanged. After shutdown the machine
// ignores every state.
type clickToggle struct {
	player  Player
	surface MediaSurface
	logger  *slog.Logger

	mu      sync.Mutex
	machine *fsm.FSM
	closed  bool
}

func newClickToggle(player Player, surface MediaSurface, logger *slog.Logger) *clickToggle {
	c := &clickToggle{
		player:  player,
		surface: surface,
		logger:  logger,
	}
	c.machine = fsm.NewFSM(
		clickDetached,
		fsm.Events{
			{Name: clickEventAttach, Src: []string{clickDetached, clickAttached}, Dst: clickAttached},
			{Name: clickEventDetach, Src: []string{clickAttached, clickDetached}, Dst: clickDetached},
		},
		fsm.Callbacks{
			"enter_" + clickAttached: func(_ context.Context, _ *fsm.Event) {
				c.surface.SetClickHandler(c.toggle)
				c.logger.Debug("click_toggle_attached")
			},
			"enter_" + clickDetached: func(_ context.Context, _ *fsm.Event) {
				c.surface.SetClickHandler(nil)
				c.logger.Debug("click_toggle_detached")
			},
		},
	)
	return c
}

// handleState advances the machine for a player state change.
func (c *clickToggle) handleState(state playback.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	switch state {
	case playback.StateLoaded:
		c.fire(clickEventAttach)
	case playback.StateLoading, playback.StateStopped:
		c.fire(clickEventDetach)
	}
}

// shutdown detaches the handler for good.
func (c *clickToggle) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.fire(clickEventDetach)
}

// fire sends event to the machine. Must be called with mu held.
func (c *clickToggle) fire(event string) {
	err := c.machine.Event(context.Background(), event)
	if err == nil {
		return
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}
	c.logger.Warn("click_toggle_transition_failed", "event", event, "error", err)
}

// toggle is the installed click handler.
func (c *clickToggle) toggle() {
	var (
		action string
		err    error
	)
	if c.player.State() == playback.StatePlaying {
		action = "pause"
		err = c.player.Pause()
	} else {
		action = "play"
		err = c.player.Play()
	}
	if err != nil {
		c.logger.Warn("click_toggle_failed", "action", action, "error", err)
		return
	}
	c.logger.Debug("click_toggle", "action", action)
}
