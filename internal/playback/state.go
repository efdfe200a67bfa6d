// Package playback holds the vocabulary shared by playback engines, the
// instrumentation binder and metric sinks: player states, player events,
// metric channel names and buffered time ranges.
package playback

// State is a player state as reported by a playback engine.
//
// The values mirror the state names used by adaptive-streaming players:
//
//	STOPPED ──load──▶ LOADING ──▶ LOADED ──play──▶ PLAYING ◀──▶ PAUSED
//	                                                 │  ▲
//	                                         BUFFERING / SEEKING
//	                                                 │
//	                                               ENDED
type State string

const (
	StateStopped   State = "STOPPED"
	StateLoading   State = "LOADING"
	StateLoaded    State = "LOADED"
	StatePlaying   State = "PLAYING"
	StatePaused    State = "PAUSED"
	StateBuffering State = "BUFFERING"
	StateSeeking   State = "SEEKING"
	StateEnded     State = "ENDED"
	StateReloading State = "RELOADING"
)

// String returns the state name.
func (s State) String() string {
	if s == "" {
		return "UNKNOWN"
	}
	return string(s)
}

// IsActive returns true once content is loaded and has not been stopped.
func (s State) IsActive() bool {
	switch s {
	case StateLoaded, StatePlaying, StatePaused, StateBuffering, StateSeeking, StateEnded, StateReloading:
		return true
	default:
		return false
	}
}

// Event names a player notification.
type Event string

const (
	EventAudioBitrateChange Event = "audioBitrateChange"
	EventVideoBitrateChange Event = "videoBitrateChange"
	EventPlayerStateChange  Event = "playerStateChange"
)

// Notification is the payload delivered to event listeners.
// Only the field matching Event is meaningful.
type Notification struct {
	Event   Event
	State   State
	Bitrate float64 // bits per second
}

// Handler receives player notifications.
type Handler func(Notification)
