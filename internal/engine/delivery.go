package engine

import (
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/winters27/streamnook/internal/core/notify"
)

// Method is a presentation surface for notifications. Sound preferences
// can gate cues per method.
type Method string

const (
	MethodIsland Method = "island"
	MethodToast  Method = "toast"
	MethodNative Method = "native"
)

// SoundPrefs are externally supplied, read-only preference flags gating
// audio cues. The engine never mutates them.
type SoundPrefs struct {
	// Enabled is the master switch.
	Enabled bool
	// Style selects the cue sample set handed to the sound sink.
	Style string
	// Kinds disables cues per kind; absent kinds are enabled.
	Kinds map[notify.Kind]bool
	// Methods disables cues per presentation method; absent methods are
	// enabled.
	Methods map[Method]bool
	// MutePatterns are glob patterns matched against the kind.
	MutePatterns []string
}

// Sink consumes canonical notifications: a toast renderer, a native OS
// notifier, a stdout stream. Delivery is best-effort from the engine's
// perspective; a sink must not block.
type Sink interface {
	Deliver(n notify.Notification)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(n notify.Notification)

// Deliver implements Sink.
func (f SinkFunc) Deliver(n notify.Notification) { f(n) }

// Router fans each inserted-or-flushed notification out to the registered
// sinks and raises sound cues when the preference flags allow it.
type Router struct {
	mu     sync.Mutex
	sinks  []*sinkReg
	sound  func(kind notify.Kind, style string)
	prefs  func() SoundPrefs
	method Method
	log    zerolog.Logger
}

// sinkReg wraps a sink in a uniquely addressable registration so remove
// handles work for uncomparable sink values (e.g. SinkFunc).
type sinkReg struct {
	sink Sink
}

// RouterOptions configures a Router.
type RouterOptions struct {
	// Prefs supplies the current sound preference flags. Called on every
	// dispatch so external preference changes take effect immediately.
	Prefs func() SoundPrefs
	// Method is the presentation surface this process renders with.
	Method Method
	Logger zerolog.Logger
}

// NewRouter creates a router with no sinks.
func NewRouter(opts RouterOptions) *Router {
	if opts.Prefs == nil {
		opts.Prefs = func() SoundPrefs { return SoundPrefs{} }
	}
	if opts.Method == "" {
		opts.Method = MethodIsland
	}
	return &Router{
		prefs:  opts.Prefs,
		method: opts.Method,
		log:    opts.Logger,
	}
}

// AddSink registers a sink and returns an idempotent remove handle.
func (r *Router) AddSink(s Sink) func() {
	reg := &sinkReg{sink: s}

	r.mu.Lock()
	r.sinks = append(r.sinks, reg)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, candidate := range r.sinks {
				if candidate == reg {
					r.sinks = append(r.sinks[:i], r.sinks[i+1:]...)
					break
				}
			}
		})
	}
}

// SetSoundCue registers the audio-cue callback.
func (r *Router) SetSoundCue(fn func(kind notify.Kind, style string)) {
	r.mu.Lock()
	r.sound = fn
	r.mu.Unlock()
}

// Dispatch hands n to every sink and, when warranted, raises a sound cue.
// Sink panics are contained so a misbehaving consumer cannot take down
// the engine.
func (r *Router) Dispatch(n notify.Notification) {
	r.mu.Lock()
	sinks := make([]*sinkReg, len(r.sinks))
	copy(sinks, r.sinks)
	sound := r.sound
	r.mu.Unlock()

	for _, reg := range sinks {
		r.deliver(reg.sink, n)
	}

	prefs := r.prefs()
	if sound != nil && r.soundAllowed(prefs, n.Kind) {
		sound(n.Kind, prefs.Style)
	}
}

func (r *Router) deliver(s Sink, n notify.Notification) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.log.Error().
				Str("id", n.ID).
				Str("kind", string(n.Kind)).
				Interface("panic", recovered).
				Msg("notification sink panicked")
		}
	}()
	s.Deliver(n)
}

func (r *Router) soundAllowed(prefs SoundPrefs, kind notify.Kind) bool {
	if !prefs.Enabled {
		return false
	}
	if enabled, ok := prefs.Kinds[kind]; ok && !enabled {
		return false
	}
	if enabled, ok := prefs.Methods[r.method]; ok && !enabled {
		return false
	}
	for _, pattern := range prefs.MutePatterns {
		if ok, err := doublestar.Match(pattern, string(kind)); err == nil && ok {
			return false
		}
	}
	return true
}

// ActionType classifies the navigation request a notification activation
// resolves to.
type ActionType string

const (
	ActionOpenStream       ActionType = "open_stream"
	ActionOpenConversation ActionType = "open_conversation"
	ActionOpenSettings     ActionType = "open_settings"
	ActionOpenOverlay      ActionType = "open_overlay"
)

// ActionRequest is a kind-specific navigation request for an external
// router collaborator to execute. The engine never performs navigation
// itself.
type ActionRequest struct {
	Type   ActionType
	Target string
}

// ResolveAction maps a notification to the navigation request its
// activation implies. The type switch is exhaustive over the sealed
// payload set.
func ResolveAction(n notify.Notification) ActionRequest {
	switch p := n.Payload.(type) {
	case notify.LivePayload:
		return ActionRequest{Type: ActionOpenStream, Target: p.Streamer}
	case notify.WhisperPayload:
		target := p.ConversationID
		if target == "" {
			target = p.Sender
		}
		return ActionRequest{Type: ActionOpenConversation, Target: target}
	case notify.UpdatePayload:
		return ActionRequest{Type: ActionOpenSettings, Target: "updates"}
	case notify.DropsPayload:
		return ActionRequest{Type: ActionOpenOverlay, Target: "drops"}
	case notify.ChannelPointsPayload:
		return ActionRequest{Type: ActionOpenOverlay, Target: "channel-points"}
	case notify.BadgePayload:
		return ActionRequest{Type: ActionOpenSettings, Target: "badges"}
	default:
		return ActionRequest{Type: ActionOpenOverlay, Target: "notifications"}
	}
}
