package engine

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultPreviewDuration is how long the collapsed preview stays visible
// without user interaction.
const DefaultPreviewDuration = 3 * time.Second

// TrayState is the UI state of the notification tray control.
type TrayState int

const (
	// CollapsedIdle is the resting state: control collapsed, no preview.
	CollapsedIdle TrayState = iota
	// CollapsedPreview shows the collapsed control briefly highlighted
	// after a new notification arrives.
	CollapsedPreview
	// Expanded is the open panel, entered on user activation.
	Expanded
)

// String implements fmt.Stringer.
func (s TrayState) String() string {
	switch s {
	case CollapsedIdle:
		return "collapsed-idle"
	case CollapsedPreview:
		return "collapsed-preview"
	case Expanded:
		return "expanded"
	default:
		return "unknown"
	}
}

// Presenter is the tray's terminal-free cyclic state machine, driven by
// notification arrivals and user input. It owns the preview auto-hide
// timer; the rendering of the tray itself belongs to an external
// collaborator observing OnChange.
type Presenter struct {
	clock            Clock
	preview          time.Duration
	onChange         func(TrayState)
	onPreviewElapsed func(gen uint64)
	log              zerolog.Logger

	// Guarded by the engine's serialization lock, like the aggregator.
	state TrayState
	timer Timer
	gen   uint64
}

// PresenterOptions configures a Presenter.
type PresenterOptions struct {
	Clock   Clock
	Preview time.Duration
	// OnChange is invoked after every state transition. It fires on the
	// caller's goroutine (or the timer goroutine for auto-hide) and must
	// not block.
	OnChange func(TrayState)
	// OnPreviewElapsed re-enters the engine lock and calls PreviewElapsed.
	OnPreviewElapsed func(gen uint64)
	Logger           zerolog.Logger
}

// NewPresenter creates a presenter in CollapsedIdle.
func NewPresenter(opts PresenterOptions) *Presenter {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Preview <= 0 {
		opts.Preview = DefaultPreviewDuration
	}
	return &Presenter{
		clock:            opts.Clock,
		preview:          opts.Preview,
		onChange:         opts.OnChange,
		onPreviewElapsed: opts.OnPreviewElapsed,
		log:              opts.Logger,
	}
}

// State returns the current tray state.
func (p *Presenter) State() TrayState {
	return p.state
}

// NotificationArrived reacts to a new notification reaching the store.
// From CollapsedIdle it enters CollapsedPreview and arms the auto-hide
// timer; from CollapsedPreview it re-arms the timer; in Expanded it does
// nothing, since the open panel observes the store live.
func (p *Presenter) NotificationArrived() {
	switch p.state {
	case Expanded:
		return
	case CollapsedIdle, CollapsedPreview:
		p.transition(CollapsedPreview)
		p.armPreviewTimer()
	}
}

// PreviewElapsed handles the auto-hide timer. A stale timer (superseded
// generation) is a no-op.
func (p *Presenter) PreviewElapsed(gen uint64) {
	if p.gen != gen || p.state != CollapsedPreview {
		return
	}
	p.timer = nil
	p.transition(CollapsedIdle)
}

// Activate handles the user opening the control: any pending preview
// timer is cancelled and the panel expands.
func (p *Presenter) Activate() {
	p.cancelTimer()
	if p.state != Expanded {
		p.transition(Expanded)
	}
}

// Dismiss handles the user closing the panel (explicit close or
// click-outside), returning to CollapsedIdle.
func (p *Presenter) Dismiss() {
	p.cancelTimer()
	if p.state != CollapsedIdle {
		p.transition(CollapsedIdle)
	}
}

// Close cancels any pending timer at teardown.
func (p *Presenter) Close() {
	p.cancelTimer()
}

func (p *Presenter) armPreviewTimer() {
	// Re-arm cancels the pending timer; never run both.
	p.cancelTimer()
	p.gen++
	gen := p.gen
	p.timer = p.clock.AfterFunc(p.preview, func() {
		p.onPreviewElapsed(gen)
	})
}

func (p *Presenter) cancelTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++ // invalidate any timer that already fired but has not run
}

func (p *Presenter) transition(next TrayState) {
	if p.state == next && next != CollapsedPreview {
		return
	}
	prev := p.state
	p.state = next
	p.log.Debug().Stringer("from", prev).Stringer("to", next).Msg("tray state changed")
	if p.onChange != nil {
		p.onChange(next)
	}
}
