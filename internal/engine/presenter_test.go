package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// newTestPresenter wires the auto-hide callback straight back into
// PreviewElapsed, as the engine does under its lock.
func newTestPresenter(clock *fakeClock) (*Presenter, *[]TrayState) {
	var transitions []TrayState
	var p *Presenter
	p = NewPresenter(PresenterOptions{
		Clock:            clock,
		Preview:          3 * time.Second,
		OnChange:         func(s TrayState) { transitions = append(transitions, s) },
		OnPreviewElapsed: func(gen uint64) { p.PreviewElapsed(gen) },
		Logger:           zerolog.Nop(),
	})
	return p, &transitions
}

func TestPresenter_InitialState(t *testing.T) {
	p, _ := newTestPresenter(newFakeClock())
	assert.Equal(t, CollapsedIdle, p.State())
}

func TestPresenter_PreviewAutoHides(t *testing.T) {
	clock := newFakeClock()
	p, transitions := newTestPresenter(clock)

	p.NotificationArrived()
	assert.Equal(t, CollapsedPreview, p.State())

	clock.Advance(2999 * time.Millisecond)
	assert.Equal(t, CollapsedPreview, p.State())

	clock.Advance(1 * time.Millisecond)
	assert.Equal(t, CollapsedIdle, p.State())
	assert.Equal(t, []TrayState{CollapsedPreview, CollapsedIdle}, *transitions)
}

func TestPresenter_ArrivalDuringPreviewRearmsTimer(t *testing.T) {
	clock := newFakeClock()
	p, _ := newTestPresenter(clock)

	p.NotificationArrived()
	clock.Advance(2 * time.Second)
	p.NotificationArrived() // re-arm; old timer must not fire

	clock.Advance(2 * time.Second)
	assert.Equal(t, CollapsedPreview, p.State(), "window restarts on each arrival")

	clock.Advance(1 * time.Second)
	assert.Equal(t, CollapsedIdle, p.State())
}

func TestPresenter_ActivateCancelsPreviewTimer(t *testing.T) {
	clock := newFakeClock()
	p, _ := newTestPresenter(clock)

	p.NotificationArrived()
	p.Activate()
	assert.Equal(t, Expanded, p.State())

	// The cancelled timer elapsing must not collapse the panel.
	clock.Advance(5 * time.Second)
	assert.Equal(t, Expanded, p.State())
}

func TestPresenter_ActivateFromIdle(t *testing.T) {
	p, _ := newTestPresenter(newFakeClock())

	p.Activate()
	assert.Equal(t, Expanded, p.State())
}

func TestPresenter_ArrivalWhileExpandedIsIgnored(t *testing.T) {
	clock := newFakeClock()
	p, transitions := newTestPresenter(clock)

	p.Activate()
	before := len(*transitions)

	p.NotificationArrived()
	assert.Equal(t, Expanded, p.State(), "expanded view observes the store live; no forced preview")
	assert.Len(t, *transitions, before, "no transition fires")

	clock.Advance(10 * time.Second)
	assert.Equal(t, Expanded, p.State())
}

func TestPresenter_DismissReturnsToIdle(t *testing.T) {
	p, _ := newTestPresenter(newFakeClock())

	p.Activate()
	p.Dismiss()
	assert.Equal(t, CollapsedIdle, p.State())

	// The machine is cyclic: it keeps working after a full lap.
	p.NotificationArrived()
	assert.Equal(t, CollapsedPreview, p.State())
}

func TestPresenter_StaleTimerAfterCloseIsNoOp(t *testing.T) {
	clock := newFakeClock()
	p, _ := newTestPresenter(clock)

	p.NotificationArrived()
	p.Close()

	clock.Advance(5 * time.Second)
	assert.Equal(t, CollapsedPreview, p.State(), "no transition after teardown cancelled the timer")
}

func TestTrayState_String(t *testing.T) {
	assert.Equal(t, "collapsed-idle", CollapsedIdle.String())
	assert.Equal(t, "collapsed-preview", CollapsedPreview.String())
	assert.Equal(t, "expanded", Expanded.String())
}
