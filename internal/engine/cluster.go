package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/winters27/streamnook/internal/core/notify"
)

// DefaultIdleWindow is the debounce duration after the last event in a
// cluster before it is automatically flushed.
const DefaultIdleWindow = 3 * time.Second

// DefaultClusterEventCap bounds the contributing-event list per cluster.
const DefaultClusterEventCap = 25

// ClusterEvent is one raw contribution to a cluster: who granted the
// points, how many, and why.
type ClusterEvent struct {
	Channel string
	Reason  string
	Points  int64
	Balance int64
	At      time.Time
}

// clusterState accumulates events for one category between flushes.
// It exists only while a burst is in flight; flush destroys it.
type clusterState struct {
	total   int64
	balance int64
	count   int
	events  []ClusterEvent
	timer   Timer
	gen     uint64
}

// Aggregator batches bursts of same-category events into single summary
// notifications. Each category owns one idle timer; a new event re-arms it,
// cancelling the previous one, and timer expiry flushes the cluster.
//
// The aggregator performs no locking of its own: every method assumes the
// caller holds the engine's serialization lock, so accumulate/flush steps
// for the same category can never interleave with store mutations.
type Aggregator struct {
	clock    Clock
	idle     time.Duration
	eventCap int
	onIdle   func(kind notify.Kind, gen uint64)
	log      zerolog.Logger

	states map[notify.Kind]*clusterState
	gen    uint64
}

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	Clock      Clock
	IdleWindow time.Duration
	EventCap   int
	// OnIdle fires on the clock's timer goroutine when a category's idle
	// window elapses. The callback must re-enter through the engine lock
	// and call FlushExpired with the given generation.
	OnIdle func(kind notify.Kind, gen uint64)
	Logger zerolog.Logger
}

// NewAggregator creates an aggregator. OnIdle is required.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = DefaultIdleWindow
	}
	if opts.EventCap <= 0 {
		opts.EventCap = DefaultClusterEventCap
	}
	return &Aggregator{
		clock:    opts.Clock,
		idle:     opts.IdleWindow,
		eventCap: opts.EventCap,
		onIdle:   opts.OnIdle,
		log:      opts.Logger,
		states:   make(map[notify.Kind]*clusterState),
	}
}

// Accumulate folds ev into the category's cluster, creating it on the
// first event of a burst, and re-arms the category's idle timer.
func (a *Aggregator) Accumulate(kind notify.Kind, ev ClusterEvent) {
	st, ok := a.states[kind]
	if !ok {
		st = &clusterState{}
		a.states[kind] = st
	}

	st.total += ev.Points
	st.balance = ev.Balance
	st.count++
	if len(st.events) < a.eventCap {
		st.events = append(st.events, ev)
	}

	// Re-arm: cancel the pending timer rather than stacking a second one.
	if st.timer != nil {
		st.timer.Stop()
	}
	a.gen++
	gen := a.gen
	st.gen = gen
	st.timer = a.clock.AfterFunc(a.idle, func() {
		a.onIdle(kind, gen)
	})

	a.log.Debug().
		Str("kind", string(kind)).
		Int64("points", ev.Points).
		Int64("total", st.total).
		Int("events", st.count).
		Msg("cluster accumulated")
}

// FlushExpired flushes the category only when gen still identifies its
// pending timer. A stale timer that lost the Stop race arrives here with
// an old generation and becomes a guaranteed no-op instead of flushing a
// cluster that has since been re-armed or already flushed.
func (a *Aggregator) FlushExpired(kind notify.Kind, gen uint64) (notify.Notification, bool) {
	st, ok := a.states[kind]
	if !ok || st.gen != gen {
		return notify.Notification{}, false
	}
	return a.Flush(kind)
}

// Flush converts the category's accumulated state into exactly one
// notification and destroys the state. Flushing an empty or absent
// category is a no-op and returns false.
func (a *Aggregator) Flush(kind notify.Kind) (notify.Notification, bool) {
	st, ok := a.states[kind]
	if !ok || st.count == 0 {
		return notify.Notification{}, false
	}

	if st.timer != nil {
		st.timer.Stop()
	}
	delete(a.states, kind)

	n := notify.Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: a.clock.Now(),
		Payload:   buildPointsPayload(st),
	}

	a.log.Debug().
		Str("kind", string(kind)).
		Str("id", n.ID).
		Int64("total", st.total).
		Int("events", st.count).
		Msg("cluster flushed")

	return n, true
}

// PendingKinds returns the categories that currently hold unflushed state.
func (a *Aggregator) PendingKinds() []notify.Kind {
	kinds := make([]notify.Kind, 0, len(a.states))
	for kind, st := range a.states {
		if st.count > 0 {
			kinds = append(kinds, kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// CancelTimers stops every pending idle timer without flushing. Used at
// teardown before the force-flush pass so no timer fires mid-shutdown.
func (a *Aggregator) CancelTimers() {
	for _, st := range a.states {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
	}
}

// buildPointsPayload groups the contributing events by sub-key (channel
// name, or reason code when no channel identity is present), sorts the
// groups by magnitude descending then key ascending, and renders a
// deterministic summary line.
func buildPointsPayload(st *clusterState) notify.ChannelPointsPayload {
	type group struct {
		points int64
		count  int
	}
	groups := make(map[string]*group)
	for _, ev := range st.events {
		key := ev.Channel
		if key == "" {
			key = ev.Reason
		}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.points += ev.Points
		g.count++
	}

	breakdown := make([]notify.PointsGroup, 0, len(groups))
	for key, g := range groups {
		breakdown = append(breakdown, notify.PointsGroup{Key: key, Points: g.points, Count: g.count})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Points != breakdown[j].Points {
			return breakdown[i].Points > breakdown[j].Points
		}
		return breakdown[i].Key < breakdown[j].Key
	})

	parts := make([]string, 0, len(breakdown))
	for _, g := range breakdown {
		parts = append(parts, fmt.Sprintf("%s +%d", g.Key, g.Points))
	}

	return notify.ChannelPointsPayload{
		Total:     st.total,
		Breakdown: breakdown,
		Summary:   fmt.Sprintf("Earned %d channel points: %s", st.total, strings.Join(parts, ", ")),
		Balance:   st.balance,
	}
}
