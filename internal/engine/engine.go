// Package engine implements the notification aggregation and clustering
// engine: ingestion of heterogeneous backend events, burst clustering,
// the bounded notification store, persistence, and the tray state machine.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/winters27/streamnook/internal/core/kv"
	"github.com/winters27/streamnook/internal/core/notify"
)

// DefaultEnrichTimeout bounds optional payload enrichment lookups.
const DefaultEnrichTimeout = 1500 * time.Millisecond

// Enricher optionally decorates payloads before insertion, e.g. resolving
// a whisper sender's avatar. Lookups are attempted with a bounded timeout;
// on failure the notification is inserted without the enrichment.
type Enricher interface {
	AvatarURL(ctx context.Context, username string) (string, error)
}

// Options configures an Engine.
type Options struct {
	// KV is the durable slot notification history persists into. Required.
	KV kv.KV
	// Clock drives all engine timers. Defaults to the system clock.
	Clock Clock

	Capacity      int
	IdleWindow    time.Duration
	Preview       time.Duration
	Retention     time.Duration
	EventCap      int
	EnrichTimeout time.Duration

	// Prefs supplies the externally owned sound preference flags.
	Prefs func() SoundPrefs
	// Method is the presentation surface this process renders with.
	Method Method
	// Enricher is optional.
	Enricher Enricher
	// OnTrayChange observes presenter transitions. Optional.
	OnTrayChange func(TrayState)

	Logger zerolog.Logger
}

// Engine owns the full ingestion -> cluster -> store -> persist pipeline.
// All mutations of shared state are serialized through one lock, so two
// near-simultaneous events for the same category can never interleave
// their accumulate/flush steps.
type Engine struct {
	mu  sync.Mutex
	log zerolog.Logger

	clock     Clock
	store     *notify.Store
	ingestor  *Ingestor
	agg       *Aggregator
	persister *Persister
	presenter *Presenter
	router    *Router

	enricher      Enricher
	enrichTimeout time.Duration

	subs   map[string]*subscription
	closed bool
}

type subscription struct {
	source Source
	done   chan struct{}
	once   sync.Once
}

// New builds an engine and restores the persisted notification history.
func New(opts Options) (*Engine, error) {
	if opts.KV == nil {
		return nil, fmt.Errorf("engine: KV store is required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.EnrichTimeout <= 0 {
		opts.EnrichTimeout = DefaultEnrichTimeout
	}

	e := &Engine{
		log:           opts.Logger,
		clock:         opts.Clock,
		store:         notify.NewStore(opts.Capacity),
		ingestor:      NewIngestor(opts.Clock),
		enricher:      opts.Enricher,
		enrichTimeout: opts.EnrichTimeout,
		subs:          make(map[string]*subscription),
	}

	e.agg = NewAggregator(AggregatorOptions{
		Clock:      opts.Clock,
		IdleWindow: opts.IdleWindow,
		EventCap:   opts.EventCap,
		OnIdle:     e.onClusterIdle,
		Logger:     opts.Logger,
	})

	e.persister = NewPersister(PersisterOptions{
		KV:        opts.KV,
		Retention: opts.Retention,
		Limit:     e.store.Capacity(),
		Clock:     opts.Clock,
		Logger:    opts.Logger,
	})

	e.presenter = NewPresenter(PresenterOptions{
		Clock:            opts.Clock,
		Preview:          opts.Preview,
		OnChange:         opts.OnTrayChange,
		OnPreviewElapsed: e.onPreviewElapsed,
		Logger:           opts.Logger,
	})

	e.router = NewRouter(RouterOptions{
		Prefs:  opts.Prefs,
		Method: opts.Method,
		Logger: opts.Logger,
	})

	e.store.Replace(e.persister.Load(context.Background()))

	return e, nil
}

// Router exposes the delivery router so external collaborators can attach
// sinks and the sound-cue callback.
func (e *Engine) Router() *Router {
	return e.router
}

// Subscribe attaches an event source and starts ingesting from it. The
// returned unsubscribe handle is idempotent and must be invoked during
// teardown; Close invokes it for any source still attached.
func (e *Engine) Subscribe(src Source) (func(), error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine: subscribe %q: engine is closed", src.ID())
	}
	if _, exists := e.subs[src.ID()]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine: source %q already subscribed", src.ID())
	}
	sub := &subscription{source: src, done: make(chan struct{})}
	e.subs[src.ID()] = sub
	e.mu.Unlock()

	go func() {
		defer close(sub.done)
		for raw := range src.Events() {
			e.handleRaw(src.ID(), raw)
		}
	}()

	e.log.Info().Str("source", src.ID()).Msg("source subscribed")

	return func() { e.unsubscribe(sub) }, nil
}

func (e *Engine) unsubscribe(sub *subscription) {
	sub.once.Do(func() {
		if err := sub.source.Close(); err != nil {
			e.log.Debug().Err(err).Str("source", sub.source.ID()).Msg("source close failed")
		}
		<-sub.done

		e.mu.Lock()
		delete(e.subs, sub.source.ID())
		e.mu.Unlock()

		e.log.Info().Str("source", sub.source.ID()).Msg("source unsubscribed")
	})
}

// handleRaw validates, normalizes, and routes one inbound event. Malformed
// events are dropped with a diagnostic; ingestion never halts.
func (e *Engine) handleRaw(sourceID string, raw RawEvent) {
	norm, err := e.ingestor.Normalize(raw)
	if err != nil {
		e.log.Warn().Err(err).
			Str("source", sourceID).
			Str("kind", raw.Kind).
			Msg("event dropped")
		return
	}

	if norm.Cluster != nil {
		e.mu.Lock()
		if !e.closed {
			e.agg.Accumulate(norm.Kind, *norm.Cluster)
		}
		e.mu.Unlock()
		return
	}

	n := *norm.Notification
	n = e.enrich(n)

	e.mu.Lock()
	e.insertLocked(n)
	e.mu.Unlock()
}

// enrich attempts optional payload enrichment with a bounded timeout. The
// base insertion path is never gated on it: on failure or timeout the
// notification proceeds unchanged.
func (e *Engine) enrich(n notify.Notification) notify.Notification {
	whisper, ok := n.Payload.(notify.WhisperPayload)
	if !ok || whisper.AvatarURL != "" || e.enricher == nil {
		return n
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.enrichTimeout)
	defer cancel()

	url, err := e.enricher.AvatarURL(ctx, whisper.Sender)
	if err != nil {
		e.log.Debug().Err(err).Str("sender", whisper.Sender).Msg("whisper enrichment skipped")
		return n
	}

	whisper.AvatarURL = url
	n.Payload = whisper
	return n
}

// insertLocked runs the store -> persist -> presenter -> sinks pipeline.
// Caller holds e.mu.
func (e *Engine) insertLocked(n notify.Notification) {
	if e.closed {
		e.log.Debug().Str("id", n.ID).Msg("insert after close discarded")
		return
	}

	e.store.Insert(n)
	e.persister.Save(context.Background(), e.store.List())
	e.presenter.NotificationArrived()
	e.router.Dispatch(n)
}

// onClusterIdle runs on a timer goroutine when a category's idle window
// elapses. Stale timers no-op inside FlushExpired.
func (e *Engine) onClusterIdle(kind notify.Kind, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if n, ok := e.agg.FlushExpired(kind, gen); ok {
		e.insertLocked(n)
	}
}

// onPreviewElapsed runs on a timer goroutine when the preview auto-hide
// window elapses.
func (e *Engine) onPreviewElapsed(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.presenter.PreviewElapsed(gen)
}

// FlushNow force-flushes a category ahead of its idle window. No-op for
// empty or absent categories.
func (e *Engine) FlushNow(kind notify.Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if n, ok := e.agg.Flush(kind); ok {
		e.insertLocked(n)
	}
}

// PendingClusters returns the clusterable categories currently holding
// unflushed state.
func (e *Engine) PendingClusters() []notify.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.PendingKinds()
}

// Notifications returns the current history, newest first.
func (e *Engine) Notifications() []notify.Notification {
	return e.store.List()
}

// UnreadCount returns the number of unread notifications.
func (e *Engine) UnreadCount() int {
	return e.store.UnreadCount()
}

// TrayState returns the presenter's current state.
func (e *Engine) TrayState() TrayState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presenter.State()
}

// Activate handles the user opening the tray control.
func (e *Engine) Activate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.presenter.Activate()
}

// Dismiss handles the user closing the expanded panel.
func (e *Engine) Dismiss() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.presenter.Dismiss()
}

// ActivateEntry marks the entry read and resolves the navigation request
// its activation implies, for an external router to execute.
func (e *Engine) ActivateEntry(id string) (ActionRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.store.Get(id)
	if !ok {
		return ActionRequest{}, false
	}
	if e.store.MarkRead(id) {
		e.persister.Save(context.Background(), e.store.List())
	}
	return ResolveAction(n), true
}

// MarkRead marks one entry read.
func (e *Engine) MarkRead(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.MarkRead(id) {
		e.persister.Save(context.Background(), e.store.List())
	}
}

// MarkAllRead marks every entry read.
func (e *Engine) MarkAllRead() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.MarkAllRead() > 0 {
		e.persister.Save(context.Background(), e.store.List())
	}
}

// Remove deletes one entry.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.Remove(id) {
		e.persister.Save(context.Background(), e.store.List())
	}
}

// ClearAll empties the history.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.ClearAll()
	e.persister.Save(context.Background(), e.store.List())
}

// Close tears the engine down: detach every source, cancel every pending
// timer, force-flush every non-empty cluster, and save synchronously.
// Skipping the flush would silently lose clustered-but-unflushed events,
// so this runs unconditionally, not best-effort.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	subs := make([]*subscription, 0, len(e.subs))
	for _, sub := range e.subs {
		subs = append(subs, sub)
	}
	e.mu.Unlock()

	// Detach sources first so no new events race the final flush.
	for _, sub := range subs {
		e.unsubscribe(sub)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.agg.CancelTimers()
	e.presenter.Close()

	for _, kind := range e.agg.PendingKinds() {
		if n, ok := e.agg.Flush(kind); ok {
			e.store.Insert(n)
			e.router.Dispatch(n)
		}
	}

	e.persister.Save(context.Background(), e.store.List())
	e.closed = true

	e.log.Info().Msg("engine closed")
	return nil
}
