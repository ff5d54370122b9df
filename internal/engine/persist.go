package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/winters27/streamnook/internal/core/kv"
	"github.com/winters27/streamnook/internal/core/notify"
)

// DefaultRetention is the maximum age of a persisted entry still restored
// on load.
const DefaultRetention = 7 * 24 * time.Hour

const (
	snapshotNamespace = "notifications"
	snapshotKey       = "history"
)

// snapshot is the persisted shape of the notification history.
type snapshot struct {
	Entries []notify.Notification `json:"entries"`
	SavedAt int64                 `json:"saved_at"` // epoch ms
}

// Persister saves and restores the bounded notification history through
// the durable key-value slot. Saves are best-effort: failures are logged
// and never propagate to the aggregation path. Loads never fail: a
// missing key, parse error, or structurally invalid payload yields an
// empty history.
type Persister struct {
	slot      *kv.TypedKV[snapshot]
	retention time.Duration
	limit     int
	clock     Clock
	log       zerolog.Logger
}

// PersisterOptions configures a Persister.
type PersisterOptions struct {
	KV        kv.KV
	Retention time.Duration
	Limit     int
	Clock     Clock
	Logger    zerolog.Logger
}

// NewPersister creates a persister writing under the notifications
// namespace of the given KV store.
func NewPersister(opts PersisterOptions) *Persister {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Limit <= 0 {
		opts.Limit = notify.DefaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	return &Persister{
		slot:      kv.Scoped[snapshot](opts.KV, snapshotNamespace),
		retention: opts.Retention,
		limit:     opts.Limit,
		clock:     opts.Clock,
		log:       opts.Logger,
	}
}

// Save persists at most limit entries plus the save instant. Errors are
// logged at warn and swallowed; the session continues in memory-only mode.
func (p *Persister) Save(ctx context.Context, entries []notify.Notification) {
	if len(entries) > p.limit {
		entries = entries[:p.limit]
	}

	snap := snapshot{
		Entries: entries,
		SavedAt: p.clock.Now().UnixMilli(),
	}

	if err := p.slot.Set(ctx, snapshotKey, snap); err != nil {
		p.log.Warn().Err(err).Int("entries", len(entries)).Msg("failed to persist notification history")
	}
}

// Load restores the persisted history, newest first, excluding entries
// whose age relative to load time exceeds the retention window.
func (p *Persister) Load(ctx context.Context) []notify.Notification {
	snap, err := p.slot.Get(ctx, snapshotKey)
	if err != nil {
		p.log.Debug().Err(err).Msg("no notification history restored")
		return nil
	}

	cutoff := p.clock.Now().Add(-p.retention)

	entries := make([]notify.Notification, 0, len(snap.Entries))
	for _, n := range snap.Entries {
		if !n.Kind.Valid() || n.ID == "" {
			continue
		}
		if n.Timestamp.Before(cutoff) {
			continue
		}
		entries = append(entries, n)
		if len(entries) == p.limit {
			break
		}
	}

	return entries
}

// Clear deletes the persisted history.
func (p *Persister) Clear(ctx context.Context) error {
	return p.slot.Delete(ctx, snapshotKey)
}
