package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winters27/streamnook/internal/core/notify"
)

func newTestPersister(store *memKV, clock *fakeClock, limit int) *Persister {
	return NewPersister(PersisterOptions{
		KV:        store,
		Retention: 7 * 24 * time.Hour,
		Limit:     limit,
		Clock:     clock,
		Logger:    zerolog.Nop(),
	})
}

func TestPersister_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p := newTestPersister(newMemKV(), clock, 20)

	entries := []notify.Notification{
		{ID: "n2", Kind: notify.KindWhisper, Timestamp: clock.Now(), Read: true, Payload: notify.WhisperPayload{Sender: "bob", Message: "hi"}},
		{ID: "n1", Kind: notify.KindLive, Timestamp: clock.Now().Add(-time.Hour), Payload: notify.LivePayload{Streamer: "ana"}},
	}

	p.Save(ctx, entries)
	got := p.Load(ctx)

	require.Len(t, got, 2)
	// Order preserved, newest first; ids, kinds, and read flags intact.
	assert.Equal(t, "n2", got[0].ID)
	assert.Equal(t, notify.KindWhisper, got[0].Kind)
	assert.True(t, got[0].Read)
	assert.Equal(t, "n1", got[1].ID)
	assert.Equal(t, notify.KindLive, got[1].Kind)
	assert.False(t, got[1].Read)
}

func TestPersister_RetentionFilter(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p := newTestPersister(newMemKV(), clock, 20)

	p.Save(ctx, []notify.Notification{
		{ID: "fresh", Kind: notify.KindLive, Timestamp: clock.Now().Add(-6 * 24 * time.Hour), Payload: notify.LivePayload{Streamer: "ana"}},
		{ID: "stale", Kind: notify.KindLive, Timestamp: clock.Now().Add(-8 * 24 * time.Hour), Payload: notify.LivePayload{Streamer: "bob"}},
	})

	got := p.Load(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)
}

func TestPersister_RetentionMeasuredAtLoadTime(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p := newTestPersister(newMemKV(), clock, 20)

	p.Save(ctx, []notify.Notification{
		{ID: "n1", Kind: notify.KindLive, Timestamp: clock.Now(), Payload: notify.LivePayload{Streamer: "ana"}},
	})

	// Entry was fresh when saved; eight days later it is out of window.
	clock.Advance(8 * 24 * time.Hour)
	assert.Empty(t, p.Load(ctx))
}

func TestPersister_SaveBoundsEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	p := newTestPersister(newMemKV(), clock, 3)

	entries := make([]notify.Notification, 0, 10)
	for i := 0; i < 10; i++ {
		entries = append(entries, notify.Notification{
			ID:        string(rune('a' + i)),
			Kind:      notify.KindLive,
			Timestamp: clock.Now(),
			Payload:   notify.LivePayload{Streamer: "s"},
		})
	}

	p.Save(ctx, entries)
	got := p.Load(ctx)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
}

func TestPersister_LoadNeverFails(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	t.Run("missing key yields empty", func(t *testing.T) {
		p := newTestPersister(newMemKV(), clock, 20)
		assert.Empty(t, p.Load(ctx))
	})

	t.Run("corrupt payload yields empty", func(t *testing.T) {
		store := newMemKV()
		store.m["notifications:history"] = []byte(`{"entries": "not-an-array"`)
		p := newTestPersister(store, clock, 20)
		assert.Empty(t, p.Load(ctx))
	})

	t.Run("structurally invalid entries yield empty", func(t *testing.T) {
		store := newMemKV()
		store.m["notifications:history"] = []byte(`{"entries":[{"id":"x","kind":"poke","timestamp":1}],"saved_at":1}`)
		p := newTestPersister(store, clock, 20)
		assert.Empty(t, p.Load(ctx))
	})

	t.Run("entries missing identity are skipped", func(t *testing.T) {
		store := newMemKV()
		snap := map[string]any{
			"saved_at": clock.Now().UnixMilli(),
			"entries": []map[string]any{
				{"id": "", "kind": "live", "timestamp": clock.Now().UnixMilli(), "payload": map[string]any{"streamer": "ana"}},
				{"id": "ok", "kind": "live", "timestamp": clock.Now().UnixMilli(), "payload": map[string]any{"streamer": "bob"}},
			},
		}
		data, err := json.Marshal(snap)
		require.NoError(t, err)
		store.m["notifications:history"] = data

		p := newTestPersister(store, clock, 20)
		got := p.Load(ctx)
		require.Len(t, got, 1)
		assert.Equal(t, "ok", got[0].ID)
	})
}

func TestPersister_SaveFailureIsSwallowed(t *testing.T) {
	clock := newFakeClock()
	p := NewPersister(PersisterOptions{
		KV:     &failKV{},
		Clock:  clock,
		Logger: zerolog.Nop(),
	})

	// Must not panic or propagate; the session degrades to memory-only.
	p.Save(context.Background(), []notify.Notification{
		{ID: "n1", Kind: notify.KindLive, Timestamp: clock.Now(), Payload: notify.LivePayload{Streamer: "ana"}},
	})
}

func TestPersister_Clear(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newMemKV()
	p := newTestPersister(store, clock, 20)

	p.Save(ctx, []notify.Notification{
		{ID: "n1", Kind: notify.KindLive, Timestamp: clock.Now(), Payload: notify.LivePayload{Streamer: "ana"}},
	})
	require.NotEmpty(t, p.Load(ctx))

	require.NoError(t, p.Clear(ctx))
	assert.Empty(t, p.Load(ctx))
}
