package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/winters27/streamnook/internal/core/kv"
	"github.com/winters27/streamnook/internal/core/notify"
)

// fakeClock provides a controllable time source so debounce and preview
// windows can be driven deterministically.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, when: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward, firing due timers in schedule order.
// Callbacks run on the caller's goroutine after the internal lock is
// released, matching how runtime timers never hold caller locks.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.when.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].when.Before(due[j].when) })
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// memKV is an in-memory kv.KV for tests.
type memKV struct {
	mu sync.Mutex
	m  map[string][]byte
}

var _ kv.KV = (*memKV)(nil)

func newMemKV() *memKV {
	return &memKV{m: make(map[string][]byte)}
}

func (s *memKV) Get(_ context.Context, key string, dest any) error {
	s.mu.Lock()
	data, ok := s.m[key]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("kv get %q: %w", key, sql.ErrNoRows)
	}
	return json.Unmarshal(data, dest)
}

func (s *memKV) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.m[key] = data
	s.mu.Unlock()
	return nil
}

func (s *memKV) SetTTL(ctx context.Context, key string, value any, _ time.Duration) error {
	return s.Set(ctx, key, value)
}

func (s *memKV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *memKV) Has(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, ok := s.m[key]
	s.mu.Unlock()
	return ok, nil
}

// failKV rejects all writes, for memory-only degradation tests.
type failKV struct {
	memKV
}

func (s *failKV) Set(context.Context, string, any) error {
	return fmt.Errorf("disk full")
}

// chanSource is a scripted Source for tests.
type chanSource struct {
	id     string
	ch     chan RawEvent
	closed sync.Once
}

func newChanSource(id string) *chanSource {
	return &chanSource{id: id, ch: make(chan RawEvent, 16)}
}

func (s *chanSource) ID() string              { return s.id }
func (s *chanSource) Events() <-chan RawEvent { return s.ch }

func (s *chanSource) Close() error {
	s.closed.Do(func() { close(s.ch) })
	return nil
}

func (s *chanSource) push(kind string, payload string) {
	s.ch <- RawEvent{Kind: kind, Payload: json.RawMessage(payload)}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func pointsEvent(channel string, points int64) ClusterEvent {
	return ClusterEvent{Channel: channel, Points: points}
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// collect gathers dispatched notifications from a Router sink.
type collect struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (c *collect) Deliver(n notify.Notification) {
	c.mu.Lock()
	c.items = append(c.items, n)
	c.mu.Unlock()
}

func (c *collect) list() []notify.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.Notification, len(c.items))
	copy(out, c.items)
	return out
}
