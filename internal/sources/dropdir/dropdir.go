// Package dropdir implements a spool-directory event source: the backend
// drops one JSON file per event into a directory, and the source consumes
// each file once and removes it.
package dropdir

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/winters27/streamnook/internal/engine"
)

const (
	debounceDelay   = 50 * time.Millisecond
	eventBufferSize = 100
)

// Source watches a spool directory with fsnotify. Writers that produce a
// file in multiple syscalls trigger several notifications; a short
// per-file debounce collapses them so each file is consumed once, after
// its final write.
type Source struct {
	dir     string
	watcher *fsnotify.Watcher
	ch      chan engine.RawEvent
	pending chan string
	log     zerolog.Logger

	mu       sync.Mutex
	debounce map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

var _ engine.Source = (*Source)(nil)

// New starts watching dir, creating it if needed. Files already present
// are consumed immediately.
func New(dir string, logger zerolog.Logger) (*Source, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		dir:      dir,
		watcher:  watcher,
		ch:       make(chan engine.RawEvent, eventBufferSize),
		pending:  make(chan string, eventBufferSize),
		log:      logger,
		debounce: make(map[string]*time.Timer),
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := s.enqueueExisting(); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

func (s *Source) ID() string { return "dropdir:" + s.dir }

// Events returns the event stream. The channel is closed after Close.
func (s *Source) Events() <-chan engine.RawEvent { return s.ch }

// Close stops the watcher and drains the pump goroutine.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		for _, timer := range s.debounce {
			timer.Stop()
		}
		s.debounce = make(map[string]*time.Timer)
		s.mu.Unlock()

		s.closeErr = s.watcher.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

// enqueueExisting spools files that were dropped before the watch began.
func (s *Source) enqueueExisting() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !spoolFile(entry.Name()) {
			continue
		}
		select {
		case s.pending <- filepath.Join(s.dir, entry.Name()):
		default:
			s.log.Warn().Str("file", entry.Name()).Msg("spool backlog full, file left for next start")
		}
	}
	return nil
}

// run owns the outbound channel: it is the only goroutine that sends to
// or closes it, so debounce timers never race a shutdown.
func (s *Source) run() {
	defer s.wg.Done()
	defer close(s.ch)

	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Str("dir", s.dir).Msg("spool watch error")
		case path := <-s.pending:
			s.consume(path)
		}
	}
}

func (s *Source) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if !spoolFile(filepath.Base(event.Name)) {
		return
	}

	path := event.Name

	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, exists := s.debounce[path]; exists {
		timer.Stop()
	}
	s.debounce[path] = time.AfterFunc(debounceDelay, func() {
		s.mu.Lock()
		delete(s.debounce, path)
		s.mu.Unlock()

		select {
		case s.pending <- path:
		case <-s.ctx.Done():
		}
	})
}

// consume reads, emits, and removes one spool file. An unreadable or
// unparseable file is removed as well; leaving it would re-trigger on the
// next write to the directory and loop forever.
func (s *Source) consume(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("file", path).Msg("spool file unreadable")
			s.remove(path)
		}
		return
	}

	var raw engine.RawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Warn().Err(err).Str("file", path).Msg("spool file unparseable, discarded")
		s.remove(path)
		return
	}

	select {
	case s.ch <- raw:
		s.remove(path)
	case <-s.ctx.Done():
		// Not consumed; the file stays for the next start.
	}
}

func (s *Source) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("file", path).Msg("spool file remove failed")
	}
}

func spoolFile(name string) bool {
	return strings.HasSuffix(name, ".json") &&
		!strings.HasSuffix(name, ".tmp") &&
		!strings.HasSuffix(name, ".lock")
}
