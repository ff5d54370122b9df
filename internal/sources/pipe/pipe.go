// Package pipe implements an event source reading newline-delimited JSON
// from a stream, typically the stdin pipe the desktop shell feeds the
// engine process with.
package pipe

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/winters27/streamnook/internal/engine"
)

const (
	eventBufferSize = 100
	maxLineBytes    = 1 << 20
)

// Source decodes one raw event per input line. Lines that are not valid
// JSON, or that exceed maxLineBytes, are skipped with a diagnostic;
// semantic validation is the engine's job, not the transport's.
type Source struct {
	id  string
	r   io.Reader
	ch  chan engine.RawEvent
	log zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

var _ engine.Source = (*Source)(nil)

// New starts reading events from r. The source ends when r reaches EOF or
// Close is called.
func New(id string, r io.Reader, logger zerolog.Logger) *Source {
	s := &Source{
		id:   id,
		r:    r,
		ch:   make(chan engine.RawEvent, eventBufferSize),
		log:  logger,
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Source) ID() string { return s.id }

// Events returns the event stream. The channel is closed when the input
// ends.
func (s *Source) Events() <-chan engine.RawEvent { return s.ch }

// Close stops the source. When the underlying reader is a closer (stdin,
// a socket) it is closed to unblock the scan loop.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if c, ok := s.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

func (s *Source) run() {
	defer close(s.ch)

	br := bufio.NewReaderSize(s.r, 64*1024)

	var (
		line     []byte
		overlong bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxLineBytes && !overlong {
			overlong = true
			s.log.Warn().Str("source", s.id).Int("limit", maxLineBytes).Msg("oversized event line skipped")
		}
		if overlong {
			// Keep draining until the newline; the line itself is lost,
			// the stream keeps going.
			line = line[:0]
		}

		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == nil, err == io.EOF && len(line) > 0:
			if !overlong && !s.emit(bytes.TrimSuffix(line, []byte("\n"))) {
				return
			}
			line = line[:0]
			overlong = false
			if err == io.EOF {
				return
			}
		case err == io.EOF:
			return
		default:
			select {
			case <-s.done:
				// Read error caused by our own Close; not a fault.
			default:
				s.log.Error().Err(err).Str("source", s.id).Msg("event stream read failed")
			}
			return
		}
	}
}

// emit decodes one line and sends it downstream. Returns false when the
// source was closed while sending.
func (s *Source) emit(line []byte) bool {
	if len(line) == 0 {
		return true
	}

	var raw engine.RawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		s.log.Warn().Err(err).Str("source", s.id).Msg("unparseable event line skipped")
		return true
	}

	select {
	case s.ch <- raw:
		return true
	case <-s.done:
		return false
	}
}
