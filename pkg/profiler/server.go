// Package profiler exposes net/http/pprof on a loopback listener for
// diagnosing a running engine process.
package profiler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/rs/zerolog"
)

// startupWindow is how long Start watches for an immediate serve failure
// before reporting success.
const startupWindow = 100 * time.Millisecond

// Server serves the pprof handlers over HTTP. It binds loopback only;
// profiles of a desktop client are a local diagnostic, never a remote
// surface.
type Server struct {
	srv      *http.Server
	listener net.Listener
	port     int
	log      zerolog.Logger
}

// New creates a server for the given port. Port 0 binds an ephemeral
// port; Addr reports the bound address after Start.
func New(port int, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &Server{
		srv:  &http.Server{Handler: mux},
		port: port,
		log:  logger,
	}
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("profiler listen: %w", err)
	}
	s.listener = listener

	s.log.Info().Str("addr", listener.Addr().String()).Msg("pprof server listening")

	serveErr := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("profiler serve: %w", err)
	case <-time.After(startupWindow):
		return nil
	}
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight profile captures up to
// the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("pprof server stopping")
	return s.srv.Shutdown(ctx)
}
