// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves a Registry's collectors over plain HTTP at /metrics,
// the debug endpoint the lifecycle controller tears down and recreates
// on reload (§4.8).
type Server struct {
	addr string
	path string

	mu       sync.Mutex
	http     *http.Server
	ln       net.Listener
	serveErr chan error
}

// NewServer returns a Server bound to addr (host:port) serving path
// (defaulting to "/metrics" if empty) against registry's collectors.
func NewServer(addr, path string, registry *Registry) *Server {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(registry.Prometheus(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		addr: addr,
		path: path,
		http: &http.Server{Handler: mux},
	}
}

// Start binds the listener and begins serving in a background
// goroutine. Start returns once the listener is bound, not once the
// server stops; the background Serve call's return value is not
// surfaced to the caller.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics: binding %s: %w", s.addr, err)
	}
	s.ln = ln
	s.serveErr = make(chan error, 1)

	go func() {
		s.serveErr <- s.http.Serve(ln)
	}()
	return nil
}

// Addr returns the bound listener's address, useful when addr was
// given with a ":0" port for tests.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts the server down, used by the lifecycle
// controller both on reload (before recreating with a fresh Registry)
// and on final shutdown.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.http
	s.mu.Unlock()
	return httpServer.Shutdown(ctx)
}
