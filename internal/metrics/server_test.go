// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestServerServesMetricsEndpoint(t *testing.T) {
	r := New()
	r.ConnectionsAccepted.Inc()

	s := NewServer("127.0.0.1:0", "", r)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServerServesHealthEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0", "", New())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServerStopThenRestartOnFreshRegistry(t *testing.T) {
	s1 := NewServer("127.0.0.1:0", "", New())
	if err := s1.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s1.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	s2 := NewServer("127.0.0.1:0", "", New())
	if err := s2.Start(); err != nil {
		t.Fatalf("Start on reload: %v", err)
	}
	defer s2.Stop(context.Background())

	if s2.Addr() == "" {
		t.Error("expected the reload server to have a bound address")
	}
}
