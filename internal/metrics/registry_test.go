// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersWithoutConflict(t *testing.T) {
	r := New()
	if r.Prometheus() == nil {
		t.Fatal("expected a non-nil underlying prometheus registry")
	}
}

func TestConnectionsAcceptedCounterIncrements(t *testing.T) {
	r := New()
	r.ConnectionsAccepted.Inc()
	r.ConnectionsAccepted.Inc()

	if got := testutil.ToFloat64(r.ConnectionsAccepted); got != 2 {
		t.Errorf("ConnectionsAccepted = %v, want 2", got)
	}
}

func TestMessagesReceivedCounterVecByKind(t *testing.T) {
	r := New()
	r.MessagesReceived.WithLabelValues("accept").Inc()
	r.MessagesReceived.WithLabelValues("accept").Inc()
	r.MessagesReceived.WithLabelValues("reject").Inc()

	if got := testutil.ToFloat64(r.MessagesReceived.WithLabelValues("accept")); got != 2 {
		t.Errorf("MessagesReceived[accept] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.MessagesReceived.WithLabelValues("reject")); got != 1 {
		t.Errorf("MessagesReceived[reject] = %v, want 1", got)
	}
}

func TestTwoRegistriesDoNotConflict(t *testing.T) {
	// Each reload creates a fresh Registry; both must be able to exist
	// simultaneously (e.g. briefly during handoff) without a
	// duplicate-collector panic from the shared metric namespace.
	a := New()
	b := New()
	a.ConnectionsAccepted.Inc()
	b.ConnectionsAccepted.Inc()

	if got := testutil.ToFloat64(a.ConnectionsAccepted); got != 1 {
		t.Errorf("registry a's counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.ConnectionsAccepted); got != 1 {
		t.Errorf("registry b's counter = %v, want 1", got)
	}
}
