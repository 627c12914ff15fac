// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes connection, message, and sink counters on a
// debug HTTP endpoint (§10/§11). The lifecycle controller tears down
// and recreates the whole Registry on reload, mirroring the original's
// "deregister and re-register debug instance" behavior (§4.8).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry wraps a dedicated prometheus.Registry with the fixed set of
// counters and gauges this daemon exposes. A fresh Registry is created
// on every reload so stale collectors never survive a configuration
// change.
type Registry struct {
	prom *prometheus.Registry

	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	ConnectionsRejected prometheus.Counter
	ConnectionErrors    prometheus.Counter

	MessagesReceived *prometheus.CounterVec
	MessagesRejected *prometheus.CounterVec

	SinkWrites *prometheus.CounterVec
	SinkErrors *prometheus.CounterVec

	RelayReconnects prometheus.Counter
	JournalsPending prometheus.Gauge
	JournalReplays  prometheus.Counter
}

// New builds a Registry with every collector registered, plus the
// standard Go runtime and process collectors.
func New() *Registry {
	prom := prometheus.NewRegistry()

	r := &Registry{
		prom: prom,
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sudoaudit",
			Name:      "connections_accepted_total",
			Help:      "Total TCP connections accepted by the listener.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sudoaudit",
			Name:      "connections_active",
			Help:      "Connections currently open and not yet terminal.",
		}),
		ConnectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sudoaudit",
			Name:      "connections_rejected_total",
			Help:      "Connections refused before TLS handshake completed.",
		}),
		ConnectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sudoaudit",
			Name:      "connection_errors_total",
			Help:      "Connections that ended in the ERROR state.",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sudoaudit",
			Name:      "messages_received_total",
			Help:      "Inbound protocol messages, by kind.",
		}, []string{"kind"}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sudoaudit",
			Name:      "messages_rejected_total",
			Help:      "Inbound messages rejected by the state machine, by kind.",
		}, []string{"kind"}),
		SinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sudoaudit",
			Name:      "sink_writes_total",
			Help:      "Messages successfully handed to a sink, by sink type.",
		}, []string{"sink"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sudoaudit",
			Name:      "sink_errors_total",
			Help:      "Sink method calls that returned an error, by sink type.",
		}, []string{"sink"}),
		RelayReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sudoaudit",
			Name:      "relay_reconnects_total",
			Help:      "Relay dial attempts that failed and were retried after a backoff.",
		}),
		JournalsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sudoaudit",
			Name:      "journals_pending",
			Help:      "Journal files awaiting successful relay replay.",
		}),
		JournalReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sudoaudit",
			Name:      "journal_replays_total",
			Help:      "Journal files successfully replayed to the relay and unlinked.",
		}),
	}

	prom.MustRegister(
		r.ConnectionsAccepted,
		r.ConnectionsActive,
		r.ConnectionsRejected,
		r.ConnectionErrors,
		r.MessagesReceived,
		r.MessagesRejected,
		r.SinkWrites,
		r.SinkErrors,
		r.RelayReconnects,
		r.JournalsPending,
		r.JournalReplays,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Prometheus returns the underlying registry, for wiring into an HTTP
// handler.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}
