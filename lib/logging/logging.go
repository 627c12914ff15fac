// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging provides the server's standard structured logger.
package logging

import (
	"log/slog"
	"os"
)

// New creates the standard server logger: a JSON handler writing to
// stderr at the given level. It also sets the default slog logger so
// that library code reaching for slog.Info/Warn/Error directly gets
// the same sink.
func New(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// WithConnection returns a logger carrying the connection-scoped
// attributes every lifecycle and protocol log line should include:
// the peer address, a per-connection identifier, and the connection's
// current state. Handlers for a single connection should hold onto
// this derived logger rather than re-attaching these attributes at
// every call site.
func WithConnection(logger *slog.Logger, peer string, connID uint64, state string) *slog.Logger {
	return logger.With("peer", peer, "conn_id", connID, "state", state)
}
