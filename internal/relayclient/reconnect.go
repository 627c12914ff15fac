// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relayclient

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/sudoaudit/logsrvd/lib/clock"
	"github.com/sudoaudit/logsrvd/lib/config"
)

// Backoff constants mirror the teacher's telemetry shipper retry loop:
// start at 1s, double on each consecutive failure, cap at 30s, reset
// to the initial value on success.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// DialWithRetry attempts Dial repeatedly until it succeeds or ctx is
// cancelled, backing off exponentially between attempts. Used to
// establish the live relay connection for a session and, in the
// journal-then-forward path, to connect for the replay once the
// session reaches FINISHED. A relay that drops the connection
// mid-replay is not redialed: the replay fails and the journal stays
// on disk.
//
// onRetry, if non-nil, is called once for each failed attempt right
// before backing off, so a caller can count reconnect attempts (e.g.
// a Prometheus counter) without DialWithRetry needing to know what
// metrics are. Nil is fine when no caller cares to count.
func DialWithRetry(ctx context.Context, endpoints []config.RelayEndpoint, tlsConfig *tls.Config, dialTimeout time.Duration, clk clock.Clock, logger *slog.Logger, onRetry func()) (*Client, error) {
	backoff := initialBackoff

	for {
		client, err := Dial(ctx, endpoints, tlsConfig, dialTimeout)
		if err == nil {
			return client, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		logger.Warn("relay dial failed, will retry", "error", err, "backoff", backoff)
		if onRetry != nil {
			onRetry()
		}
		select {
		case <-clk.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
