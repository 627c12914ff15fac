// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commit implements the per-connection commit-point scheduler
// (§4.5). Armed on the first payload-bearing message, it periodically
// emits a CommitPoint reply acknowledging durability of everything
// written so far, and drives the EXITED → FINISHED transition once the
// connection has exited and its last commit point has gone out.
//
// A commit timer is scheduled only when no relay is attached — with a
// relay attached, the relay's own commit points are authoritative and
// are echoed back to the client by internal/server's connection loop
// instead (invariant 3).
//
// Fire is a plain function, not a method on some shared scheduler
// object: the ticker that triggers it is created and owned by the
// connection's own goroutine (internal/server's per-connection loop),
// and only that goroutine ever calls Fire. This keeps every mutation
// of a Closure on the single goroutine that owns it, matching
// SPEC_FULL.md's concurrency model — cross-connection interaction
// happens over channels, never by one goroutine reaching into
// another's state.
package commit

import (
	"time"

	"github.com/sudoaudit/logsrvd/internal/session"
)

// Frequency is the commit-point re-arm period (§4.5's ACK_FREQUENCY).
const Frequency = 5 * time.Second

// Fire emits a commit point acknowledging durability up to c's last
// known session elapsed time (the furthest Delay/RunTime the client
// has reported, tracked on the Closure as messages are dispatched —
// not wall-clock time, which has no relationship to the session's own
// timeline), and performs the EXITED → FINISHED transition if c was
// waiting on exactly this emission (§4.5's first edge case). It
// reports whether the connection's commit ticker should now be
// stopped — true once FINISHED is reached, since no further commit
// point will ever be sent on a terminal connection.
//
// Callers must never invoke Fire for a connection with RelayAttached
// set; the caller (internal/server) is responsible for never creating
// a ticker for such a connection in the first place (invariant 3).
func Fire(c *session.Closure) (stop bool, err error) {
	if err := c.EnqueueCommitPoint(c.SessionElapsed); err != nil {
		return false, err
	}

	if c.State == session.StateExited {
		c.State = session.StateFinished
		return true, nil
	}

	return false, nil
}
