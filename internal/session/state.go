// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the per-connection state machine, its
// write-buffer queue, and message dispatch. This is the connection
// engine's core: every inbound message is validated against the
// current state before it reaches a sink.
package session

import (
	"fmt"

	"github.com/sudoaudit/logsrvd/lib/wire"
)

// State is one node of the connection lifecycle:
//
//	INITIAL → RUNNING → {EXITED → FINISHED | FINISHED} | ERROR | SHUTDOWN
type State int

const (
	StateInitial State = iota
	StateRunning
	StateExited
	StateFinished
	StateError
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateRunning:
		return "RUNNING"
	case StateExited:
		return "EXITED"
	case StateFinished:
		return "FINISHED"
	case StateError:
		return "ERROR"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further inbound message is legal from
// this state. Terminal states drain the write queue, then close (§3).
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateError || s == StateShutdown
}

// legalKinds maps each state to the message kinds that may legally
// arrive while the connection is in it (§3's transition table).
// ClientHello is legal in every non-terminal state; it is stateless
// beyond logging and never appears in this table.
var legalKinds = map[State]map[wire.Kind]bool{
	StateInitial: {
		wire.KindAccept:  true,
		wire.KindReject:  true,
		wire.KindRestart: true,
	},
	StateRunning: {
		wire.KindIOBuffer:         true,
		wire.KindChangeWindowSize: true,
		wire.KindCommandSuspend:   true,
		wire.KindAlert:            true,
		wire.KindExit:             true,
	},
	// EXITED accepts no further inbound messages: it only waits for
	// the commit scheduler to emit the last commit point (§4.5).
	StateExited: {},
}

// CheckLegal reports whether kind may legally arrive while the
// connection is in state s. ClientHello is always legal outside the
// terminal states. An unrecognized kind is illegal in every state —
// callers should have already rejected it via wire.InboundKinds with
// the "unrecognized ClientMessage type" protocol error before calling
// CheckLegal.
func CheckLegal(s State, kind wire.Kind) error {
	if s.IsTerminal() {
		return fmt.Errorf("state machine error: %s not legal in terminal state %s", kind, s)
	}
	if kind == wire.KindClientHello {
		return nil
	}
	if legalKinds[s][kind] {
		return nil
	}
	return fmt.Errorf("state machine error: %s not legal in state %s", kind, s)
}

// Next computes the state following successful dispatch of kind,
// given whether I/O logging is active and whether a relay is attached
// (invariant 2: EXITED is reachable only from RUNNING with log_io=true
// and no relay attached).
func Next(current State, kind wire.Kind, logIO bool, relayAttached bool) State {
	switch current {
	case StateInitial:
		switch kind {
		case wire.KindAccept:
			return StateRunning
		case wire.KindReject:
			return StateFinished
		case wire.KindRestart:
			return StateRunning
		}
	case StateRunning:
		if kind == wire.KindExit {
			if logIO && !relayAttached {
				return StateExited
			}
			return StateFinished
		}
		return StateRunning
	case StateExited:
		// Only the commit scheduler drives EXITED → FINISHED; no
		// inbound message does.
		return StateExited
	}
	return current
}
