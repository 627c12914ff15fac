// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/sudoaudit/logsrvd/lib/wire"
)

var nextConnID atomic.Uint64

// Sink is the pluggable per-connection destination for one message
// kind. Exactly one Sink is bound per Closure at construction time;
// dispatch never switches sinks at runtime (§4.4).
type Sink interface {
	Accept(c *Closure, msg wire.Accept) error
	Reject(c *Closure, msg wire.Reject) error
	Exit(c *Closure, msg wire.Exit) error
	Restart(c *Closure, msg wire.Restart) error
	Alert(c *Closure, msg wire.Alert) error
	IOBuffer(c *Closure, msg wire.IOBuffer) error
	ChangeWindowSize(c *Closure, msg wire.ChangeWindowSize) error
	CommandSuspend(c *Closure, msg wire.CommandSuspend) error
}

// Closure is the connection's lifetime unit (§3's "connection
// closure"): every piece of per-connection state lives here.
// Ownership of the socket, TLS session, and any on-disk file handles
// belongs to the goroutine driving this Closure — see
// internal/server for the network loop.
type Closure struct {
	ID   uint64
	Peer string

	State State
	sink  Sink

	Read  *wire.Frame
	Write *WriteQueue

	LogIO               bool
	StoreFirst          bool
	ReadInsteadOfWrite  bool
	WriteInsteadOfRead  bool
	TemporaryWriteEvent bool

	RelayAttached bool

	// LastCommittedElapsed is the elapsed time of the most recent
	// commit point acknowledged durable, echoed to the commit
	// scheduler (§4.5).
	LastCommittedElapsed wire.CommitElapsed

	// SessionElapsed is the elapsed time, since the session began, of
	// the most recent Delay/RunTime the client has reported (IOBuffer,
	// ChangeWindowSize, CommandSuspend's Delay; Exit's RunTime). The
	// commit-point scheduler reads this, not wall-clock time, since a
	// commit point acknowledges durability up to a point in the
	// session's own timeline (§4.5).
	SessionElapsed wire.CommitElapsed

	// CommitArmed tracks whether the commit-point timer has been
	// armed for this connection (armed on the first payload-bearing
	// message, invariant 3: never armed when a relay is attached).
	CommitArmed bool

	ErrorString string

	Logger *slog.Logger
}

// New allocates a Closure in StateInitial bound to sink, with a fresh
// connection identifier for logging correlation.
func New(peer string, sink Sink, logger *slog.Logger) *Closure {
	id := nextConnID.Add(1)
	return &Closure{
		ID:     id,
		Peer:   peer,
		State:  StateInitial,
		sink:   sink,
		Read:   wire.NewFrame(),
		Write:  NewWriteQueue(),
		Logger: logger.With("peer", peer, "conn_id", id),
	}
}

// Fail transitions the closure to StateError, recording msg as the
// error string that will be sent to the client before close (§3).
func (c *Closure) Fail(msg string) error {
	c.State = StateError
	c.ErrorString = msg
	return fmt.Errorf("%s", msg)
}

// EnqueueError frames and enqueues a wire.Error reply carrying the
// closure's current error string.
func (c *Closure) EnqueueError() error {
	env, err := wire.Pack(wire.KindError, wire.Error{Message: c.ErrorString})
	if err != nil {
		return err
	}
	return c.enqueueEnvelope(env)
}

// EnqueueCommitPoint frames and enqueues a CommitPoint reply.
func (c *Closure) EnqueueCommitPoint(elapsed wire.CommitElapsed) error {
	env, err := wire.Pack(wire.KindCommitPoint, wire.CommitPoint{Elapsed: elapsed})
	if err != nil {
		return err
	}
	c.LastCommittedElapsed = elapsed
	return c.enqueueEnvelope(env)
}

// EnqueueLogID frames and enqueues a LogID reply following a
// successful Accept with ExpectIOBufs set (§4.3 post-dispatch).
func (c *Closure) EnqueueLogID(path string) error {
	env, err := wire.Pack(wire.KindLogID, wire.LogID{Path: path})
	if err != nil {
		return err
	}
	return c.enqueueEnvelope(env)
}

// EnqueueServerHello frames and enqueues the ServerHello sent once
// per connection immediately after handshake completion.
func (c *Closure) EnqueueServerHello(serverID string) error {
	env, err := wire.Pack(wire.KindServerHello, wire.ServerHello{ServerID: serverID})
	if err != nil {
		return err
	}
	return c.enqueueEnvelope(env)
}

func (c *Closure) enqueueEnvelope(env wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}
	frame, err := wire.EncodeFrame(data)
	if err != nil {
		return err
	}
	c.Write.Enqueue(frame)
	return nil
}

// RecordElapsed updates SessionElapsed from a client-reported
// Delay/RunTime, keeping the furthest point seen so far — messages can
// in principle arrive describing the same instant twice, but never one
// earlier than what's already been recorded.
func (c *Closure) RecordElapsed(e wire.CommitElapsed) {
	if e.Seconds > c.SessionElapsed.Seconds ||
		(e.Seconds == c.SessionElapsed.Seconds && e.Nanoseconds > c.SessionElapsed.Nanoseconds) {
		c.SessionElapsed = e
	}
}

// ArmCommitTimerIfNeeded marks the commit timer armed the first time
// a payload-bearing message succeeds, unless a relay is attached
// (invariant 3). The actual ticker is created by internal/server's
// connection loop, which calls internal/commit's Fire on each tick;
// this tracks only whether arming has already happened for this
// connection so the caller arms it at most once.
func (c *Closure) ArmCommitTimerIfNeeded() (shouldArm bool) {
	if c.RelayAttached || c.CommitArmed {
		return false
	}
	c.CommitArmed = true
	return true
}
