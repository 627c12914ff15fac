// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"

	"github.com/sudoaudit/logsrvd/lib/wire"
)

// Dispatch validates and routes one decoded inbound envelope through
// the state machine and the closure's bound sink (§4.3). It is the
// single entry point the connection's read loop calls for every
// complete message the frame codec extracts.
//
// On success, Dispatch has already applied the resulting state
// transition and any post-dispatch action (LogID reply, commit-timer
// arming) named in §4.3; the caller only needs to keep reading (or, if
// the connection reached a terminal state, begin draining the write
// queue).
func Dispatch(c *Closure, env wire.Envelope) error {
	if !wire.InboundKinds[env.Kind] {
		return c.Fail(fmt.Sprintf("unrecognized ClientMessage type: %s", env.Kind))
	}

	if env.Kind == wire.KindClientHello {
		var hello wire.ClientHello
		if err := wire.Unpack(env, &hello); err != nil {
			return c.Fail(fmt.Sprintf("error parsing ClientHello: %v", err))
		}
		c.Logger.Info("client hello", "client_id", hello.ClientID)
		return nil
	}

	if err := CheckLegal(c.State, env.Kind); err != nil {
		c.Fail(err.Error())
		return err
	}

	if err := dispatchToSink(c, env); err != nil {
		return err
	}

	c.State = Next(c.State, env.Kind, c.LogIO, c.RelayAttached)

	switch env.Kind {
	case wire.KindIOBuffer, wire.KindChangeWindowSize, wire.KindCommandSuspend:
		// Post-dispatch action from §4.3: any I/O-bearing message
		// succeeding ensures the commit timer is armed. The ticker
		// itself is created by internal/server's connection loop;
		// ArmCommitTimerIfNeeded only flips the local bookkeeping bit
		// exactly once.
		c.ArmCommitTimerIfNeeded()
	}

	return nil
}

func dispatchToSink(c *Closure, env wire.Envelope) error {
	switch env.Kind {
	case wire.KindAccept:
		var msg wire.Accept
		if err := wire.Unpack(env, &msg); err != nil {
			return c.Fail(fmt.Sprintf("error parsing AcceptMessage: %v", err))
		}
		if err := c.sink.Accept(c, msg); err != nil {
			return err
		}
		if msg.ExpectIOBufs {
			c.LogIO = true
		}
		return nil

	case wire.KindReject:
		var msg wire.Reject
		if err := wire.Unpack(env, &msg); err != nil {
			return c.Fail(fmt.Sprintf("error parsing RejectMessage: %v", err))
		}
		return c.sink.Reject(c, msg)

	case wire.KindRestart:
		var msg wire.Restart
		if err := wire.Unpack(env, &msg); err != nil {
			return c.Fail(fmt.Sprintf("error parsing RestartMessage: %v", err))
		}
		if err := c.sink.Restart(c, msg); err != nil {
			// Restart failing: deregister the read event and schedule
			// an error reply (§4.3). The read side is torn down by
			// the caller once Dispatch returns an error; enqueueing
			// the reply happens here so it lands before that teardown.
			c.Fail(fmt.Sprintf("protocol error: restart failed: %v", err))
			_ = c.EnqueueError()
			return err
		}
		c.LogIO = true
		return nil

	case wire.KindExit:
		var msg wire.Exit
		if err := wire.Unpack(env, &msg); err != nil {
			return c.Fail(fmt.Sprintf("error parsing ExitMessage: %v", err))
		}
		if err := c.sink.Exit(c, msg); err != nil {
			return err
		}
		c.RecordElapsed(msg.RunTime)
		return nil

	case wire.KindAlert:
		var msg wire.Alert
		if err := wire.Unpack(env, &msg); err != nil {
			return c.Fail(fmt.Sprintf("error parsing AlertMessage: %v", err))
		}
		return c.sink.Alert(c, msg)

	case wire.KindIOBuffer:
		var msg wire.IOBuffer
		if err := wire.Unpack(env, &msg); err != nil {
			return c.Fail(fmt.Sprintf("error parsing IoBuffer: %v", err))
		}
		if err := c.sink.IOBuffer(c, msg); err != nil {
			return err
		}
		c.RecordElapsed(msg.Delay)
		return nil

	case wire.KindChangeWindowSize:
		var msg wire.ChangeWindowSize
		if err := wire.Unpack(env, &msg); err != nil {
			return c.Fail(fmt.Sprintf("error parsing ChangeWindowSize: %v", err))
		}
		if err := c.sink.ChangeWindowSize(c, msg); err != nil {
			return err
		}
		c.RecordElapsed(msg.Delay)
		return nil

	case wire.KindCommandSuspend:
		var msg wire.CommandSuspend
		if err := wire.Unpack(env, &msg); err != nil {
			return c.Fail(fmt.Sprintf("error parsing CommandSuspend: %v", err))
		}
		if err := c.sink.CommandSuspend(c, msg); err != nil {
			return err
		}
		c.RecordElapsed(msg.Delay)
		return nil
	}

	return c.Fail(fmt.Sprintf("protocol error: no handler for %s", env.Kind))
}
