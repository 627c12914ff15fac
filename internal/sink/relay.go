// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"fmt"

	"github.com/sudoaudit/logsrvd/internal/relayclient"
	"github.com/sudoaudit/logsrvd/internal/session"
	"github.com/sudoaudit/logsrvd/lib/wire"
)

// RelaySink re-encodes each inbound message onto the outbound relay
// connection (§4.5's relay sink): "each inbound message is re-encoded
// verbatim (or near-verbatim) onto the outbound relay connection's
// write queue". Commit-point replies flow in the reverse direction —
// internal/server's per-connection loop reads them off the relay
// connection and echoes them to the client; RelaySink itself only
// forwards.
type RelaySink struct {
	client *relayclient.Client
}

// NewRelaySink binds a RelaySink to an already-dialed relay client.
func NewRelaySink(client *relayclient.Client) *RelaySink {
	return &RelaySink{client: client}
}

func (s *RelaySink) forward(kind wire.Kind, body any) error {
	env, err := wire.Pack(kind, body)
	if err != nil {
		return fmt.Errorf("sink: repacking %s for relay: %w", kind, err)
	}
	if err := s.client.Send(env); err != nil {
		return fmt.Errorf("sink: forwarding %s to relay: %w", kind, err)
	}
	return nil
}

func (s *RelaySink) Accept(c *session.Closure, msg wire.Accept) error {
	return s.forward(wire.KindAccept, msg)
}

func (s *RelaySink) Reject(c *session.Closure, msg wire.Reject) error {
	return s.forward(wire.KindReject, msg)
}

func (s *RelaySink) Exit(c *session.Closure, msg wire.Exit) error {
	return s.forward(wire.KindExit, msg)
}

func (s *RelaySink) Restart(c *session.Closure, msg wire.Restart) error {
	return s.forward(wire.KindRestart, msg)
}

func (s *RelaySink) Alert(c *session.Closure, msg wire.Alert) error {
	return s.forward(wire.KindAlert, msg)
}

func (s *RelaySink) IOBuffer(c *session.Closure, msg wire.IOBuffer) error {
	return s.forward(wire.KindIOBuffer, msg)
}

func (s *RelaySink) ChangeWindowSize(c *session.Closure, msg wire.ChangeWindowSize) error {
	return s.forward(wire.KindChangeWindowSize, msg)
}

func (s *RelaySink) CommandSuspend(c *session.Closure, msg wire.CommandSuspend) error {
	return s.forward(wire.KindCommandSuspend, msg)
}
