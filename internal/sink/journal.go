// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"fmt"
	"os"

	"github.com/sudoaudit/logsrvd/internal/relayclient"
	"github.com/sudoaudit/logsrvd/internal/session"
	"github.com/sudoaudit/logsrvd/lib/wire"
)

// JournalSink appends each inbound message to a per-connection journal
// file, framed identically to the wire (§4.5's journal sink), used in
// store-first mode to hold the whole stream until the session is
// finished and the journal is replayed to the relay. Re-packing
// each typed message through CBOR's Core Deterministic Encoding
// produces the same bytes the client originally sent for any given
// logical message, so the journal is a faithful byte-for-byte replica
// of the inbound stream without needing to retain the client's raw
// frame (see DESIGN.md's Open Question decision on this point).
type JournalSink struct {
	file *os.File
	path string
}

// NewJournalSink creates the journal file at path (typically under the
// configured journal directory, named by creation time plus a random
// hex suffix).
func NewJournalSink(path string, mode os.FileMode) (*JournalSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return nil, fmt.Errorf("sink: creating journal file %s: %w", path, err)
	}
	return &JournalSink{file: f, path: path}, nil
}

// Path returns the journal file's path, transferred to the relay-only
// connection the lifecycle controller constructs on FINISHED.
func (s *JournalSink) Path() string {
	return s.path
}

// Close closes the journal file without removing it. Callers unlink it
// separately once ReplayJournal has returned without error.
func (s *JournalSink) Close() error {
	return s.file.Close()
}

func (s *JournalSink) append(kind wire.Kind, body any) error {
	env, err := wire.Pack(kind, body)
	if err != nil {
		return fmt.Errorf("sink: repacking %s for journal: %w", kind, err)
	}
	data, err := wire.Encode(env)
	if err != nil {
		return fmt.Errorf("sink: encoding journal entry: %w", err)
	}
	if err := wire.WriteFrame(s.file, data); err != nil {
		return fmt.Errorf("sink: writing journal entry: %w", err)
	}
	return nil
}

func (s *JournalSink) Accept(c *session.Closure, msg wire.Accept) error {
	return s.append(wire.KindAccept, msg)
}

func (s *JournalSink) Reject(c *session.Closure, msg wire.Reject) error {
	return s.append(wire.KindReject, msg)
}

func (s *JournalSink) Exit(c *session.Closure, msg wire.Exit) error {
	return s.append(wire.KindExit, msg)
}

func (s *JournalSink) Restart(c *session.Closure, msg wire.Restart) error {
	return s.append(wire.KindRestart, msg)
}

func (s *JournalSink) Alert(c *session.Closure, msg wire.Alert) error {
	return s.append(wire.KindAlert, msg)
}

func (s *JournalSink) IOBuffer(c *session.Closure, msg wire.IOBuffer) error {
	return s.append(wire.KindIOBuffer, msg)
}

func (s *JournalSink) ChangeWindowSize(c *session.Closure, msg wire.ChangeWindowSize) error {
	return s.append(wire.KindChangeWindowSize, msg)
}

func (s *JournalSink) CommandSuspend(c *session.Closure, msg wire.CommandSuspend) error {
	return s.append(wire.KindCommandSuspend, msg)
}

// ReplayJournal reads a completed journal file frame by frame and
// forwards each entry to the relay client, mirroring the lifecycle
// controller's action on FINISHED: "constructs a new relay-only
// connection parented on the journal's file descriptor... and calls
// connect_relay". It returns nil once every entry has been written to
// the relay connection without error; no reply from the relay is
// read, so success does not mean the relay acknowledged the replay.
// ReplayJournal does not unlink the file: the caller does that on
// success, and a failed replay leaves it in place.
func ReplayJournal(path string, client *relayclient.Client) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("sink: opening journal %s for replay: %w", path, err)
	}
	defer f.Close()

	frame := wire.NewFrame()
	buf := make([]byte, 32*1024)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			feedErr := frame.Feed(buf[:n], func(payload []byte) error {
				env, decodeErr := wire.Decode(payload)
				if decodeErr != nil {
					return decodeErr
				}
				return client.Send(env)
			})
			if feedErr != nil {
				return fmt.Errorf("sink: replaying journal %s: %w", path, feedErr)
			}
		}
		if readErr != nil {
			break
		}
	}
	return nil
}
