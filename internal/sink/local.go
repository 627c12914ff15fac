// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sink implements the three connection sinks named in spec.md
// §4.4: local persistence, live relay forwarding, and journal-then-
// forward. Exactly one is bound to a session.Closure at construction
// (session.Sink); dispatch never switches sinks mid-connection.
package sink

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/sudoaudit/logsrvd/internal/eventlog"
	"github.com/sudoaudit/logsrvd/internal/iolog"
	"github.com/sudoaudit/logsrvd/internal/session"
	"github.com/sudoaudit/logsrvd/lib/wire"
)

// LocalSink persists a session to the local event log and, when the
// client requests it, an I/O log replay stream. This is the default
// sink when no relay is configured (§4.4's sink selection rule).
type LocalSink struct {
	IOLogDir              string
	IOLogMode             os.FileMode
	EventLogDir           string
	EventLogMode          os.FileMode
	RandomDropProbability float64

	logger *slog.Logger

	evlog     *eventlog.Log
	iodir     *iolog.Dir
	sessionID string
}

// NewLocalSink constructs a LocalSink bound to the given storage roots.
func NewLocalSink(ioLogDir string, ioLogMode os.FileMode, eventLogDir string, eventLogMode os.FileMode, randomDropProbability float64, logger *slog.Logger) *LocalSink {
	return &LocalSink{
		IOLogDir:              ioLogDir,
		IOLogMode:             ioLogMode,
		EventLogDir:           eventLogDir,
		EventLogMode:          eventLogMode,
		RandomDropProbability: randomDropProbability,
		logger:                logger,
	}
}

// newSessionID generates the session identifier used to name both the
// event log file and, when I/O logging is active, the I/O log
// directory. The original derives this from the accept time and a
// per-process sequence; sixteen random hex bytes serve the same
// purpose here without a shared sequence counter to synchronize
// across connections.
func newSessionID() (string, error) {
	var buf [16]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("sink: generating session id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// Accept mirrors store_accept_local: opens the session's event log,
// and if the client expects I/O buffers, its I/O log directory too,
// then sends the client the LogID it will need to Restart.
func (s *LocalSink) Accept(c *session.Closure, msg wire.Accept) error {
	sessionID, err := newSessionID()
	if err != nil {
		return c.Fail(err.Error())
	}
	s.sessionID = sessionID

	evlog, err := eventlog.Open(s.EventLogDir, sessionID+".evlog", s.EventLogMode)
	if err != nil {
		return c.Fail(fmt.Sprintf("error creating event log: %v", err))
	}
	s.evlog = evlog

	if err := s.evlog.Accept(msg.SubmitTime, msg.Info); err != nil {
		return c.Fail(fmt.Sprintf("error logging accept event: %v", err))
	}

	if msg.ExpectIOBufs {
		iodir, err := iolog.Open(s.IOLogDir, sessionID, s.IOLogMode)
		if err != nil {
			return c.Fail(fmt.Sprintf("error creating I/O log: %v", err))
		}
		s.iodir = iodir
		if err := c.EnqueueLogID(iodir.Path()); err != nil {
			return c.Fail(fmt.Sprintf("error sending log id: %v", err))
		}
	}

	return nil
}

// Reject mirrors handle_reject: logs the rejection, no I/O log is ever
// created for a rejected invocation.
func (s *LocalSink) Reject(c *session.Closure, msg wire.Reject) error {
	sessionID, err := newSessionID()
	if err != nil {
		return c.Fail(err.Error())
	}
	evlog, err := eventlog.Open(s.EventLogDir, sessionID+".evlog", s.EventLogMode)
	if err != nil {
		return c.Fail(fmt.Sprintf("error creating event log: %v", err))
	}
	defer evlog.Close()

	if err := evlog.Reject(msg.SubmitTime, msg.Reason, msg.Info); err != nil {
		return c.Fail(fmt.Sprintf("error logging reject event: %v", err))
	}
	return nil
}

// Restart mirrors store_restart_local: reopens the I/O log directory
// named by msg.LogID and the session's event log, so subsequent
// IOBuffer calls append to the end of the existing stream files.
// msg.ResumePoint is not used: nothing already written is truncated
// or skipped.
func (s *LocalSink) Restart(c *session.Closure, msg wire.Restart) error {
	if msg.LogID == "" {
		return fmt.Errorf("sink: restart requires a non-empty log id")
	}
	iodir, err := iolog.OpenExisting(msg.LogID, s.IOLogMode)
	if err != nil {
		return fmt.Errorf("sink: reopening I/O log %s: %w", msg.LogID, err)
	}
	s.iodir = iodir
	sessionID := filepath.Base(msg.LogID)
	s.sessionID = sessionID

	evlog, err := eventlog.OpenExisting(filepath.Join(s.EventLogDir, sessionID+".evlog"), s.EventLogMode)
	if err != nil {
		return fmt.Errorf("sink: reopening event log for %s: %w", msg.LogID, err)
	}
	s.evlog = evlog
	return nil
}

// Exit mirrors store_exit_local: records the exit event and, when I/O
// logging was active, clears the timing file's write bits.
func (s *LocalSink) Exit(c *session.Closure, msg wire.Exit) error {
	if s.evlog != nil {
		if err := s.evlog.Exit(msg.ExitValue, msg.RunTime, msg.DumpedCore); err != nil {
			return c.Fail(fmt.Sprintf("error logging exit event: %v", err))
		}
		s.evlog.Close()
	}
	if s.iodir != nil {
		if err := s.iodir.Finish(); err != nil {
			c.Logger.Warn("finishing I/O log", "error", err)
		}
	}
	return nil
}

// Alert mirrors handle_alert's local branch.
func (s *LocalSink) Alert(c *session.Closure, msg wire.Alert) error {
	if s.evlog == nil {
		return fmt.Errorf("sink: alert received before accept")
	}
	return s.evlog.Alert(msg.AlertTime, msg.Reason)
}

// IOBuffer mirrors store_iobuf_local, plus the -R/--random-drop
// debugging aid (§11): with probability RandomDropProbability, the
// buffer is silently discarded and an error is returned to force
// connection teardown, exercising the client's restart path.
func (s *LocalSink) IOBuffer(c *session.Closure, msg wire.IOBuffer) error {
	if s.RandomDropProbability > 0 && rand.Float64() < s.RandomDropProbability {
		c.Logger.Debug("random-drop: discarding IOBuffer", "stream", msg.Stream)
		return fmt.Errorf("sink: random-drop triggered")
	}
	if s.iodir == nil {
		return fmt.Errorf("sink: I/O buffer received but no I/O log is open")
	}
	return s.iodir.WriteBuffer(msg)
}

// ChangeWindowSize mirrors store_winsize_local.
func (s *LocalSink) ChangeWindowSize(c *session.Closure, msg wire.ChangeWindowSize) error {
	if s.iodir == nil {
		return nil
	}
	return s.iodir.WriteWindowChange(msg)
}

// CommandSuspend mirrors store_suspend_local.
func (s *LocalSink) CommandSuspend(c *session.Closure, msg wire.CommandSuspend) error {
	if s.iodir == nil {
		return nil
	}
	return s.iodir.WriteSuspend(msg)
}
