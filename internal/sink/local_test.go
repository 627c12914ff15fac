// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/sudoaudit/logsrvd/internal/session"
	"github.com/sudoaudit/logsrvd/lib/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClosure(s *LocalSink) *session.Closure {
	return session.New("127.0.0.1:1234", s, testLogger())
}

func TestLocalSinkAcceptCreatesEventLogAndIOLog(t *testing.T) {
	root := t.TempDir()
	s := NewLocalSink(filepath.Join(root, "iolog"), 0600, filepath.Join(root, "evlog"), 0600, 0, testLogger())
	c := newTestClosure(s)

	msg := wire.Accept{SubmitTime: time.Unix(0, 0), ExpectIOBufs: true}
	if err := s.Accept(c, msg); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if s.evlog == nil {
		t.Error("expected event log to be opened")
	}
	if s.iodir == nil {
		t.Error("expected I/O log to be opened since ExpectIOBufs was true")
	}
	if c.Write.Empty() {
		t.Error("expected a LogID reply enqueued on the write queue")
	}
}

func TestLocalSinkAcceptWithoutIOBufsSkipsIOLog(t *testing.T) {
	root := t.TempDir()
	s := NewLocalSink(filepath.Join(root, "iolog"), 0600, filepath.Join(root, "evlog"), 0600, 0, testLogger())
	c := newTestClosure(s)

	if err := s.Accept(c, wire.Accept{SubmitTime: time.Unix(0, 0)}); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if s.iodir != nil {
		t.Error("expected no I/O log without ExpectIOBufs")
	}
	if !c.Write.Empty() {
		t.Error("expected no LogID reply without an I/O log")
	}
}

func TestLocalSinkIOBufferRequiresPriorAccept(t *testing.T) {
	root := t.TempDir()
	s := NewLocalSink(filepath.Join(root, "iolog"), 0600, filepath.Join(root, "evlog"), 0600, 0, testLogger())
	c := newTestClosure(s)

	err := s.IOBuffer(c, wire.IOBuffer{Stream: wire.StreamStdout, Data: []byte("x")})
	if err == nil {
		t.Fatal("expected error writing IOBuffer with no I/O log open")
	}
}

func TestLocalSinkIOBufferRandomDropAlwaysFails(t *testing.T) {
	root := t.TempDir()
	s := NewLocalSink(filepath.Join(root, "iolog"), 0600, filepath.Join(root, "evlog"), 0600, 1.0, testLogger())
	c := newTestClosure(s)

	if err := s.Accept(c, wire.Accept{SubmitTime: time.Unix(0, 0), ExpectIOBufs: true}); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	err := s.IOBuffer(c, wire.IOBuffer{Stream: wire.StreamStdout, Data: []byte("x")})
	if err == nil {
		t.Fatal("expected random-drop probability of 1.0 to always fail")
	}
}

func TestLocalSinkExitFinishesIOLog(t *testing.T) {
	root := t.TempDir()
	s := NewLocalSink(filepath.Join(root, "iolog"), 0600, filepath.Join(root, "evlog"), 0600, 0, testLogger())
	c := newTestClosure(s)

	if err := s.Accept(c, wire.Accept{SubmitTime: time.Unix(0, 0), ExpectIOBufs: true}); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := s.Exit(c, wire.Exit{ExitValue: 0}); err != nil {
		t.Fatalf("Exit: %v", err)
	}
}

func TestLocalSinkRejectLogsWithoutIOLog(t *testing.T) {
	root := t.TempDir()
	s := NewLocalSink(filepath.Join(root, "iolog"), 0600, filepath.Join(root, "evlog"), 0600, 0, testLogger())
	c := newTestClosure(s)

	if err := s.Reject(c, wire.Reject{SubmitTime: time.Unix(0, 0), Reason: "denied"}); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if s.iodir != nil {
		t.Error("reject must never create an I/O log")
	}
}

func TestLocalSinkAlertRequiresPriorAccept(t *testing.T) {
	root := t.TempDir()
	s := NewLocalSink(filepath.Join(root, "iolog"), 0600, filepath.Join(root, "evlog"), 0600, 0, testLogger())
	c := newTestClosure(s)

	if err := s.Alert(c, wire.Alert{Reason: "x", AlertTime: time.Now()}); err == nil {
		t.Fatal("expected error alerting before accept")
	}
}
