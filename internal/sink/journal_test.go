// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sudoaudit/logsrvd/internal/relayclient"
	"github.com/sudoaudit/logsrvd/internal/session"
	"github.com/sudoaudit/logsrvd/lib/config"
	"github.com/sudoaudit/logsrvd/lib/wire"
)

func TestJournalSinkAppendsFramedEntries(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "conn-1.journal")

	js, err := NewJournalSink(path, 0600)
	if err != nil {
		t.Fatalf("NewJournalSink: %v", err)
	}
	c := session.New("peer", js, testLogger())

	if err := js.Accept(c, wire.Accept{SubmitTime: time.Unix(0, 0)}); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := js.IOBuffer(c, wire.IOBuffer{Stream: wire.StreamStdout, Data: []byte("hi")}); err != nil {
		t.Fatalf("IOBuffer: %v", err)
	}
	if err := js.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if js.Path() != path {
		t.Errorf("Path() = %q, want %q", js.Path(), path)
	}
}

func TestReplayJournalForwardsEveryEntry(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "conn-2.journal")

	js, err := NewJournalSink(path, 0600)
	if err != nil {
		t.Fatalf("NewJournalSink: %v", err)
	}
	c := session.New("peer", js, testLogger())
	js.Accept(c, wire.Accept{SubmitTime: time.Unix(0, 0)})
	js.IOBuffer(c, wire.IOBuffer{Stream: wire.StreamStdout, Data: []byte("replay-me")})
	js.Exit(c, wire.Exit{ExitValue: 0})
	js.Close()

	ep, received, cleanup := startCapturingRelay(t)
	defer cleanup()

	client, err := relayclient.Dial(context.Background(), []config.RelayEndpoint{ep}, nil, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := ReplayJournal(path, client); err != nil {
		t.Fatalf("ReplayJournal: %v", err)
	}

	var kinds []wire.Kind
	timeout := time.After(2 * time.Second)
	for len(kinds) < 3 {
		select {
		case env := <-received:
			kinds = append(kinds, env.Kind)
		case <-timeout:
			t.Fatalf("timed out, only got %d of 3 entries", len(kinds))
		}
	}

	want := []wire.Kind{wire.KindAccept, wire.KindIOBuffer, wire.KindExit}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("entry %d kind = %s, want %s", i, kinds[i], k)
		}
	}
}
