// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package iolog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sudoaudit/logsrvd/lib/wire"
)

func TestOpenCreatesTimingFile(t *testing.T) {
	root := t.TempDir()
	dir, err := Open(root, "sess-0001", 0600)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dir.Finish()

	if dir.Path() != filepath.Join(root, "sess-0001") {
		t.Errorf("Path() = %q", dir.Path())
	}
	if _, err := os.Stat(filepath.Join(dir.Path(), "timing")); err != nil {
		t.Errorf("timing file not created: %v", err)
	}
}

func TestWriteBufferCreatesStreamFileAndTimingLine(t *testing.T) {
	root := t.TempDir()
	dir, err := Open(root, "sess-0002", 0600)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dir.Finish()

	msg := wire.IOBuffer{Stream: wire.StreamStdout, Delay: wire.CommitElapsed{Seconds: 1, Nanoseconds: 500}, Data: []byte("hello")}
	if err := dir.WriteBuffer(msg); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir.Path(), "stdout")); err != nil {
		t.Errorf("stream file not created: %v", err)
	}

	timingData, err := os.ReadFile(filepath.Join(dir.Path(), "timing"))
	if err != nil {
		t.Fatalf("reading timing file: %v", err)
	}
	if len(timingData) == 0 {
		t.Error("expected non-empty timing file")
	}
}

func TestDigestReflectsWrittenData(t *testing.T) {
	root := t.TempDir()
	dir, err := Open(root, "sess-0003", 0600)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dir.Finish()

	if got := dir.Digest(wire.StreamStdout); got != "" {
		t.Errorf("Digest() before any write = %q, want empty", got)
	}

	dir.WriteBuffer(wire.IOBuffer{Stream: wire.StreamStdout, Data: []byte("a")})
	first := dir.Digest(wire.StreamStdout)
	if first == "" {
		t.Fatal("expected non-empty digest after write")
	}

	dir.WriteBuffer(wire.IOBuffer{Stream: wire.StreamStdout, Data: []byte("b")})
	second := dir.Digest(wire.StreamStdout)
	if second == first {
		t.Error("expected digest to change after additional data written")
	}
}

func TestFinishClearsWriteBits(t *testing.T) {
	root := t.TempDir()
	dir, err := Open(root, "sess-0004", 0600)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := dir.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	info, err := os.Stat(filepath.Join(root, "sess-0004", "timing"))
	if err != nil {
		t.Fatalf("stat timing: %v", err)
	}
	if info.Mode().Perm()&0222 != 0 {
		t.Errorf("timing file mode %v still has write bits set", info.Mode())
	}
}

func TestSelectCompressionPicksZstdForTextLikeStreams(t *testing.T) {
	if SelectCompression(true) != CompressionZstd {
		t.Error("expected zstd for text-like stream")
	}
	if SelectCompression(false) != CompressionLZ4 {
		t.Error("expected lz4 for non-text-like stream")
	}
}
