// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package iolog constructs and writes the on-disk I/O log directory
// tree for one session: a timing file recording, per stream, the
// elapsed delay and byte count of each buffer, and one file per
// StreamID holding the (optionally compressed) buffer contents
// themselves. This is the replayable stream named in spec.md's
// glossary, kept as a narrow collaborator behind the interface
// internal/sink dispatches into.
package iolog

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/sudoaudit/logsrvd/lib/wire"
)

var digestKey = [32]byte{'s', 'u', 'd', 'o', 'a', 'u', 'd', 'i', 't', '-', 'i', 'o', 'l', 'o', 'g'}

// textLikeStream reports whether a StreamID carries terminal text
// (TTY echo, stdout/stderr) as opposed to raw stdin bytes, deciding
// the compression algorithm SelectCompression picks for that stream's
// file.
func textLikeStream(s wire.StreamID) bool {
	switch s {
	case wire.StreamTTYOut, wire.StreamStdout, wire.StreamStderr:
		return true
	default:
		return false
	}
}

// streamWriter is one open per-stream file plus its BLAKE3 digest and
// chosen compression tag, fixed after the first write.
type streamWriter struct {
	file    *os.File
	hasher  *blake3.Hasher
	tag     CompressionTag
	tagSet  bool
	written int64
}

// Dir is one session's I/O log directory: the timing file plus one
// file per stream that has carried at least one buffer. Mirrors
// iolog_init/store_iobuf_local's directory layout: a per-session
// directory holding "timing" and per-stream files named after
// StreamID.String().
type Dir struct {
	mu      sync.Mutex
	path    string
	mode    os.FileMode
	dirFD   *os.File
	timing  *os.File
	streams map[wire.StreamID]*streamWriter
}

// Open creates the session's I/O log directory (and its parents) under
// root, named by sessionID, and opens its timing file for writing.
// Mirrors iolog_init: parent directories are created first, then the
// per-session directory, then the timing file.
func Open(root, sessionID string, mode os.FileMode) (*Dir, error) {
	path := filepath.Join(root, sessionID)
	if err := os.MkdirAll(path, mode|0100); err != nil {
		return nil, fmt.Errorf("iolog: creating %s: %w", path, err)
	}
	dirFD, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("iolog: opening directory handle: %w", err)
	}
	timing, err := os.OpenFile(filepath.Join(path, "timing"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		dirFD.Close()
		return nil, fmt.Errorf("iolog: creating timing file: %w", err)
	}
	return &Dir{
		path:    path,
		mode:    mode,
		dirFD:   dirFD,
		timing:  timing,
		streams: make(map[wire.StreamID]*streamWriter),
	}, nil
}

// OpenExisting reopens an already-created I/O log directory (named by
// its full path, as returned by [Dir.Path] and sent to the client as
// LogID.Path) for a Restart, restoring the timing file's write bits
// that Finish cleared on the prior connection's Exit.
func OpenExisting(path string, mode os.FileMode) (*Dir, error) {
	dirFD, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("iolog: opening existing directory %s: %w", path, err)
	}
	timingPath := filepath.Join(path, "timing")
	if err := os.Chmod(timingPath, mode); err != nil {
		dirFD.Close()
		return nil, fmt.Errorf("iolog: restoring timing file write bits: %w", err)
	}
	timing, err := os.OpenFile(timingPath, os.O_WRONLY|os.O_APPEND, mode)
	if err != nil {
		dirFD.Close()
		return nil, fmt.Errorf("iolog: reopening timing file: %w", err)
	}
	return &Dir{
		path:    path,
		mode:    mode,
		dirFD:   dirFD,
		timing:  timing,
		streams: make(map[wire.StreamID]*streamWriter),
	}, nil
}

// Path returns the session's I/O log directory path, the identifier
// sent to the client as LogID.Path and presented back on Restart.
func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) streamFor(stream wire.StreamID) (*streamWriter, error) {
	if sw, ok := d.streams[stream]; ok {
		return sw, nil
	}
	f, err := os.OpenFile(filepath.Join(d.path, stream.String()), os.O_CREATE|os.O_WRONLY|os.O_APPEND, d.mode)
	if err != nil {
		return nil, fmt.Errorf("iolog: creating stream file %s: %w", stream, err)
	}
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("iolog: BLAKE3 keyed hash initialization failed: %w", err)
	}
	sw := &streamWriter{file: f, hasher: hasher, tag: CompressionNone}
	d.streams[stream] = sw
	return sw, nil
}

// WriteBuffer appends one IOBuffer's payload to its stream file
// (compressed once the stream's tag is selected on the first write)
// and records a timing-file line: "<stream> <delay_seconds>.<delay_ns>
// <byte_count>". Mirrors store_iobuf_local's timing-record format.
func (d *Dir) WriteBuffer(msg wire.IOBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sw, err := d.streamFor(msg.Stream)
	if err != nil {
		return err
	}
	if !sw.tagSet {
		sw.tag = SelectCompression(textLikeStream(msg.Stream))
		sw.tagSet = true
	}

	compressed, err := CompressSegment(msg.Data, sw.tag)
	if err != nil {
		if err == errIncompressible {
			compressed = msg.Data
		} else {
			return err
		}
	}
	if _, err := sw.file.Write(compressed); err != nil {
		return fmt.Errorf("iolog: writing %s stream: %w", msg.Stream, err)
	}
	sw.hasher.Write(msg.Data)
	sw.written += int64(len(msg.Data))

	line := fmt.Sprintf("%s %d.%09d %d\n", msg.Stream, msg.Delay.Seconds, msg.Delay.Nanoseconds, len(msg.Data))
	if _, err := d.timing.Write([]byte(line)); err != nil {
		return fmt.Errorf("iolog: writing timing record: %w", err)
	}
	return nil
}

// WriteWindowChange appends a window-resize timing record, mirroring
// store_winsize_local's call into the timing file writer.
func (d *Dir) WriteWindowChange(msg wire.ChangeWindowSize) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	line := fmt.Sprintf("winsize %d.%09d %d %d\n", msg.Delay.Seconds, msg.Delay.Nanoseconds, msg.Rows, msg.Cols)
	if _, err := d.timing.Write([]byte(line)); err != nil {
		return fmt.Errorf("iolog: writing window-change timing record: %w", err)
	}
	return nil
}

// WriteSuspend appends a job-control suspend/resume timing record,
// mirroring store_suspend_local's call into the timing file writer.
func (d *Dir) WriteSuspend(msg wire.CommandSuspend) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	line := fmt.Sprintf("suspend %d.%09d %s\n", msg.Delay.Seconds, msg.Delay.Nanoseconds, msg.Signal)
	if _, err := d.timing.Write([]byte(line)); err != nil {
		return fmt.Errorf("iolog: writing suspend timing record: %w", err)
	}
	return nil
}

// Digest returns the hex-encoded content digest of one stream's
// uncompressed bytes written so far, or "" if the stream was never
// written. Recorded in the session's event log entry (testable
// property P5).
func (d *Dir) Digest(stream wire.StreamID) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	sw, ok := d.streams[stream]
	if !ok {
		return ""
	}
	return hex.EncodeToString(sw.hasher.Sum(nil))
}

// Finish clears the write bits on the timing file to signal
// completion, mirroring store_exit_local's fchmodat call, and closes
// every open stream file plus the directory handle.
func (d *Dir) Finish() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	readOnly := d.mode &^ (0222)
	if err := d.timing.Chmod(readOnly); err != nil {
		return fmt.Errorf("iolog: clearing timing file write bits: %w", err)
	}

	var firstErr error
	if err := d.timing.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, sw := range d.streams {
		if err := sw.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := d.dirFD.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
