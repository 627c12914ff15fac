// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventlog formats the structured, human-readable audit record
// for a session: the accept/reject/alert/exit events named in §3's
// "Event log" glossary entry. It is a narrow collaborator the core
// dispatches into by session identifier — it owns no connection state.
package eventlog

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/sudoaudit/logsrvd/lib/codec"
	"github.com/sudoaudit/logsrvd/lib/wire"
)

// Record is one CBOR-encoded line of a session's event log. Exactly
// one Record is appended per Accept/Reject/Alert/Exit call.
type Record struct {
	Time       time.Time          `cbor:"time"`
	Kind       string             `cbor:"kind"`
	SubmitTime time.Time          `cbor:"submit_time,omitempty"`
	Info       []wire.InfoPair    `cbor:"info,omitempty"`
	Reason     string             `cbor:"reason,omitempty"`
	AlertTime  time.Time          `cbor:"alert_time,omitempty"`
	ExitValue  int32              `cbor:"exit_value,omitempty"`
	RunTime    wire.CommitElapsed `cbor:"run_time,omitempty"`
	DumpedCore bool               `cbor:"dumped_core,omitempty"`
	Digest     string             `cbor:"digest"`
}

// digestKey is the fixed key eventlog uses to key its BLAKE3 digests.
// A fixed, non-secret key is sufficient here: the digest exists to let
// an operator verify byte-identical replay (P5), not to authenticate
// the record against tampering.
var digestKey = [32]byte{'s', 'u', 'd', 'o', 'a', 'u', 'd', 'i', 't', '-', 'e', 'v', 'e', 'n', 't', 'l', 'o', 'g'}

func digest(r Record) string {
	r.Digest = ""
	data, err := codec.Marshal(r)
	if err != nil {
		return ""
	}
	h, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("eventlog: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Log is one session's append-only event log file, CBOR-framed one
// record per write.
type Log struct {
	mu   sync.Mutex
	file *os.File
}

// Open creates the event log file for a session at dir/name (or opens
// an existing one for append, leaving its contents in place), creating
// dir with mode if it does not exist.
func Open(dir, name string, mode os.FileMode) (*Log, error) {
	if err := os.MkdirAll(dir, mode|0100); err != nil {
		return nil, fmt.Errorf("eventlog: creating %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, mode)
	if err != nil {
		return nil, fmt.Errorf("eventlog: opening log: %w", err)
	}
	return &Log{file: f}, nil
}

// OpenExisting reopens an event log file for append, used when a
// Restart resumes an existing session.
func OpenExisting(path string, mode os.FileMode) (*Log, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, mode)
	if err != nil {
		return nil, fmt.Errorf("eventlog: reopening %s: %w", path, err)
	}
	return &Log{file: f}, nil
}

func (l *Log) append(r Record) error {
	r.Digest = digest(r)
	data, err := codec.Marshal(r)
	if err != nil {
		return fmt.Errorf("eventlog: encoding record: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("eventlog: writing record: %w", err)
	}
	return nil
}

// Accept appends an accept event, mirroring the original's
// eventlog_accept call in store_accept_local.
func (l *Log) Accept(submitTime time.Time, info []wire.InfoPair) error {
	return l.append(Record{Time: submitTime, Kind: "accept", SubmitTime: submitTime, Info: info})
}

// Reject appends a reject event.
func (l *Log) Reject(submitTime time.Time, reason string, info []wire.InfoPair) error {
	return l.append(Record{Time: submitTime, Kind: "reject", SubmitTime: submitTime, Reason: reason, Info: info})
}

// Alert appends an out-of-band alert event, carrying the §11
// supplemented alert_time distinct from the session's submit time.
func (l *Log) Alert(alertTime time.Time, reason string) error {
	return l.append(Record{Time: alertTime, Kind: "alert", Reason: reason, AlertTime: alertTime})
}

// Exit appends the terminal exit event, carrying the §11 supplemented
// dumped_core flag.
func (l *Log) Exit(exitValue int32, runTime wire.CommitElapsed, dumpedCore bool) error {
	return l.append(Record{Time: time.Now(), Kind: "exit", ExitValue: exitValue, RunTime: runTime, DumpedCore: dumpedCore})
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
