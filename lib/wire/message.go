// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the client-server protocol messages and the
// framed codec that carries them.
package wire

import "time"

// StreamID identifies which of the five I/O buffer channels a payload
// belongs to.
type StreamID uint8

const (
	StreamTTYIn StreamID = iota
	StreamTTYOut
	StreamStdin
	StreamStdout
	StreamStderr
)

func (s StreamID) String() string {
	switch s {
	case StreamTTYIn:
		return "ttyin"
	case StreamTTYOut:
		return "ttyout"
	case StreamStdin:
		return "stdin"
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// InfoPair is one entry of a message's repeated key/value event
// information list. The core never interprets the value's semantic
// content (spec Non-goals); it is opaque data forwarded to sinks.
type InfoPair struct {
	Key   string `cbor:"key"`
	Value string `cbor:"value"`
}

// ClientHello is the first message a client may send. It is stateless
// beyond logging: the connection replies with ServerHello but performs
// no state transition on it.
type ClientHello struct {
	ClientID string `cbor:"client_id"`
}

// Accept records the server's decision to allow a command invocation
// to proceed. SubmitTime is when the client observed the invocation;
// Info carries free-form command/environment details.
type Accept struct {
	SubmitTime   time.Time  `cbor:"submit_time"`
	Info         []InfoPair `cbor:"info,omitempty"`
	ExpectIOBufs bool       `cbor:"expect_iobufs"`
}

// Reject records the server's decision to deny a command invocation.
type Reject struct {
	SubmitTime time.Time  `cbor:"submit_time"`
	Reason     string     `cbor:"reason"`
	Info       []InfoPair `cbor:"info,omitempty"`
}

// Restart resumes an existing I/O log identified by LogID, picking up
// at ResumePoint (elapsed seconds/nanoseconds since the session
// began).
type Restart struct {
	LogID       string        `cbor:"log_id"`
	ResumePoint CommitElapsed `cbor:"resume_point"`
}

// Exit records a command invocation's termination. DumpedCore mirrors
// the original implementation's ExitMessage field (§11 supplement):
// the original also carries it alongside ExitValue and RunTime.
type Exit struct {
	ExitValue  int32         `cbor:"exit_value"`
	RunTime    CommitElapsed `cbor:"run_time"`
	DumpedCore bool          `cbor:"dumped_core"`
}

// Alert carries an out-of-band notice (e.g. a policy violation
// surfaced mid-session). Reason and AlertTime are the original's
// supplemented fields (§11), distinct from the session's submit time.
type Alert struct {
	Reason    string    `cbor:"reason"`
	AlertTime time.Time `cbor:"alert_time"`
}

// IOBuffer carries one chunk of terminal I/O for the given stream.
// Delay is the elapsed time since the session began at which this
// chunk was captured, used to reconstruct playback timing.
type IOBuffer struct {
	Stream StreamID      `cbor:"stream"`
	Delay  CommitElapsed `cbor:"delay"`
	Data   []byte        `cbor:"data"`
}

// ChangeWindowSize records a terminal resize event.
type ChangeWindowSize struct {
	Delay CommitElapsed `cbor:"delay"`
	Rows  uint16        `cbor:"rows"`
	Cols  uint16        `cbor:"cols"`
}

// CommandSuspend records a job-control suspend/resume signal.
type CommandSuspend struct {
	Delay  CommitElapsed `cbor:"delay"`
	Signal string        `cbor:"signal"`
}

// ServerHello is sent once, immediately after a connection completes
// its handshake (and TLS, if enabled). ServerID identifies this
// server instance to the client.
type ServerHello struct {
	ServerID string `cbor:"server_id"`
}

// LogID is sent after a successful Accept with ExpectIOBufs set. Path
// is the identifier the client should present on Restart.
type LogID struct {
	Path string `cbor:"path"`
}

// CommitElapsed is a seconds/nanoseconds pair, matching the wire
// representation used by CommitPoint and every Delay/RunTime/
// ResumePoint field above.
type CommitElapsed struct {
	Seconds     int64  `cbor:"seconds"`
	Nanoseconds uint32 `cbor:"nanoseconds"`
}

// CommitPoint acknowledges durability up to Elapsed time into the
// session, emitted periodically by the commit-point scheduler (§4.5)
// or echoed from an attached relay.
type CommitPoint struct {
	Elapsed CommitElapsed `cbor:"elapsed"`
}

// Error is sent to the client immediately before the connection is
// closed following a protocol error (§7).
type Error struct {
	Message string `cbor:"message"`
}
