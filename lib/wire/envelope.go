// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"

	"github.com/sudoaudit/logsrvd/lib/codec"
)

// Kind discriminates the payload carried by an Envelope. CBOR has no
// native sum type, so every message on the wire is packed as an
// Envelope with a Kind tag and a Payload holding the kind-specific
// CBOR-encoded body.
type Kind string

const (
	KindClientHello      Kind = "client_hello"
	KindAccept           Kind = "accept"
	KindReject           Kind = "reject"
	KindRestart          Kind = "restart"
	KindExit             Kind = "exit"
	KindAlert            Kind = "alert"
	KindIOBuffer         Kind = "iobuffer"
	KindChangeWindowSize Kind = "change_window_size"
	KindCommandSuspend   Kind = "command_suspend"
	KindServerHello      Kind = "server_hello"
	KindLogID            Kind = "log_id"
	KindCommitPoint      Kind = "commit_point"
	KindError            Kind = "error"
)

// Envelope is the top-level structure encoded onto the wire. Payload
// is the CBOR encoding of the message named by Kind.
type Envelope struct {
	Kind    Kind             `cbor:"kind"`
	Payload codec.RawMessage `cbor:"payload"`
}

// Pack encodes a message body into an Envelope with the given Kind.
func Pack(kind Kind, body any) (Envelope, error) {
	payload, err := codec.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: packing %s: %w", kind, err)
	}
	return Envelope{Kind: kind, Payload: payload}, nil
}

// Unpack decodes an Envelope's payload into out, which must be a
// pointer to the Go type matching env.Kind.
func Unpack(env Envelope, out any) error {
	if err := codec.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("wire: unpacking %s: %w", env.Kind, err)
	}
	return nil
}

// Encode marshals an Envelope to its CBOR representation, the byte
// slice that the frame codec length-prefixes onto the write queue.
func Encode(env Envelope) ([]byte, error) {
	data, err := codec.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding envelope: %w", err)
	}
	return data, nil
}

// Decode unmarshals a frame's payload bytes into an Envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decoding envelope: %w", err)
	}
	return env, nil
}

// InboundKinds lists the message kinds a client may legally send.
// Used by the state machine (§4.3) to reject an unrecognized
// ClientMessage type with the taxonomy's protocol error before any
// per-state legality check runs.
var InboundKinds = map[Kind]bool{
	KindClientHello:      true,
	KindAccept:           true,
	KindReject:           true,
	KindRestart:          true,
	KindExit:             true,
	KindAlert:            true,
	KindIOBuffer:         true,
	KindChangeWindowSize: true,
	KindCommandSuspend:   true,
}
