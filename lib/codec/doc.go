// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the daemon's standard CBOR encoding
// configuration.
//
// Every structured payload that crosses a wire or lands on disk — the
// client↔server protocol envelope, event log records, I/O log journal
// records — is CBOR (RFC 8949), using Core Deterministic Encoding
// (§4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical record always produces
// identical bytes, which matters for the journal: two replays of the
// same session must hash identically.
//
// For buffer-oriented operations (journal records, event log entries):
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// For stream-oriented operations (the framed connection protocol):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// The connection framing layer does not use NewEncoder/NewDecoder
// directly — it prefixes each CBOR item with a 4-byte big-endian length
// so a short read can be distinguished from a malformed message before
// the decoder ever runs. See the wire package for that framing.
//
// # Struct Tags
//
// All message and record types in this module use `cbor` struct tags.
// There is no JSON-serialized counterpart to any wire or on-disk type,
// so there is no `json`-tag fallback convention to document here —
// every field has exactly one tag, and it is `cbor`.
package codec
