// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"testing"
	"time"
)

func TestPackUnpackAccept(t *testing.T) {
	original := Accept{
		SubmitTime:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Info:         []InfoPair{{Key: "command", Value: "/usr/bin/id"}},
		ExpectIOBufs: true,
	}

	env, err := Pack(KindAccept, original)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if env.Kind != KindAccept {
		t.Fatalf("Kind = %s, want %s", env.Kind, KindAccept)
	}

	var decoded Accept
	if err := Unpack(env, &decoded); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	if !decoded.SubmitTime.Equal(original.SubmitTime) {
		t.Errorf("SubmitTime = %v, want %v", decoded.SubmitTime, original.SubmitTime)
	}
	if decoded.ExpectIOBufs != original.ExpectIOBufs {
		t.Errorf("ExpectIOBufs = %v, want %v", decoded.ExpectIOBufs, original.ExpectIOBufs)
	}
	if len(decoded.Info) != 1 || decoded.Info[0] != original.Info[0] {
		t.Errorf("Info = %+v, want %+v", decoded.Info, original.Info)
	}
}

func TestEnvelopeEncodeDecodeOverFrame(t *testing.T) {
	body := IOBuffer{
		Stream: StreamStdout,
		Delay:  CommitElapsed{Seconds: 3, Nanoseconds: 500},
		Data:   []byte("hello\n"),
	}

	env, err := Pack(KindIOBuffer, body)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	encoded, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	frame, err := EncodeFrame(encoded)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	f := NewFrame()
	var decodedEnv Envelope
	err = f.Feed(frame, func(payload []byte) error {
		var decodeErr error
		decodedEnv, decodeErr = Decode(payload)
		return decodeErr
	})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if decodedEnv.Kind != KindIOBuffer {
		t.Fatalf("Kind = %s, want %s", decodedEnv.Kind, KindIOBuffer)
	}

	var decoded IOBuffer
	if err := Unpack(decodedEnv, &decoded); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if decoded.Stream != body.Stream {
		t.Errorf("Stream = %v, want %v", decoded.Stream, body.Stream)
	}
	if string(decoded.Data) != string(body.Data) {
		t.Errorf("Data = %q, want %q", decoded.Data, body.Data)
	}
}

func TestInboundKindsExcludesServerOnlyKinds(t *testing.T) {
	serverOnly := []Kind{KindServerHello, KindLogID, KindCommitPoint, KindError}
	for _, kind := range serverOnly {
		if InboundKinds[kind] {
			t.Errorf("InboundKinds should not include server-only kind %s", kind)
		}
	}

	clientKinds := []Kind{KindClientHello, KindAccept, KindReject, KindRestart, KindExit, KindAlert, KindIOBuffer, KindChangeWindowSize, KindCommandSuspend}
	for _, kind := range clientKinds {
		if !InboundKinds[kind] {
			t.Errorf("InboundKinds should include client kind %s", kind)
		}
	}
}

func TestStreamIDString(t *testing.T) {
	tests := map[StreamID]string{
		StreamTTYIn:       "ttyin",
		StreamTTYOut:      "ttyout",
		StreamStdin:       "stdin",
		StreamStdout:      "stdout",
		StreamStderr:      "stderr",
		StreamID(99):      "unknown",
	}
	for id, want := range tests {
		if got := id.String(); got != want {
			t.Errorf("StreamID(%d).String() = %q, want %q", id, got, want)
		}
	}
}
