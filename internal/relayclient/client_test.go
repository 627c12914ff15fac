// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relayclient

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sudoaudit/logsrvd/lib/config"
	"github.com/sudoaudit/logsrvd/lib/wire"
)

func startEchoListener(t *testing.T) (config.RelayEndpoint, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				conn.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return config.RelayEndpoint{Address: host, Port: port}, func() { ln.Close() }
}

func TestDialFirstReachableEndpoint(t *testing.T) {
	ep, cleanup := startEchoListener(t)
	defer cleanup()

	unreachable := config.RelayEndpoint{Address: "127.0.0.1", Port: 1}
	client, err := Dial(context.Background(), []config.RelayEndpoint{unreachable, ep}, nil, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
}

func TestDialAllEndpointsFail(t *testing.T) {
	unreachable := config.RelayEndpoint{Address: "127.0.0.1", Port: 1}
	_, err := Dial(context.Background(), []config.RelayEndpoint{unreachable}, nil, 200*time.Millisecond)
	if err == nil {
		t.Fatal("Dial() = nil error, want failure")
	}
}

func TestSendReceiveRoundtrip(t *testing.T) {
	ep, cleanup := startEchoListener(t)
	defer cleanup()

	client, err := Dial(context.Background(), []config.RelayEndpoint{ep}, nil, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	env, err := wire.Pack(wire.KindClientHello, wire.ClientHello{ClientID: "relay-test"})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if err := client.Send(env); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, err := client.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got.Kind != wire.KindClientHello {
		t.Errorf("Receive().Kind = %s, want %s", got.Kind, wire.KindClientHello)
	}

	var hello wire.ClientHello
	if err := wire.Unpack(got, &hello); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if hello.ClientID != "relay-test" {
		t.Errorf("ClientID = %q, want relay-test", hello.ClientID)
	}
}

func TestDialErrorMentionsAllEndpointsFailed(t *testing.T) {
	unreachable := config.RelayEndpoint{Address: "127.0.0.1", Port: 1}
	_, err := Dial(context.Background(), []config.RelayEndpoint{unreachable}, nil, 200*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "all endpoints failed") {
		t.Errorf("Dial() error = %v, want mention of all endpoints failing", err)
	}
}
