// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relayclient implements the outbound half of forwarding a
// session to an upstream server of this system's own kind (spec.md
// §1's "upstream relay of its own kind"). It is a narrow collaborator:
// internal/sink's RelaySink and the journal-then-forward path both
// drive a Client without knowing how it manages its socket.
package relayclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/sudoaudit/logsrvd/lib/config"
	"github.com/sudoaudit/logsrvd/lib/wire"
)

// Client is one connection to an upstream relay: a dialed socket plus
// the same framed wire codec used on the inbound side.
type Client struct {
	conn net.Conn
	read *wire.Frame
}

// Dial tries each endpoint in order, using the first that completes a
// connection, mirroring spec.md §6's relay endpoint list semantics
// ("first that completes a connection is used"). dialTimeout bounds
// each individual attempt.
func Dial(ctx context.Context, endpoints []config.RelayEndpoint, tlsConfig *tls.Config, dialTimeout time.Duration) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("relayclient: no relay endpoints configured")
	}

	var lastErr error
	dialer := &net.Dialer{Timeout: dialTimeout}
	for _, ep := range endpoints {
		addr := net.JoinHostPort(ep.Address, fmt.Sprintf("%d", ep.Port))

		var conn net.Conn
		var err error
		if ep.TLS {
			conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		} else {
			conn, err = dialer.DialContext(ctx, "tcp", addr)
		}
		if err != nil {
			lastErr = err
			continue
		}
		return &Client{conn: conn, read: wire.NewFrame()}, nil
	}

	return nil, fmt.Errorf("relayclient: all endpoints failed, last error: %w", lastErr)
}

// Send frames and writes one envelope to the relay connection.
func (c *Client) Send(env wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return fmt.Errorf("relayclient: encoding envelope: %w", err)
	}
	return wire.WriteFrame(c.conn, data)
}

// Receive blocks for the next complete envelope from the relay
// connection, reading and re-framing as many bytes as needed.
func (c *Client) Receive() (wire.Envelope, error) {
	var result wire.Envelope
	var got bool

	buf := make([]byte, 4096)
	for !got {
		n, err := c.conn.Read(buf)
		if n > 0 {
			feedErr := c.read.Feed(buf[:n], func(payload []byte) error {
				env, decodeErr := wire.Decode(payload)
				if decodeErr != nil {
					return decodeErr
				}
				result = env
				got = true
				return nil
			})
			if feedErr != nil {
				return wire.Envelope{}, fmt.Errorf("relayclient: framing error: %w", feedErr)
			}
		}
		if err != nil {
			if got {
				break
			}
			return wire.Envelope{}, fmt.Errorf("relayclient: reading from relay: %w", err)
		}
	}
	return result, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
