// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// HandshakeInfo records the negotiated session parameters for
// diagnostics, the successful-handshake outcome named in §4.6 ("the
// adapter records the negotiated version and cipher for diagnostics").
type HandshakeInfo struct {
	Version     uint16
	CipherSuite uint16
	ServerName  string
}

// handshake drives a TLS server handshake to completion against conn
// within deadline, returning the wrapped connection and its negotiated
// parameters.
//
// §4.6 describes two reentrancy bits a libevent-based reactor needs to
// track protocol-internal rekeying (SSL_read/SSL_write returning a
// want-write/want-read signal mid-operation): read_instead_of_write,
// write_instead_of_read, and a temporary write-event marker. Go's
// crypto/tls.Conn resolves that same reentrancy internally within a
// single blocking Handshake/Read/Write call — there is no event
// direction for this goroutine to reassign, since the goroutine simply
// blocks until the operation (including any internal renegotiation
// round trip) completes. Those three fields remain on session.Closure
// for diagnostic parity with the original's event-loop bookkeeping,
// but this adapter never needs to set them: Go's blocking-I/O
// connection model makes them structurally unreachable dead state, not
// behavior this implementation chooses to skip.
func handshake(conn net.Conn, tlsConfig *tls.Config, deadline time.Duration) (*tls.Conn, HandshakeInfo, error) {
	if err := conn.SetDeadline(time.Now().Add(deadline)); err != nil {
		return nil, HandshakeInfo{}, fmt.Errorf("server: setting handshake deadline: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	tlsConn := tls.Server(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		tlsConn.Close()
		return nil, HandshakeInfo{}, fmt.Errorf("server: TLS handshake: %w", err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		tlsConn.Close()
		return nil, HandshakeInfo{}, fmt.Errorf("server: clearing handshake deadline: %w", err)
	}

	state := tlsConn.ConnectionState()
	return tlsConn, HandshakeInfo{
		Version:     state.Version,
		CipherSuite: state.CipherSuite,
		ServerName:  state.ServerName,
	}, nil
}
