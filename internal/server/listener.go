// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server ties the framed codec, the connection state machine,
// the bound sink, and the commit-point scheduler together into the
// network-facing half of the daemon (§4.6-§4.8): the TLS adapter, the
// listener and accept loop, and the lifecycle controller.
package server

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/sudoaudit/logsrvd/lib/config"
)

// Listen creates a TCP listener for one configured endpoint,
// following §4.7: SO_REUSEADDR always, IPV6_V6ONLY for IPv6
// endpoints, and (if enabled) SO_KEEPALIVE on every accepted
// connection — applied here via net.ListenConfig.Control rather than
// the original's direct setsockopt calls on a non-blocking fd, since
// Go's net package already owns the fd's blocking/nonblocking mode.
func Listen(ctx context.Context, lc config.ListenerConfig, keepAlive bool) (net.Listener, error) {
	listenConfig := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var controlErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					controlErr = fmt.Errorf("SO_REUSEADDR: %w", err)
					return
				}
				if lc.Family == config.FamilyIPv6 {
					if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
						controlErr = fmt.Errorf("IPV6_V6ONLY: %w", err)
						return
					}
				}
			})
			if err != nil {
				return err
			}
			return controlErr
		},
	}

	network := "tcp4"
	if lc.Family == config.FamilyIPv6 {
		network = "tcp6"
	}

	addr := net.JoinHostPort(lc.Address, fmt.Sprintf("%d", lc.Port))
	ln, err := listenConfig.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("server: listening on %s: %w", addr, err)
	}

	if !keepAlive {
		return ln, nil
	}
	return &keepAliveListener{ln.(*net.TCPListener)}, nil
}

// keepAliveListener wraps a *net.TCPListener to enable SO_KEEPALIVE on
// every connection it accepts, the per-configuration behavior named
// in §4.7 ("optionally enables SO_KEEPALIVE per configuration").
type keepAliveListener struct {
	*net.TCPListener
}

func (ln *keepAliveListener) Accept() (net.Conn, error) {
	conn, err := ln.TCPListener.AcceptTCP()
	if err != nil {
		return nil, err
	}
	if err := conn.SetKeepAlive(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("server: enabling keepalive: %w", err)
	}
	return conn, nil
}
