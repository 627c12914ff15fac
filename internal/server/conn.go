// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/sudoaudit/logsrvd/internal/commit"
	"github.com/sudoaudit/logsrvd/internal/relayclient"
	"github.com/sudoaudit/logsrvd/internal/session"
	"github.com/sudoaudit/logsrvd/internal/sink"
	"github.com/sudoaudit/logsrvd/lib/clock"
	"github.com/sudoaudit/logsrvd/lib/config"
	"github.com/sudoaudit/logsrvd/lib/wire"
)

// readEvent is what the dedicated reader goroutine sends to the
// connection's owning goroutine: either a batch of bytes or a
// terminal error (including io.EOF). The reader goroutine never
// touches the Closure — only raw socket bytes cross this channel —
// preserving the single-owner-goroutine invariant SPEC_FULL.md's
// concurrency model requires (see internal/commit's doc comment for
// the same reasoning applied to the commit ticker).
type readEvent struct {
	data []byte
	err  error
}

// relayReadEvent is what the relay-reader goroutine sends back for a
// live-forwarding relay-attached connection: the relay's own
// CommitPoint replies, echoed to the client in place of a locally
// driven commit ticker (invariant 3 never arms one when RelayAttached).
type relayReadEvent struct {
	env wire.Envelope
	err error
}

// connection is one accepted socket's private state, bundling the
// network connection with the protocol Closure that owns it.
type connection struct {
	raw     net.Conn
	closure *session.Closure

	clk           clock.Clock
	serverTimeout time.Duration
	sinkName      string
	metrics       *connMetrics

	// relayClient is non-nil only for a live-forwarding relay-attached
	// connection; run reads the relay's CommitPoint replies off it and
	// echoes them to the client instead of running its own ticker.
	relayClient *relayclient.Client
}

// connMetrics is the narrow slice of *metrics.Registry a connection's
// loop touches, passed down rather than the whole registry so tests
// can exercise the loop without constructing one.
type connMetrics struct {
	MessageReceived func(kind string)
	MessageRejected func(kind string)
	SinkWrite       func(sinkName string)
	SinkError       func(sinkName string)
	ConnectionError func()
	JournalReplayed func()
}

// serve drives one accepted connection end to end: optional TLS
// handshake, ServerHello, then the read/dispatch/write loop until the
// connection reaches a terminal state or the socket errs out. serve
// always closes raw before returning.
func serve(ctx context.Context, raw net.Conn, sel sinkSelection, cfg *config.Config, clk clock.Clock, serverID string, logger *slog.Logger, m *connMetrics) {
	defer raw.Close()

	peer := raw.RemoteAddr().String()
	workConn := raw

	var info HandshakeInfo
	if sel.tlsConfig != nil {
		tlsConn, hsInfo, err := handshake(raw, sel.tlsConfig, cfg.ServerTimeout)
		if err != nil {
			logger.Warn("TLS handshake failed", "peer", peer, "error", err)
			if m != nil {
				m.ConnectionError()
			}
			return
		}
		workConn = tlsConn
		info = hsInfo
	}

	c := session.New(peer, sel.sink, logger)
	c.RelayAttached = sel.relayAttached
	conn := &connection{
		raw:           workConn,
		closure:       c,
		clk:           clk,
		serverTimeout: cfg.ServerTimeout,
		sinkName:      sinkName(sel.sink),
		metrics:       m,
		relayClient:   sel.relayClient,
	}
	if sel.relayClient != nil {
		defer sel.relayClient.Close()
	}

	if sel.tlsConfig != nil {
		c.Logger.Info("TLS handshake complete", "version", info.Version, "cipher", info.CipherSuite)
	}

	if err := c.EnqueueServerHello(serverID); err != nil {
		c.Logger.Error("enqueue ServerHello failed", "error", err)
		return
	}
	if err := conn.flushWrites(); err != nil {
		c.Logger.Warn("writing ServerHello failed", "error", err)
		return
	}

	conn.run(ctx)

	// Only a connection that reached FINISHED has a complete session
	// worth forwarding — invariant 4 forbids ever dialing the relay for
	// a store-first connection that dropped mid-session, so a socket
	// error, protocol error, or shutdown that ends run() early must
	// leave the journal file on disk untouched rather than replay it.
	if sel.journal != nil && c.State == session.StateFinished {
		replayed := finishJournal(c, sel.journal, sel.relayDial)
		if replayed && m != nil {
			m.JournalReplayed()
		}
	}
}

// run is the connection's main loop: a reader goroutine feeds raw
// bytes over a channel; this goroutine selects over that channel, the
// commit ticker (only when armed and no relay is attached, invariant
// 3), a second reader goroutine echoing the relay's own CommitPoint
// replies when this connection forwards live, and ctx cancellation
// (the lifecycle controller's shutdown signal). Every mutation of c's
// state happens here, on this one goroutine.
func (conn *connection) run(ctx context.Context) {
	c := conn.closure
	reads := make(chan readEvent, 4)

	// stop lets this goroutine tell the reader to give up on a blocked
	// channel send once run is returning; the reader goroutine itself
	// exits for good only once the socket closes (deferred in serve,
	// immediately after run returns) and its blocked Read call errors.
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := conn.raw.Read(buf)
			if n > 0 {
				cp := make([]byte, n)
				copy(cp, buf[:n])
				select {
				case reads <- readEvent{data: cp}:
				case <-stop:
					return
				}
			}
			if err != nil {
				select {
				case reads <- readEvent{err: err}:
				case <-stop:
				}
				return
			}
		}
	}()

	var relayReads chan relayReadEvent
	if conn.relayClient != nil {
		relayReads = make(chan relayReadEvent, 4)
		go func() {
			for {
				env, err := conn.relayClient.Receive()
				select {
				case relayReads <- relayReadEvent{env: env, err: err}:
				case <-stop:
					return
				}
				if err != nil {
					return
				}
			}
		}()
	}

	var ticker *clock.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		if c.State.IsTerminal() {
			conn.flushWrites()
			return
		}

		if c.CommitArmed && ticker == nil && !c.RelayAttached {
			ticker = conn.clk.NewTicker(commit.Frequency)
		}

		var tickCh <-chan time.Time
		if ticker != nil {
			tickCh = ticker.C
		}

		select {
		case <-ctx.Done():
			conn.shutdown()
			conn.flushWrites()
			return

		case ev := <-reads:
			if ev.err != nil {
				conn.handleReadError(ev.err)
				conn.flushWrites()
				return
			}
			if err := conn.handleData(ev.data); err != nil {
				c.Logger.Warn("connection error", "error", err)
				conn.flushWrites()
				return
			}
			if err := conn.flushWrites(); err != nil {
				c.Logger.Warn("write failed", "error", err)
				return
			}

		case <-tickCh:
			finished, err := commit.Fire(c)
			if err != nil {
				c.Logger.Warn("commit point failed", "error", err)
				return
			}
			if err := conn.flushWrites(); err != nil {
				c.Logger.Warn("write failed", "error", err)
				return
			}
			if finished {
				ticker.Stop()
				ticker = nil
			}

		case rev := <-relayReads:
			if rev.err != nil {
				c.Logger.Warn("relay connection closed", "error", rev.err)
				conn.flushWrites()
				return
			}
			if rev.env.Kind != wire.KindCommitPoint {
				continue
			}
			var cp wire.CommitPoint
			if err := wire.Unpack(rev.env, &cp); err != nil {
				c.Logger.Warn("decoding relay commit point failed", "error", err)
				continue
			}
			if err := c.EnqueueCommitPoint(cp.Elapsed); err != nil {
				c.Logger.Warn("enqueueing echoed commit point failed", "error", err)
				continue
			}
			if err := conn.flushWrites(); err != nil {
				c.Logger.Warn("write failed", "error", err)
				return
			}
		}
	}
}

// handleData feeds newly read bytes through the frame codec and
// dispatches every complete message it extracts. A declared length
// over MessageSizeMax is returned by Feed itself, bypassing emit
// entirely (§4.1), so it needs its own Fail/EnqueueError here rather
// than relying on the emit callback's error path.
func (conn *connection) handleData(data []byte) error {
	c := conn.closure
	err := c.Read.Feed(data, func(payload []byte) error {
		env, err := wire.Decode(payload)
		if err != nil {
			c.Fail(fmt.Sprintf("protocol error: %v", err))
			_ = c.EnqueueError()
			return err
		}

		if conn.metrics != nil {
			conn.metrics.MessageReceived(string(env.Kind))
		}

		if err := session.Dispatch(c, env); err != nil {
			if conn.metrics != nil {
				conn.metrics.MessageRejected(string(env.Kind))
				conn.metrics.SinkError(conn.sinkName)
			}
			_ = c.EnqueueError()
			return err
		}
		if conn.metrics != nil {
			conn.metrics.SinkWrite(conn.sinkName)
		}
		return nil
	})
	if errors.Is(err, wire.ErrMessageTooLarge) {
		c.Fail("client message too large")
		_ = c.EnqueueError()
	}
	return err
}

// sinkName identifies a bound sink for the SinkWrites/SinkErrors metric
// label, matching the three concrete sinks §4.4 chooses between.
func sinkName(s session.Sink) string {
	switch s.(type) {
	case *sink.LocalSink:
		return "local"
	case *sink.RelaySink:
		return "relay"
	case *sink.JournalSink:
		return "journal"
	default:
		return "unknown"
	}
}

// handleReadError classifies a socket read failure per §5's
// cancellation rules: EOF on a connection that already reached
// FINISHED is a clean termination; in any other state the read error
// is logged as a peer close. In every case the caller then closes the
// connection.
func (conn *connection) handleReadError(err error) {
	c := conn.closure
	if errors.Is(err, net.ErrClosed) {
		return
	}
	if c.State == session.StateFinished {
		return
	}
	c.Logger.Debug("connection closed by peer", "error", err)
}

// shutdown implements the lifecycle controller's per-connection
// shutdown behavior (§4.8): transition to SHUTDOWN, and for a
// connection doing local I/O logging, schedule an immediate commit
// point so the client's last acknowledged elapsed time reflects
// everything written before close.
func (conn *connection) shutdown() {
	c := conn.closure
	c.State = session.StateShutdown
	if c.LogIO && !c.RelayAttached {
		if _, err := commit.Fire(c); err != nil {
			c.Logger.Warn("shutdown commit point failed", "error", err)
		}
	}
}

// flushWrites drains the closure's write queue onto the socket,
// blocking until empty. This is the write half of the loop; since
// only this goroutine ever calls it, no synchronization is needed
// around the WriteQueue despite the queue itself being unsafe for
// concurrent use.
func (conn *connection) flushWrites() error {
	c := conn.closure
	if c.Write.Empty() {
		return nil
	}

	if conn.serverTimeout > 0 {
		// Socket deadlines are real OS timers, independent of the
		// injected Clock used for commit-ticker/backoff scheduling;
		// always anchor them to wall time.
		_ = conn.raw.SetWriteDeadline(time.Now().Add(conn.serverTimeout))
		defer conn.raw.SetWriteDeadline(time.Time{})
	}

	for !c.Write.Empty() {
		front := c.Write.Front()
		n, err := conn.raw.Write(front)
		if n > 0 {
			c.Write.Advance(n)
		}
		if err != nil {
			return fmt.Errorf("server: writing to %s: %w", c.Peer, err)
		}
	}
	return nil
}

// sinkSelection bundles the sink bound to a new connection together
// with the context the lifecycle controller needs to complete the
// journal hand-off on FINISHED (§4.4/§4.5).
type sinkSelection struct {
	sink          session.Sink
	relayAttached bool
	tlsConfig     *tls.Config

	// relayClient is set alongside relayAttached for the live
	// forwarding case, so the connection loop can echo the relay's
	// commit-point replies back to the client (§4.5: "when a relay is
	// attached... the relay's own commit-point is echoed") and close
	// the outbound connection once the client side tears down.
	relayClient *relayclient.Client

	journal   *sink.JournalSink
	relayDial func() (*relayclient.Client, error)
}

// finishJournal implements §4.5's journal-to-relay handoff: once the
// connection that wrote the journal reaches FINISHED, dial the relay
// and replay the journal's entries onto it, unlinking the journal file
// once ReplayJournal returns without error (no acknowledgment from the
// relay is awaited).
func finishJournal(c *session.Closure, j *sink.JournalSink, dial func() (*relayclient.Client, error)) bool {
	if err := j.Close(); err != nil {
		c.Logger.Warn("closing journal before replay", "error", err)
	}

	client, err := dial()
	if err != nil {
		c.Logger.Warn("journal replay: dialing relay failed, journal retained", "path", j.Path(), "error", err)
		return false
	}
	defer client.Close()

	if err := sink.ReplayJournal(j.Path(), client); err != nil {
		c.Logger.Warn("journal replay failed, journal retained", "path", j.Path(), "error", err)
		return false
	}

	if err := os.Remove(j.Path()); err != nil {
		c.Logger.Warn("unlinking replayed journal failed", "path", j.Path(), "error", err)
	}
	return true
}
