// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sudoaudit/logsrvd/internal/metrics"
	"github.com/sudoaudit/logsrvd/lib/clock"
	"github.com/sudoaudit/logsrvd/lib/config"
)

// ShutdownTimeout is the global grace period the lifecycle controller
// allows open connections to drain before it gives up waiting
// (§4.8's SHUTDOWN_TIMEO).
const ShutdownTimeout = 5 * time.Second

// boundListener pairs an open listener with the configuration that
// produced it, so the accept loop knows whether to run the TLS
// adapter without re-deriving it from the listener's bound address.
type boundListener struct {
	net.Listener
	config config.ListenerConfig
}

// Controller owns the listener set, the debug metrics endpoint, and
// the shutdown broadcast context for every connection accepted while
// it runs, implementing §4.8's reload and shutdown orchestration.
type Controller struct {
	clk    clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	cfg       *config.Config
	listeners []boundListener
	metrics   *metrics.Registry
	debug     *metrics.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController builds a Controller with no listeners open yet; call
// Start to bind them and begin accepting.
func NewController(clk clock.Clock, logger *slog.Logger) *Controller {
	return &Controller{clk: clk, logger: logger}
}

// Start binds every listener named in cfg and begins an accept loop
// for each, then starts the debug metrics endpoint if configured. A
// listener that fails to bind is a fatal startup error; Start closes
// any listeners it already opened before returning.
func (ctl *Controller) Start(cfg *config.Config) error {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())

	listeners, err := ctl.openListeners(ctx, cfg)
	if err != nil {
		cancel()
		return err
	}

	registry, debugServer, err := ctl.startMetrics(cfg)
	if err != nil {
		cancel()
		closeAll(listeners)
		return err
	}

	ctl.cfg = cfg
	ctl.listeners = listeners
	ctl.metrics = registry
	ctl.debug = debugServer
	ctl.ctx = ctx
	ctl.cancel = cancel

	for _, ln := range listeners {
		ctl.acceptLoop(ln, cfg)
	}
	ctl.logger.Info("listening", "listeners", len(listeners))
	return nil
}

func (ctl *Controller) openListeners(ctx context.Context, cfg *config.Config) ([]boundListener, error) {
	var listeners []boundListener
	for _, lc := range cfg.Listeners {
		ln, err := Listen(ctx, lc, cfg.TCPKeepAlive)
		if err != nil {
			closeAll(listeners)
			return nil, err
		}
		listeners = append(listeners, boundListener{Listener: ln, config: lc})
	}
	return listeners, nil
}

func (ctl *Controller) startMetrics(cfg *config.Config) (*metrics.Registry, *metrics.Server, error) {
	registry := metrics.New()
	if cfg.DebugAddr == "" {
		return registry, nil, nil
	}
	debugServer := metrics.NewServer(cfg.DebugAddr, "", registry)
	if err := debugServer.Start(); err != nil {
		return nil, nil, fmt.Errorf("server: starting debug endpoint: %w", err)
	}
	return registry, debugServer, nil
}

func closeAll(listeners []boundListener) {
	for _, ln := range listeners {
		ln.Close()
	}
}

// acceptLoop drains one listener, spawning a connection goroutine per
// accepted socket, matching §4.7's "accept callback drains one
// connection per event". It runs until the listener is closed
// (Shutdown/Reload) or errors.
func (ctl *Controller) acceptLoop(ln boundListener, cfg *config.Config) {
	var listenerTLS *tls.Config
	if ln.config.TLS {
		cfgCopy, err := serverTLSConfig(cfg)
		if err != nil {
			ctl.logger.Error("listener TLS configuration failed", "error", err)
			ln.Close()
			return
		}
		listenerTLS = cfgCopy
	}

	ctl.wg.Add(1)
	go func() {
		defer ctl.wg.Done()
		serverID := serverIdentity(cfg)
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctl.ctx.Done():
				default:
					ctl.logger.Warn("accept failed", "error", err)
				}
				return
			}

			registry := ctl.currentMetrics()
			if registry != nil {
				registry.ConnectionsAccepted.Inc()
				registry.ConnectionsActive.Inc()
			}

			// Sink selection (in particular, dialing a live-forwarding
			// relay) happens on the connection's own goroutine, not
			// here: DialWithRetry can block for tens of seconds while
			// a relay is down, and this loop must keep draining Accept
			// for every other connection on this listener while that
			// happens.
			ctl.wg.Add(1)
			go func() {
				defer ctl.wg.Done()
				defer func() {
					if registry != nil {
						registry.ConnectionsActive.Dec()
					}
				}()

				sel, err := selectSink(ctl.ctx, cfg, ctl.clk, ctl.logger, registry)
				if err != nil {
					ctl.logger.Warn("sink selection failed, rejecting connection", "error", err)
					if registry != nil {
						registry.ConnectionsRejected.Inc()
					}
					conn.Close()
					return
				}
				sel.tlsConfig = listenerTLS
				if sel.journal != nil && registry != nil {
					registry.JournalsPending.Inc()
				}

				m := connMetricsFor(registry)
				serve(ctl.ctx, conn, sel, cfg, ctl.clk, serverID, ctl.logger, m)
			}()
		}
	}()
}

func (ctl *Controller) currentMetrics() *metrics.Registry {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.metrics
}

func connMetricsFor(r *metrics.Registry) *connMetrics {
	if r == nil {
		return nil
	}
	return &connMetrics{
		MessageReceived: func(kind string) { r.MessagesReceived.WithLabelValues(kind).Inc() },
		MessageRejected: func(kind string) { r.MessagesRejected.WithLabelValues(kind).Inc() },
		SinkWrite:       func(name string) { r.SinkWrites.WithLabelValues(name).Inc() },
		SinkError:       func(name string) { r.SinkErrors.WithLabelValues(name).Inc() },
		ConnectionError: func() { r.ConnectionErrors.Inc() },
		JournalReplayed: func() { r.JournalReplays.Inc(); r.JournalsPending.Dec() },
	}
}

func serverIdentity(cfg *config.Config) string {
	if len(cfg.Listeners) == 0 {
		return "logsrvd"
	}
	return fmt.Sprintf("logsrvd-%d", cfg.Listeners[0].Port)
}

// Reload implements §4.8's reload: re-read configuration, free and
// recreate every listener, and tear down and recreate the debug
// endpoint against the new configuration's bind address (§11's
// "debug subsystem re-registration on reload"). Connections accepted
// under the previous configuration keep running under the previous
// context until they finish on their own or Shutdown is called; only
// the listeners and debug endpoint are torn down here.
func (ctl *Controller) Reload(cfg *config.Config) error {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	oldListeners := ctl.listeners
	oldDebug := ctl.debug
	oldCancel := ctl.cancel

	ctx, cancel := context.WithCancel(context.Background())
	listeners, err := ctl.openListeners(ctx, cfg)
	if err != nil {
		cancel()
		return err
	}

	registry, debugServer, err := ctl.startMetrics(cfg)
	if err != nil {
		cancel()
		closeAll(listeners)
		return err
	}

	closeAll(oldListeners)
	if oldDebug != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = oldDebug.Stop(stopCtx)
		stopCancel()
	}

	ctl.cfg = cfg
	ctl.listeners = listeners
	ctl.metrics = registry
	ctl.debug = debugServer
	ctl.ctx = ctx
	// Shutdown must still reach connections accepted under the previous
	// context, so the stored cancel covers both.
	ctl.cancel = func() {
		cancel()
		if oldCancel != nil {
			oldCancel()
		}
	}

	for _, ln := range listeners {
		ctl.acceptLoop(ln, cfg)
	}

	ctl.logger.Info("reload complete", "listeners", len(listeners))
	return nil
}

// Shutdown implements §4.8's shutdown sweep: cancel the shared context
// so every connection goroutine takes its <-ctx.Done() branch
// (conn.shutdown, then a final flush bounded by ServerTimeout), and
// close every listener so no new connection is accepted. It then
// waits up to ShutdownTimeout for all connection goroutines to exit;
// a connection still open past that point only means something (a
// slow relay dial, a hung journal replay) outlived the grace period,
// which is logged rather than force-closed out from under it.
func (ctl *Controller) Shutdown() {
	ctl.mu.Lock()
	cancel := ctl.cancel
	listeners := ctl.listeners
	debugServer := ctl.debug
	ctl.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	closeAll(listeners)

	done := make(chan struct{})
	go func() {
		ctl.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctl.clk.After(ShutdownTimeout):
		ctl.logger.Warn("shutdown timeout elapsed with connections still open")
	}

	if debugServer != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = debugServer.Stop(stopCtx)
		stopCancel()
	}
}
