// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command logsrvd is the network audit-log server: it accepts client
// connections that stream structured command-invocation records,
// persists them locally, forwards them to an upstream relay of its
// own kind, or both, per the configuration file's sink selection
// (§4.4).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/sudoaudit/logsrvd/internal/server"
	"github.com/sudoaudit/logsrvd/lib/clock"
	"github.com/sudoaudit/logsrvd/lib/config"
	"github.com/sudoaudit/logsrvd/lib/logging"
	"github.com/sudoaudit/logsrvd/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "logsrvd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile = flag.StringP("file", "f", "", "path to the configuration file")
		noFork     = flag.BoolP("no-fork", "n", false, "do not detach from the controlling terminal")
		randomDrop = flag.StringP("random-drop", "R", "", "percentage (0-100) of I/O buffer messages to randomly drop, for exercising client restart")
		showHelp   = flag.BoolP("help", "h", false, "show this help message")
		showVer    = flag.BoolP("version", "V", false, "show version information")
	)
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return nil
	}
	if *showVer {
		fmt.Println("logsrvd", version.Info())
		return nil
	}
	if *configFile == "" {
		return fmt.Errorf("-f/--file is required")
	}
	_ = noFork // detaching from the controlling terminal is the caller's responsibility under a process supervisor; no fork(2) equivalent is meaningful in Go.

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		return err
	}

	if *randomDrop != "" {
		p, err := config.RandomDropFromPercent(*randomDrop)
		if err != nil {
			return err
		}
		cfg.RandomDropProbability = p
	}

	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := logging.New(slog.LevelInfo)

	if cfg.PIDFile != "" {
		if err := writePIDFile(cfg.PIDFile); err != nil {
			return fmt.Errorf("writing pid file: %w", err)
		}
		defer os.Remove(cfg.PIDFile)
	}

	clk := clock.Real()
	ctl := server.NewController(clk, logger)
	if err := ctl.Start(cfg); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE)

	for s := range sig {
		switch s {
		case syscall.SIGPIPE:
			// A write to an already-closed socket raises SIGPIPE on
			// some platforms before the write(2) call itself returns
			// EPIPE; net.Conn callers see the error return instead, so
			// there is nothing to do here beyond not dying.
			continue
		case syscall.SIGHUP:
			logger.Info("reload requested")
			configPath := *configFile
			newCfg, err := config.LoadFile(configPath)
			if err != nil {
				logger.Error("reload failed: invalid configuration", "error", err)
				continue
			}
			if err := newCfg.EnsurePaths(); err != nil {
				logger.Error("reload failed: preparing paths", "error", err)
				continue
			}
			if err := ctl.Reload(newCfg); err != nil {
				logger.Error("reload failed", "error", err)
				continue
			}
			cfg = newCfg
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("shutdown requested", "signal", s.String())
			ctl.Shutdown()
			return nil
		}
	}
	return nil
}

// writePIDFile records the running process's pid, following the
// original's pid-file convention (§9's ambient configuration schema
// names PIDFile for this purpose).
func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}
