// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the audit-log
// server.
//
// Configuration is loaded from a single file specified by either the
// AUDITD_CONFIG environment variable (via [Load]) or the -f/--file flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search: this keeps configuration deterministic and auditable.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config file values.
//
// Key exports:
//
//   - [Config] -- master struct: listeners, TLS, relay, store-first
//     journaling, I/O log and journal directories, pid file path
//   - [Default] -- returns a Config with a single plaintext listener
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [RandomDropFromPercent] -- converts the -R/--random-drop
//     command-line percentage into the stored probability
//
// This package depends on no other package in this module.
package config
