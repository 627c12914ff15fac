// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// These default to "unknown" (GitDirty: "false"; Version:
// "0.1.0-dev") when not injected, which
// occurs during development builds and test runs. [Info] formats them
// for -V output.
package version
