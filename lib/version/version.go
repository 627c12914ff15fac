// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build identity printed by logsrvd's -V
// flag. None of the fields below are known at compile time, so
// they're populated by -ldflags rather than left as constants, for
// example:
//
//	go build -ldflags "-X github.com/sudoaudit/logsrvd/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import "fmt"

var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"
)

// Info formats the version fields for -V output: "0.1.0-dev
// (a1b2c3d-dirty, 2026-08-06T00:00:00Z)".
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}
