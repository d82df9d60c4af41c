// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the drumarray
// binaries' --version flag.
//
// [GitCommit], [GitDirty], [BuildTime], and [Version] are injected
// with -ldflags -X at build time. When they are not (development
// builds, tests) the values embedded by the Go toolchain in
// debug.BuildInfo are used where available.
package version
