// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// drumarray-server serves a drum array over TCP. It is the peer the
// virtual disk driver talks to: a reference implementation for tests
// and local development.
//
// The array lives in memory unless --store names a backing file, in
// which case writes reach the file as they are accepted. A snapshot
// can be loaded before serving (--load-snapshot) and saved after
// shutdown (--save-snapshot). Snapshots are portable between memory
// and file-backed servers.
//
// Settings come from the config file (--config or DRUMARRAY_CONFIG)
// with flags overriding individual values.
package main
