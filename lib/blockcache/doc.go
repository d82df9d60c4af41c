// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blockcache holds recently used drum blocks in memory so the
// transfer engine can skip remote reads.
//
// The cache is a fixed array of lines, each holding at most one block
// keyed by (drum, block) and stamped with the time it was last used.
// Insertion fills an empty line if there is one and otherwise evicts
// the line with the oldest stamp. Finding the victim is a linear scan;
// the line count is small and fixed at mount time, so no separate
// recency list is kept.
//
// Ownership: Insert hands the buffer to the cache. Lookup returns the
// cached buffer itself, not a copy. The caller may read it, and the
// transfer engine's write path modifies it in place before sending it
// to the peer, but nobody may keep the slice past the next Insert or
// Clear, either of which can drop it.
//
// A Cache is not safe for concurrent use. It belongs to one mounted
// disk and is driven from that disk's single call path.
package blockcache
