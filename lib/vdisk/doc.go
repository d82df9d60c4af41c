// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vdisk is the virtual disk driver: a flat byte address space
// of geometry.Capacity bytes backed by a remote drum array.
//
// A [Disk] is driven through Mount, any number of Read and Write
// calls, and Unmount. Mount opens the session with the peer and
// creates the block cache; Unmount closes the session and releases
// the cache. Read and Write split a byte range at block boundaries
// and move one block at a time:
//
//   - Read: look the block up in the cache. On a miss, SEEK_DRUM,
//     SEEK_BLOCK, DISK_READ and cache the result. Copy out the
//     requested bytes.
//   - Write: obtain the block the same way (a partial-block write
//     must preserve the bytes around it), overwrite the requested
//     bytes, then SEEK_DRUM, SEEK_BLOCK, DISK_WRITE the whole block.
//     The cached copy is updated only after the peer accepts the
//     write.
//
// So each block costs one cache lookup, plus three round trips on a
// miss, plus three more for a write. Failures abort the call at the
// block that failed; earlier blocks stay transferred.
//
// A Disk is not safe for concurrent use: its cache and its connection
// are unsynchronized, and the protocol cannot tell interleaved
// commands apart. [Synchronized] puts one mutex around each whole
// call and adapts the disk to io.ReaderAt and io.WriterAt.
package vdisk
