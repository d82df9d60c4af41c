// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package drumstore is the storage behind the reference peer: a
// [Medium] holding geometry.Capacity bytes addressed by drum and
// block, and a snapshot format for saving and restoring one.
//
// Two media are provided. [NewMemory] keeps the array in a byte slice
// and starts zero-filled. [OpenFile] backs the array with a
// fixed-size file: reads go through a read-only shared memory map and
// writes use pwrite, so the map sees them without a read-before-write
// fault. A new file is created sparse at full size.
//
// A snapshot is one CBOR document (see lib/codec) listing every drum.
// Each drum image is compressed with LZ4 or zstd, or stored raw when
// compression does not shrink it, and carries a keyed BLAKE3 digest of
// its uncompressed bytes. [Import] checks the geometry and every
// digest before writing anything to the medium.
package drumstore
