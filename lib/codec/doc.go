// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by every drumarray
// package that persists structured data. Today that is the snapshot
// manifest written by lib/drumstore.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same snapshot therefore always encodes to the same bytes, which
// keeps snapshot files diffable and their checksums stable.
//
//	data, err := codec.Marshal(manifest)
//	err = codec.Unmarshal(data, &manifest)
//
// Types serialized only as CBOR carry `cbor` struct tags.
package codec
