// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import "github.com/bureau-foundation/drumarray/lib/geometry"

// Block returns one block filled with value.
func Block(value byte) []byte {
	data := make([]byte, geometry.BlockSize)
	for i := range data {
		data[i] = value
	}
	return data
}

// Pattern returns length bytes where byte i is (seed + i) mod 251.
// The prime modulus keeps the pattern from lining up with block
// boundaries, so a block written at the wrong address shows up as a
// mismatch.
func Pattern(length int, seed byte) []byte {
	data := make([]byte, length)
	for i := range data {
		data[i] = byte((int(seed) + i) % 251)
	}
	return data
}
