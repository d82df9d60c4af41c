// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drumstore

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a keyed BLAKE3 digest of one uncompressed drum image.
type Digest [32]byte

// drumDomainKey keys drum digests so they cannot be confused with a
// plain BLAKE3 hash of the same bytes. Changing it invalidates every
// existing snapshot.
var drumDomainKey = [32]byte{
	'd', 'r', 'u', 'm', 'a', 'r', 'r', 'a', 'y', '.', 's', 'n', 'a', 'p', 's', 'h',
	'o', 't', '.', 'd', 'r', 'u', 'm', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashDrum returns the digest of a drum image.
func HashDrum(image []byte) Digest {
	hasher, err := blake3.NewKeyed(drumDomainKey[:])
	if err != nil {
		panic("drumstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(image)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}
