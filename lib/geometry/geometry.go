// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package geometry

import "fmt"

// Array dimensions. These are protocol constants shared with the
// remote peer; the opcode bit layout in lib/wire depends on them.
const (
	// BlockSize is the number of bytes in one block.
	BlockSize = 256

	// BlocksPerDrum is the number of blocks on one drum.
	BlocksPerDrum = 256

	// DrumCount is the number of drums in the array.
	DrumCount = 16

	// DrumSize is the number of bytes on one drum.
	DrumSize = BlockSize * BlocksPerDrum

	// Capacity is the size of the virtual address space in bytes.
	Capacity = DrumSize * DrumCount
)

// DrumID identifies one drum, 0 through DrumCount-1.
type DrumID uint32

// BlockID identifies one block within a drum, 0 through
// BlocksPerDrum-1.
type BlockID uint32

// Address is a byte offset into the virtual address space.
type Address uint32

// Location is a block-granular position in the array plus a byte
// offset inside that block.
type Location struct {
	Drum   DrumID
	Block  BlockID
	Offset int
}

// Translate maps a virtual address to its drum, block, and in-block
// offset.
func Translate(addr Address) Location {
	return Location{
		Drum:   DrumID(addr / DrumSize),
		Block:  BlockID((addr % DrumSize) / BlockSize),
		Offset: int(addr % BlockSize),
	}
}

// Compose is the inverse of Translate.
func Compose(drum DrumID, block BlockID, offset int) Address {
	return Address(uint32(drum)*DrumSize + uint32(block)*BlockSize + uint32(offset))
}

// Address returns the virtual address of the location.
func (l Location) Address() Address {
	return Compose(l.Drum, l.Block, l.Offset)
}

// Next returns the start of the block following l. The block index
// rolls over into block 0 of the next drum once it reaches
// BlocksPerDrum.
func (l Location) Next() Location {
	next := Location{Drum: l.Drum, Block: l.Block + 1}
	if next.Block >= BlocksPerDrum {
		next.Drum++
		next.Block = 0
	}
	return next
}

// Valid reports whether the location lies inside the array.
func (l Location) Valid() bool {
	return l.Drum < DrumCount && l.Block < BlocksPerDrum && l.Offset >= 0 && l.Offset < BlockSize
}

func (l Location) String() string {
	return fmt.Sprintf("[%d,%d]+%d", l.Drum, l.Block, l.Offset)
}

// RangeError reports a transfer that would touch bytes past the end
// of the array.
type RangeError struct {
	Address Address
	Length  int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range [%d, %d) exceeds array capacity %d",
		e.Address, uint64(e.Address)+uint64(e.Length), Capacity)
}

// CheckRange returns a *RangeError if [addr, addr+length) is not
// entirely inside the array. A zero-length range at Capacity is
// accepted. Negative lengths are rejected.
func CheckRange(addr Address, length int) error {
	if length < 0 || uint64(addr)+uint64(length) > Capacity {
		return &RangeError{Address: addr, Length: length}
	}
	return nil
}

// CheckBlock returns an error if drum or block is outside the array.
func CheckBlock(drum DrumID, block BlockID) error {
	if drum >= DrumCount {
		return fmt.Errorf("drum %d out of range (array has %d drums)", drum, DrumCount)
	}
	if block >= BlocksPerDrum {
		return fmt.Errorf("block %d out of range (drum has %d blocks)", block, BlocksPerDrum)
	}
	return nil
}
