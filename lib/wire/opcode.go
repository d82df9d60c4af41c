// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/drumarray/lib/geometry"
)

// Operation is the 6-bit command code carried in the top bits of an
// opcode. The values are fixed by the peer and must not change.
type Operation uint8

const (
	OpMount     Operation = 0
	OpUnmount   Operation = 1
	OpSeekDrum  Operation = 2
	OpSeekBlock Operation = 3
	OpDiskRead  Operation = 4
	OpDiskWrite Operation = 5
)

// maxOperation is the largest value the 6-bit field can hold.
const maxOperation = 1<<operationBits - 1

// Opcode bit layout, most significant field first:
//
//	| Bits   | Width | Field                   |
//	|--------|-------|-------------------------|
//	| 31..26 | 6     | operation               |
//	| 25..22 | 4     | drum id                 |
//	| 21..8  | 14    | reserved, must be zero  |
//	| 7..0   | 8     | block id                |
const (
	operationBits  = 6
	operationShift = 26
	drumBits       = 4
	drumShift      = 22
	blockBits      = 8
	blockShift     = 0

	operationMask = (1<<operationBits - 1) << operationShift
	drumMask      = (1<<drumBits - 1) << drumShift
	blockMask     = (1<<blockBits - 1) << blockShift
	reservedMask  = ^uint32(operationMask | drumMask | blockMask)
)

// ErrReservedBits is returned by Unpack when an opcode has bits set
// outside the operation, drum, and block fields.
var ErrReservedBits = errors.New("opcode has reserved bits set")

// Opcode is the packed 32-bit command word: operation, drum id, and
// block id.
type Opcode uint32

// Pack builds an opcode. It fails if any field does not fit in its
// bit range or addresses a drum or block outside the array.
func Pack(op Operation, drum geometry.DrumID, block geometry.BlockID) (Opcode, error) {
	if op > maxOperation {
		return 0, fmt.Errorf("operation %d does not fit in %d bits", op, operationBits)
	}
	if err := geometry.CheckBlock(drum, block); err != nil {
		return 0, fmt.Errorf("packing %s: %w", op, err)
	}
	return Opcode(uint32(op)<<operationShift | uint32(drum)<<drumShift | uint32(block)<<blockShift), nil
}

// Unpack splits an opcode into its fields, rejecting opcodes with
// reserved bits set.
func Unpack(opcode Opcode) (Operation, geometry.DrumID, geometry.BlockID, error) {
	if uint32(opcode)&reservedMask != 0 {
		return 0, 0, 0, fmt.Errorf("%w: %#08x", ErrReservedBits, uint32(opcode))
	}
	return opcode.Operation(), opcode.Drum(), opcode.Block(), nil
}

// Operation returns the operation field.
func (o Opcode) Operation() Operation {
	return Operation((uint32(o) & operationMask) >> operationShift)
}

// Drum returns the drum id field.
func (o Opcode) Drum() geometry.DrumID {
	return geometry.DrumID((uint32(o) & drumMask) >> drumShift)
}

// Block returns the block id field.
func (o Opcode) Block() geometry.BlockID {
	return geometry.BlockID((uint32(o) & blockMask) >> blockShift)
}

func (o Opcode) String() string {
	return fmt.Sprintf("%s[%d,%d]", o.Operation(), o.Drum(), o.Block())
}

// String returns the protocol name of the operation.
func (op Operation) String() string {
	switch op {
	case OpMount:
		return "MOUNT"
	case OpUnmount:
		return "UNMOUNT"
	case OpSeekDrum:
		return "SEEK_DRUM"
	case OpSeekBlock:
		return "SEEK_BLOCK"
	case OpDiskRead:
		return "DISK_READ"
	case OpDiskWrite:
		return "DISK_WRITE"
	default:
		return fmt.Sprintf("OP(%d)", uint8(op))
	}
}

// Known reports whether op is one of the defined operations.
func (op Operation) Known() bool {
	return op <= OpDiskWrite
}
