// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vdisk

import (
	"context"
	"sync"
	"testing"

	"github.com/bureau-foundation/drumarray/lib/geometry"
	"github.com/bureau-foundation/drumarray/lib/session"
	"github.com/bureau-foundation/drumarray/lib/wire"
)

// fakeArray is an in-process peer that implements the protocol's
// state machine and records every command it accepts.
type fakeArray struct {
	mu sync.Mutex

	blocks    map[[2]uint32][]byte
	connected bool
	mounted   bool
	headDrum  geometry.DrumID
	headBlock geometry.BlockID

	log      []wire.Opcode
	counters map[wire.Operation]uint64

	// fail, if set, is consulted before each command. A non-nil
	// result is returned instead of executing it.
	fail func(opcode wire.Opcode) error
}

func newFakeArray() *fakeArray {
	return &fakeArray{
		blocks:   make(map[[2]uint32][]byte),
		counters: make(map[wire.Operation]uint64),
	}
}

func (a *fakeArray) Execute(ctx context.Context, opcode wire.Opcode, payload []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	op := opcode.Operation()
	if op != wire.OpMount && !a.connected {
		return nil, session.ErrNotConnected
	}
	if a.fail != nil {
		if err := a.fail(opcode); err != nil {
			return nil, err
		}
	}
	a.log = append(a.log, opcode)
	a.counters[op]++

	refuse := func(status wire.Status) error {
		return &session.ProtocolError{Request: opcode, Response: opcode, Status: status}
	}
	switch op {
	case wire.OpMount:
		if a.connected {
			return nil, session.ErrConnected
		}
		a.connected, a.mounted = true, true
	case wire.OpUnmount:
		a.connected, a.mounted = false, false
	case wire.OpSeekDrum:
		a.headDrum, a.headBlock = opcode.Drum(), 0
	case wire.OpSeekBlock:
		if opcode.Drum() != a.headDrum {
			return nil, refuse(wire.StatusBadSeek)
		}
		a.headBlock = opcode.Block()
	case wire.OpDiskRead, wire.OpDiskWrite:
		if opcode.Drum() != a.headDrum || opcode.Block() != a.headBlock {
			return nil, refuse(wire.StatusBadSeek)
		}
		key := [2]uint32{uint32(opcode.Drum()), uint32(opcode.Block())}
		if op == wire.OpDiskWrite {
			if len(payload) != geometry.BlockSize {
				return nil, refuse(wire.StatusBadLength)
			}
			a.blocks[key] = append([]byte(nil), payload...)
			return nil, nil
		}
		block := make([]byte, geometry.BlockSize)
		copy(block, a.blocks[key])
		return block, nil
	default:
		return nil, refuse(wire.StatusBadOpcode)
	}
	return nil, nil
}

func (a *fakeArray) Counters() map[wire.Operation]uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	counters := make(map[wire.Operation]uint64, len(a.counters))
	for op, count := range a.counters {
		counters[op] = count
	}
	return counters
}

func (a *fakeArray) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

// block returns a copy of what the array holds at (drum, block).
func (a *fakeArray) block(drum geometry.DrumID, block geometry.BlockID) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	data := make([]byte, geometry.BlockSize)
	copy(data, a.blocks[[2]uint32{uint32(drum), uint32(block)}])
	return data
}

// setBlock stores data at (drum, block) without going through the
// protocol.
func (a *fakeArray) setBlock(drum geometry.DrumID, block geometry.BlockID, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocks[[2]uint32{uint32(drum), uint32(block)}] = append([]byte(nil), data...)
}

// takeLog returns the commands accepted since the last call.
func (a *fakeArray) takeLog() []wire.Opcode {
	a.mu.Lock()
	defer a.mu.Unlock()
	log := a.log
	a.log = nil
	return log
}

// failOn returns a fail function that rejects the first command
// matching op at (drum, block) with err, skipping the first skip
// matches.
func failOn(op wire.Operation, drum geometry.DrumID, block geometry.BlockID, skip int, err error) func(wire.Opcode) error {
	return func(opcode wire.Opcode) error {
		if opcode.Operation() != op || opcode.Drum() != drum || opcode.Block() != block {
			return nil
		}
		if skip > 0 {
			skip--
			return nil
		}
		return err
	}
}

func describe(log []wire.Opcode) []string {
	described := make([]string, len(log))
	for i, opcode := range log {
		described[i] = opcode.String()
	}
	return described
}

func expectLog(t *testing.T, got []wire.Opcode, want []wire.Opcode) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("commands:\n  got  %v\n  want %v", describe(got), describe(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d:\n  got  %v\n  want %v", i, describe(got), describe(want))
		}
	}
}

func op(t *testing.T, operation wire.Operation, drum geometry.DrumID, block geometry.BlockID) wire.Opcode {
	t.Helper()
	opcode, err := wire.Pack(operation, drum, block)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return opcode
}
