// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drumstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bureau-foundation/drumarray/lib/geometry"
)

// Medium is block storage for the whole array. Implementations are
// safe for concurrent use.
type Medium interface {
	// ReadBlock copies the block at (drum, block) into dst, which
	// must be geometry.BlockSize bytes.
	ReadBlock(drum geometry.DrumID, block geometry.BlockID, dst []byte) error

	// WriteBlock stores src, which must be geometry.BlockSize bytes,
	// at (drum, block).
	WriteBlock(drum geometry.DrumID, block geometry.BlockID, src []byte) error

	// Sync makes completed writes durable.
	Sync() error

	// Close releases the medium. It does not imply Sync.
	Close() error
}

// blockOffset validates a block access and returns its byte offset in
// the array.
func blockOffset(drum geometry.DrumID, block geometry.BlockID, buffer []byte) (int64, error) {
	if err := geometry.CheckBlock(drum, block); err != nil {
		return 0, err
	}
	if len(buffer) != geometry.BlockSize {
		return 0, fmt.Errorf("block buffer is %d bytes, want %d", len(buffer), geometry.BlockSize)
	}
	return int64(geometry.Compose(drum, block, 0)), nil
}

// Compile-time interface check.
var _ Medium = (*Memory)(nil)

// Memory is a Medium held in memory.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemory returns a zero-filled in-memory medium.
func NewMemory() *Memory {
	return &Memory{data: make([]byte, geometry.Capacity)}
}

func (m *Memory) ReadBlock(drum geometry.DrumID, block geometry.BlockID, dst []byte) error {
	offset, err := blockOffset(drum, block, dst)
	if err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return errClosed
	}
	copy(dst, m.data[offset:])
	return nil
}

func (m *Memory) WriteBlock(drum geometry.DrumID, block geometry.BlockID, src []byte) error {
	offset, err := blockOffset(drum, block, src)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return errClosed
	}
	copy(m.data[offset:], src)
	return nil
}

func (m *Memory) Sync() error { return nil }

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

var errClosed = errors.New("medium is closed")
