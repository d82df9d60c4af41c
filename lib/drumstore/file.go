// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package drumstore

import (
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/drumarray/lib/geometry"
)

// Compile-time interface check.
var _ Medium = (*File)(nil)

// File is a Medium backed by a file of exactly geometry.Capacity
// bytes.
type File struct {
	path string

	// mu serializes writes and Close against each other. Reads take
	// it shared so Close cannot unmap under them.
	mu   sync.RWMutex
	fd   int
	data []byte // mmap'd MAP_SHARED, PROT_READ
}

// OpenFile opens the array file at path, creating it at full size if
// it does not exist. An existing file of any other size is rejected.
func OpenFile(path string) (*File, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening array file %s: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stating array file %s: %w", path, err)
	}
	switch stat.Size {
	case 0:
		if err := unix.Ftruncate(fd, geometry.Capacity); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("sizing array file %s to %d bytes: %w", path, geometry.Capacity, err)
		}
	case geometry.Capacity:
	default:
		unix.Close(fd)
		return nil, fmt.Errorf("array file %s is %d bytes, want %d", path, stat.Size, geometry.Capacity)
	}

	data, err := unix.Mmap(fd, 0, geometry.Capacity, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mapping array file %s: %w", path, err)
	}
	return &File{path: path, fd: fd, data: data}, nil
}

// ReadBlock copies a block out of the memory map. An I/O error on the
// underlying storage surfaces as a page fault, which is turned into
// an error instead of crashing the process.
func (f *File) ReadBlock(drum geometry.DrumID, block geometry.BlockID, dst []byte) (err error) {
	offset, err := blockOffset(drum, block, dst)
	if err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.data == nil {
		return errClosed
	}

	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("fault reading %s at [%d,%d]: %v", f.path, drum, block, r)
		}
	}()
	copy(dst, f.data[offset:offset+geometry.BlockSize])
	return nil
}

// WriteBlock stores a block with pwrite.
func (f *File) WriteBlock(drum geometry.DrumID, block geometry.BlockID, src []byte) error {
	offset, err := blockOffset(drum, block, src)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		return errClosed
	}
	for len(src) > 0 {
		written, err := unix.Pwrite(f.fd, src, offset)
		if err != nil {
			return fmt.Errorf("writing %s at [%d,%d]: %w", f.path, drum, block, err)
		}
		src = src[written:]
		offset += int64(written)
	}
	return nil
}

// Sync flushes written blocks to stable storage.
func (f *File) Sync() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.data == nil {
		return errClosed
	}
	if err := unix.Fsync(f.fd); err != nil {
		return fmt.Errorf("syncing %s: %w", f.path, err)
	}
	return nil
}

// Close unmaps the file and closes its descriptor.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		return nil
	}
	var firstErr error
	if err := unix.Munmap(f.data); err != nil {
		firstErr = fmt.Errorf("unmapping %s: %w", f.path, err)
	}
	if err := unix.Close(f.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing %s: %w", f.path, err)
	}
	f.data = nil
	f.fd = -1
	return firstErr
}

// Path returns the file's path.
func (f *File) Path() string { return f.path }
