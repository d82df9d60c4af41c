// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vdisk

import (
	"context"
	"io"
	"sync"

	"github.com/bureau-foundation/drumarray/lib/geometry"
)

// Compile-time interface checks.
var (
	_ io.ReaderAt = (*Synchronized)(nil)
	_ io.WriterAt = (*Synchronized)(nil)
)

// Synchronized serializes access to a Disk. The lock is held for the
// whole of each call, so the seek and transfer commands of one block
// never interleave with another caller's.
//
// ReadAt and WriteAt use the context given to NewSynchronized; the
// context-taking methods are for callers that have their own.
type Synchronized struct {
	mu   sync.Mutex
	disk *Disk
	ctx  context.Context
}

// NewSynchronized wraps disk. The caller must not use disk directly
// afterwards.
func NewSynchronized(ctx context.Context, disk *Disk) *Synchronized {
	return &Synchronized{disk: disk, ctx: ctx}
}

// Mount calls Disk.Mount under the lock.
func (s *Synchronized) Mount(ctx context.Context, cacheLines int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disk.Mount(ctx, cacheLines)
}

// Unmount calls Disk.Unmount under the lock.
func (s *Synchronized) Unmount(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disk.Unmount(ctx)
}

// Read calls Disk.Read under the lock.
func (s *Synchronized) Read(ctx context.Context, addr geometry.Address, out []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disk.Read(ctx, addr, out)
}

// Write calls Disk.Write under the lock.
func (s *Synchronized) Write(ctx context.Context, addr geometry.Address, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disk.Write(ctx, addr, data)
}

// Stats calls Disk.Stats under the lock.
func (s *Synchronized) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disk.Stats()
}

// Size returns the size of the address space.
func (s *Synchronized) Size() int64 { return geometry.Capacity }

// ReadAt implements io.ReaderAt. A read that runs past the end of the
// disk is shortened and returns io.EOF.
func (s *Synchronized) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &geometry.RangeError{Length: len(p)}
	}
	if off >= geometry.Capacity {
		return 0, io.EOF
	}
	length := len(p)
	short := false
	if remaining := geometry.Capacity - off; int64(length) > remaining {
		length = int(remaining)
		short = true
	}
	if err := s.Read(s.ctx, geometry.Address(off), p[:length]); err != nil {
		return 0, err
	}
	if short {
		return length, io.EOF
	}
	return length, nil
}

// WriteAt implements io.WriterAt. A write that would run past the end
// of the disk writes nothing and returns a *geometry.RangeError.
func (s *Synchronized) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > geometry.Capacity {
		return 0, &geometry.RangeError{Address: geometry.Address(min(max(off, 0), geometry.Capacity)), Length: len(p)}
	}
	if err := s.Write(s.ctx, geometry.Address(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}
