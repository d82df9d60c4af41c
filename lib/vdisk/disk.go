// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vdisk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/bureau-foundation/drumarray/lib/blockcache"
	"github.com/bureau-foundation/drumarray/lib/clock"
	"github.com/bureau-foundation/drumarray/lib/geometry"
	"github.com/bureau-foundation/drumarray/lib/wire"
)

var (
	// ErrMounted is returned by Mount when the disk is already
	// mounted.
	ErrMounted = errors.New("disk already mounted")

	// ErrNotMounted is returned by every operation except Mount when
	// the disk is not mounted.
	ErrNotMounted = errors.New("disk not mounted")
)

// Executor runs one protocol command against the peer. MOUNT must
// open the session and a successful UNMOUNT must close it.
// *session.Client implements Executor.
type Executor interface {
	Execute(ctx context.Context, opcode wire.Opcode, payload []byte) ([]byte, error)
}

// counter is implemented by executors that count round trips.
type counter interface {
	Counters() map[wire.Operation]uint64
}

// disconnecter is implemented by executors that can drop their
// session without a successful UNMOUNT.
type disconnecter interface {
	Disconnect() error
}

// Options configures a Disk.
type Options struct {
	// Client talks to the peer. Required.
	Client Executor

	// Clock stamps cache lines. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is passed to the block cache and receives mount,
	// unmount, and per-transfer records. If nil, only errors are
	// logged, to stderr.
	Logger *slog.Logger
}

// Stats is a snapshot of the disk's counters.
type Stats struct {
	Mounted bool
	// Cache is the zero value while unmounted.
	Cache blockcache.Stats
	// RoundTrips is nil if the client does not count them.
	RoundTrips map[wire.Operation]uint64
}

// Disk is the driver-facing virtual disk.
type Disk struct {
	client Executor
	clock  clock.Clock
	logger *slog.Logger

	// cache is non-nil exactly while the disk is mounted.
	cache *blockcache.Cache
}

// New creates an unmounted disk.
func New(options Options) (*Disk, error) {
	if options.Client == nil {
		return nil, errors.New("vdisk: Client is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}
	return &Disk{
		client: options.Client,
		clock:  options.Clock,
		logger: options.Logger,
	}, nil
}

// Mounted reports whether the disk is mounted.
func (d *Disk) Mounted() bool { return d.cache != nil }

// Mount opens a session with the peer and creates a block cache of
// cacheLines lines. If the peer refuses, no cache is created and the
// disk stays unmounted.
func (d *Disk) Mount(ctx context.Context, cacheLines int) error {
	if d.cache != nil {
		return ErrMounted
	}
	// Validate the cache configuration before touching the network.
	cache, err := blockcache.New(blockcache.Config{
		Lines:  cacheLines,
		Clock:  d.clock,
		Logger: d.logger,
	})
	if err != nil {
		return fmt.Errorf("mounting: %w", err)
	}
	if _, err := d.client.Execute(ctx, mustPack(wire.OpMount, 0, 0), nil); err != nil {
		return fmt.Errorf("mounting: %w", err)
	}
	d.cache = cache
	d.logger.Info("disk mounted", "cache_lines", cacheLines)
	return nil
}

// Unmount closes the session with the peer. The cache is cleared and
// released and the disk is marked unmounted whether or not the peer
// acknowledges; the peer's error, if any, is still returned.
func (d *Disk) Unmount(ctx context.Context) error {
	if d.cache == nil {
		return ErrNotMounted
	}
	_, err := d.client.Execute(ctx, mustPack(wire.OpUnmount, 0, 0), nil)
	stats := d.cache.Stats()
	d.cache.Clear()
	d.cache = nil
	if err != nil {
		d.logger.Warn("unmount not acknowledged by peer", "error", err)
		if session, ok := d.client.(disconnecter); ok {
			session.Disconnect()
		}
		return fmt.Errorf("unmounting: %w", err)
	}
	d.logger.Info("disk unmounted",
		"cache_hits", stats.Hits,
		"cache_misses", stats.Misses,
		"cache_evictions", stats.Evictions,
	)
	return nil
}

// Read fills out with the bytes starting at addr.
func (d *Disk) Read(ctx context.Context, addr geometry.Address, out []byte) error {
	if err := d.check(addr, len(out)); err != nil {
		return err
	}
	location := geometry.Translate(addr)
	for done := 0; done < len(out); {
		block, err := d.fetch(ctx, location)
		if err != nil {
			return fmt.Errorf("reading %d bytes at %d: %w", len(out), addr, err)
		}
		done += copy(out[done:], block[location.Offset:])
		location = location.Next()
	}
	d.logger.Debug("read", "address", addr, "length", len(out))
	return nil
}

// Write stores data starting at addr. Blocks written before a failure
// stay written.
func (d *Disk) Write(ctx context.Context, addr geometry.Address, data []byte) error {
	if err := d.check(addr, len(data)); err != nil {
		return err
	}
	location := geometry.Translate(addr)
	for done := 0; done < len(data); {
		written, err := d.store(ctx, location, data[done:])
		if err != nil {
			return fmt.Errorf("writing %d bytes at %d: %w", len(data), addr, err)
		}
		done += written
		location = location.Next()
	}
	d.logger.Debug("write", "address", addr, "length", len(data))
	return nil
}

// Stats returns the current counters.
func (d *Disk) Stats() Stats {
	stats := Stats{Mounted: d.cache != nil}
	if d.cache != nil {
		stats.Cache = d.cache.Stats()
	}
	if counting, ok := d.client.(counter); ok {
		stats.RoundTrips = counting.Counters()
	}
	return stats
}

// check rejects a transfer before any network activity.
func (d *Disk) check(addr geometry.Address, length int) error {
	if d.cache == nil {
		return ErrNotMounted
	}
	return geometry.CheckRange(addr, length)
}

// fetch returns the block at location, from the cache or from the
// peer. A block read from the peer is inserted into the cache. The
// returned slice is borrowed: it may be the cache's own buffer.
func (d *Disk) fetch(ctx context.Context, location geometry.Location) ([]byte, error) {
	if block, ok := d.cache.Lookup(location.Drum, location.Block); ok {
		return block, nil
	}
	if err := d.seek(ctx, location); err != nil {
		return nil, err
	}
	block, err := d.client.Execute(ctx, mustPack(wire.OpDiskRead, location.Drum, location.Block), nil)
	if err != nil {
		return nil, err
	}
	if err := d.cache.Insert(location.Drum, location.Block, block); err != nil {
		return nil, err
	}
	return block, nil
}

// store writes as much of data as fits in the block at location,
// starting at the location's offset, and returns the number of bytes
// consumed.
func (d *Disk) store(ctx context.Context, location geometry.Location, data []byte) (int, error) {
	cached, err := d.fetch(ctx, location)
	if err != nil {
		return 0, err
	}
	modified := make([]byte, geometry.BlockSize)
	copy(modified, cached)
	written := copy(modified[location.Offset:], data)

	if err := d.seek(ctx, location); err != nil {
		return 0, err
	}
	if _, err := d.client.Execute(ctx, mustPack(wire.OpDiskWrite, location.Drum, location.Block), modified); err != nil {
		return 0, err
	}
	// The peer now holds modified. Bring the cached line in step with
	// it; cached is the cache's own buffer unless the line has since
	// been evicted, in which case this is harmless.
	copy(cached, modified)
	return written, nil
}

// seek positions the peer's head at the location's drum and block.
// Both commands carry the full target location.
func (d *Disk) seek(ctx context.Context, location geometry.Location) error {
	if _, err := d.client.Execute(ctx, mustPack(wire.OpSeekDrum, location.Drum, location.Block), nil); err != nil {
		return err
	}
	_, err := d.client.Execute(ctx, mustPack(wire.OpSeekBlock, location.Drum, location.Block), nil)
	return err
}

// mustPack packs an opcode whose fields are already known to be in
// range.
func mustPack(op wire.Operation, drum geometry.DrumID, block geometry.BlockID) wire.Opcode {
	opcode, err := wire.Pack(op, drum, block)
	if err != nil {
		panic(fmt.Sprintf("vdisk: packing %s [%d,%d]: %v", op, drum, block, err))
	}
	return opcode
}
