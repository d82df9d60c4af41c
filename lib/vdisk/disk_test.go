// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vdisk

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/drumarray/lib/clock"
	"github.com/bureau-foundation/drumarray/lib/geometry"
	"github.com/bureau-foundation/drumarray/lib/session"
	"github.com/bureau-foundation/drumarray/lib/testutil"
	"github.com/bureau-foundation/drumarray/lib/wire"
)

func newTestDisk(t *testing.T, array *fakeArray) *Disk {
	t.Helper()
	disk, err := New(Options{
		Client: array,
		Clock:  clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return disk
}

func mountTestDisk(t *testing.T, array *fakeArray, cacheLines int) *Disk {
	t.Helper()
	disk := newTestDisk(t, array)
	if err := disk.Mount(context.Background(), cacheLines); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	array.takeLog()
	return disk
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New accepted options without a client")
	}
}

func TestWriteThenRead(t *testing.T) {
	tests := []struct {
		name    string
		address geometry.Address
		length  int
	}{
		{"inside one block", 10, 100},
		{"one boundary", 200, 100},
		{"full block aligned", 512, geometry.BlockSize},
		{"blocks plus partial", 1000, 3*geometry.BlockSize + 77},
		{"drum boundary", geometry.DrumSize - 100, 300},
		{"end of array", geometry.Capacity - 50, 50},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			array := newFakeArray()
			disk := mountTestDisk(t, array, 4)
			data := testutil.Pattern(test.length, byte(test.address))

			if err := disk.Write(ctx, test.address, data); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got := make([]byte, test.length)
			if err := disk.Read(ctx, test.address, got); err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatal("read back different bytes than written")
			}
			if err := disk.Unmount(ctx); err != nil {
				t.Fatalf("Unmount: %v", err)
			}

			// A fresh mount has an empty cache, so this read comes
			// from the peer.
			if err := disk.Mount(ctx, 4); err != nil {
				t.Fatalf("remount: %v", err)
			}
			clear(got)
			if err := disk.Read(ctx, test.address, got); err != nil {
				t.Fatalf("Read after remount: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatal("peer does not hold the written bytes")
			}
		})
	}
}

func TestPartialWritePreservesBlock(t *testing.T) {
	ctx := context.Background()
	array := newFakeArray()
	original := testutil.Pattern(geometry.BlockSize, 3)
	array.setBlock(2, 9, original)
	disk := mountTestDisk(t, array, 2)

	blockStart := geometry.Compose(2, 9, 0)
	before := make([]byte, geometry.BlockSize)
	if err := disk.Read(ctx, blockStart, before); err != nil {
		t.Fatalf("Read before: %v", err)
	}
	if !bytes.Equal(before, original) {
		t.Fatal("initial read does not match the peer")
	}

	patch := bytes.Repeat([]byte{0xee}, 20)
	if err := disk.Write(ctx, blockStart+100, patch); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := append([]byte(nil), original...)
	copy(want[100:], patch)
	after := make([]byte, geometry.BlockSize)
	if err := disk.Read(ctx, blockStart, after); err != nil {
		t.Fatalf("Read after: %v", err)
	}
	if !bytes.Equal(after, want) {
		t.Fatal("cached block after partial write is wrong")
	}
	if !bytes.Equal(array.block(2, 9), want) {
		t.Fatal("peer block after partial write is wrong")
	}
}

func TestWriteCostPerBlock(t *testing.T) {
	ctx := context.Background()
	array := newFakeArray()
	disk := mountTestDisk(t, array, 4)

	// 300 bytes at 10 touch [0,0] bytes 10..255 and [0,1] bytes 0..53.
	if err := disk.Write(ctx, 10, testutil.Pattern(300, 0)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	expectLog(t, array.takeLog(), []wire.Opcode{
		op(t, wire.OpSeekDrum, 0, 0),
		op(t, wire.OpSeekBlock, 0, 0),
		op(t, wire.OpDiskRead, 0, 0),
		op(t, wire.OpSeekDrum, 0, 0),
		op(t, wire.OpSeekBlock, 0, 0),
		op(t, wire.OpDiskWrite, 0, 0),
		op(t, wire.OpSeekDrum, 0, 1),
		op(t, wire.OpSeekBlock, 0, 1),
		op(t, wire.OpDiskRead, 0, 1),
		op(t, wire.OpSeekDrum, 0, 1),
		op(t, wire.OpSeekBlock, 0, 1),
		op(t, wire.OpDiskWrite, 0, 1),
	})

	stats := disk.Stats()
	if stats.Cache.Lookups() != 2 || stats.Cache.Misses != 2 {
		t.Fatalf("cache stats = %+v, want two lookups, both misses", stats.Cache)
	}

	// Both blocks are cached now: reading costs nothing on the wire.
	if err := disk.Read(ctx, 10, make([]byte, 300)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	expectLog(t, array.takeLog(), nil)

	// Writing a cached block skips the read.
	if err := disk.Write(ctx, 20, []byte{1, 2, 3}); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	expectLog(t, array.takeLog(), []wire.Opcode{
		op(t, wire.OpSeekDrum, 0, 0),
		op(t, wire.OpSeekBlock, 0, 0),
		op(t, wire.OpDiskWrite, 0, 0),
	})
}

func TestReadCostPerBlock(t *testing.T) {
	ctx := context.Background()
	array := newFakeArray()
	disk := mountTestDisk(t, array, 4)

	if err := disk.Read(ctx, geometry.Compose(5, 40, 0), make([]byte, geometry.BlockSize)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	expectLog(t, array.takeLog(), []wire.Opcode{
		op(t, wire.OpSeekDrum, 5, 40),
		op(t, wire.OpSeekBlock, 5, 40),
		op(t, wire.OpDiskRead, 5, 40),
	})

	if err := disk.Read(ctx, geometry.Compose(5, 40, 17), make([]byte, 3)); err != nil {
		t.Fatalf("second Read: %v", err)
	}
	expectLog(t, array.takeLog(), nil)
	if stats := disk.Stats(); stats.Cache.Hits != 1 || stats.Cache.Misses != 1 {
		t.Fatalf("cache stats = %+v, want one hit and one miss", stats.Cache)
	}
}

func TestDrumRollover(t *testing.T) {
	ctx := context.Background()
	array := newFakeArray()
	disk := mountTestDisk(t, array, 4)

	last := geometry.Compose(0, geometry.BlocksPerDrum-1, geometry.BlockSize-4)
	if err := disk.Read(ctx, last, make([]byte, 8)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	expectLog(t, array.takeLog(), []wire.Opcode{
		op(t, wire.OpSeekDrum, 0, geometry.BlocksPerDrum-1),
		op(t, wire.OpSeekBlock, 0, geometry.BlocksPerDrum-1),
		op(t, wire.OpDiskRead, 0, geometry.BlocksPerDrum-1),
		op(t, wire.OpSeekDrum, 1, 0),
		op(t, wire.OpSeekBlock, 1, 0),
		op(t, wire.OpDiskRead, 1, 0),
	})
}

func TestSmallCacheStillTransfers(t *testing.T) {
	for _, lines := range []int{0, 1} {
		ctx := context.Background()
		array := newFakeArray()
		disk := mountTestDisk(t, array, lines)

		data := testutil.Pattern(5*geometry.BlockSize+31, 9)
		if err := disk.Write(ctx, 77, data); err != nil {
			t.Fatalf("lines=%d: Write: %v", lines, err)
		}
		got := make([]byte, len(data))
		if err := disk.Read(ctx, 77, got); err != nil {
			t.Fatalf("lines=%d: Read: %v", lines, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("lines=%d: read back different bytes", lines)
		}
		if populated := disk.cache.Len(); populated > lines {
			t.Fatalf("lines=%d: %d lines populated", lines, populated)
		}
	}
}

func TestSessionStateErrors(t *testing.T) {
	ctx := context.Background()
	array := newFakeArray()
	disk := newTestDisk(t, array)

	if err := disk.Read(ctx, 0, make([]byte, 1)); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Read before Mount: err = %v, want ErrNotMounted", err)
	}
	if err := disk.Write(ctx, 0, []byte{1}); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Write before Mount: err = %v, want ErrNotMounted", err)
	}
	if err := disk.Read(ctx, 0, nil); !errors.Is(err, ErrNotMounted) {
		t.Errorf("empty Read before Mount: err = %v, want ErrNotMounted", err)
	}
	if err := disk.Unmount(ctx); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Unmount before Mount: err = %v, want ErrNotMounted", err)
	}
	expectLog(t, array.takeLog(), nil)

	if err := disk.Mount(ctx, 2); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := disk.Mount(ctx, 2); !errors.Is(err, ErrMounted) {
		t.Errorf("second Mount: err = %v, want ErrMounted", err)
	}
	expectLog(t, array.takeLog(), []wire.Opcode{op(t, wire.OpMount, 0, 0)})

	if err := disk.Unmount(ctx); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	if err := disk.Read(ctx, 0, make([]byte, 1)); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Read after Unmount: err = %v, want ErrNotMounted", err)
	}
}

func TestRangeErrorsBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	array := newFakeArray()
	disk := mountTestDisk(t, array, 2)

	tests := []struct {
		name    string
		address geometry.Address
		length  int
	}{
		{"one past the end", geometry.Capacity - 10, 11},
		{"starts past the end", geometry.Capacity + 1, 1},
		{"huge length", 0, geometry.Capacity + 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var rangeErr *geometry.RangeError
			if err := disk.Read(ctx, test.address, make([]byte, test.length)); !errors.As(err, &rangeErr) {
				t.Errorf("Read: err = %v, want *RangeError", err)
			}
			if err := disk.Write(ctx, test.address, make([]byte, test.length)); !errors.As(err, &rangeErr) {
				t.Errorf("Write: err = %v, want *RangeError", err)
			}
			expectLog(t, array.takeLog(), nil)
		})
	}

	// Zero-length transfers at the very end are fine and free.
	if err := disk.Read(ctx, geometry.Capacity, nil); err != nil {
		t.Fatalf("empty Read at end: %v", err)
	}
	if err := disk.Write(ctx, geometry.Capacity, nil); err != nil {
		t.Fatalf("empty Write at end: %v", err)
	}
	expectLog(t, array.takeLog(), nil)
}

func TestMountFailure(t *testing.T) {
	ctx := context.Background()
	array := newFakeArray()
	refused := errors.New("connection refused")
	array.fail = func(opcode wire.Opcode) error {
		if opcode.Operation() == wire.OpMount {
			return refused
		}
		return nil
	}
	disk := newTestDisk(t, array)

	if err := disk.Mount(ctx, 4); !errors.Is(err, refused) {
		t.Fatalf("Mount: err = %v, want refused", err)
	}
	if disk.Mounted() {
		t.Fatal("disk mounted after failed MOUNT")
	}
	if disk.Stats().Mounted {
		t.Fatal("Stats reports mounted")
	}

	array.fail = nil
	if err := disk.Mount(ctx, -1); err == nil {
		t.Fatal("Mount accepted a negative cache size")
	}
	expectLog(t, array.takeLog(), nil)

	if err := disk.Mount(ctx, 4); err != nil {
		t.Fatalf("Mount after failure: %v", err)
	}
}

func TestUnmountReleasesCacheOnFailure(t *testing.T) {
	ctx := context.Background()
	array := newFakeArray()
	disk := mountTestDisk(t, array, 4)
	if err := disk.Read(ctx, 0, make([]byte, 10)); err != nil {
		t.Fatalf("Read: %v", err)
	}

	array.fail = func(opcode wire.Opcode) error {
		if opcode.Operation() == wire.OpUnmount {
			return &session.ProtocolError{Request: opcode, Response: opcode, Status: wire.StatusMediumError}
		}
		return nil
	}
	err := disk.Unmount(ctx)
	var protocolErr *session.ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Fatalf("Unmount: err = %v, want *ProtocolError", err)
	}
	if disk.Mounted() {
		t.Fatal("disk still mounted after failed UNMOUNT")
	}
	if stats := disk.Stats(); stats.Cache != (Stats{}).Cache {
		t.Fatalf("cache stats after unmount = %+v, want zero", stats.Cache)
	}

	// The session was dropped, so a new MOUNT goes through and
	// starts with an empty cache.
	array.fail = nil
	if err := disk.Mount(ctx, 4); err != nil {
		t.Fatalf("Mount after failed Unmount: %v", err)
	}
	array.takeLog()
	if err := disk.Read(ctx, 0, make([]byte, 10)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(array.takeLog()) != 3 {
		t.Fatal("read after remount was served from a stale cache")
	}
}

func TestFailedWriteLeavesCacheMatchingPeer(t *testing.T) {
	ctx := context.Background()
	array := newFakeArray()
	original := testutil.Pattern(geometry.BlockSize, 40)
	array.setBlock(0, 3, original)
	disk := mountTestDisk(t, array, 4)

	address := geometry.Compose(0, 3, 0)
	if err := disk.Read(ctx, address, make([]byte, 1)); err != nil {
		t.Fatalf("Read: %v", err)
	}

	array.fail = failOn(wire.OpDiskWrite, 0, 3, 0, &session.ProtocolError{Status: wire.StatusMediumError})
	if err := disk.Write(ctx, address+8, []byte("scribble")); err == nil {
		t.Fatal("Write succeeded despite DISK_WRITE failure")
	}

	got := make([]byte, geometry.BlockSize)
	if err := disk.Read(ctx, address, got); err != nil {
		t.Fatalf("Read after failed write: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Fatal("cache holds bytes the peer never accepted")
	}
}

func TestPartialTransferIsNotRolledBack(t *testing.T) {
	ctx := context.Background()
	array := newFakeArray()
	disk := mountTestDisk(t, array, 4)

	array.fail = failOn(wire.OpDiskWrite, 0, 1, 0, &session.ProtocolError{Status: wire.StatusMediumError})
	data := testutil.Pattern(2*geometry.BlockSize, 1)
	if err := disk.Write(ctx, 0, data); err == nil {
		t.Fatal("Write succeeded despite failure on the second block")
	}
	if !bytes.Equal(array.block(0, 0), data[:geometry.BlockSize]) {
		t.Fatal("first block was not written before the failure")
	}
	if bytes.Equal(array.block(0, 1), data[geometry.BlockSize:]) {
		t.Fatal("second block was written despite the failure")
	}
}

func TestStatsIncludeRoundTrips(t *testing.T) {
	ctx := context.Background()
	array := newFakeArray()
	disk := mountTestDisk(t, array, 4)
	if err := disk.Write(ctx, 0, []byte{1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	stats := disk.Stats()
	if !stats.Mounted {
		t.Fatal("Stats reports unmounted")
	}
	want := map[wire.Operation]uint64{
		wire.OpMount:     1,
		wire.OpSeekDrum:  2,
		wire.OpSeekBlock: 2,
		wire.OpDiskRead:  1,
		wire.OpDiskWrite: 1,
	}
	for operation, count := range want {
		if stats.RoundTrips[operation] != count {
			t.Errorf("RoundTrips[%s] = %d, want %d", operation, stats.RoundTrips[operation], count)
		}
	}
}
