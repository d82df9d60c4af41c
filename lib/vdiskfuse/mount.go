// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vdiskfuse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/bureau-foundation/drumarray/lib/geometry"
	"github.com/bureau-foundation/drumarray/lib/vdisk"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// FileName is the name of the file holding the disk image.
const FileName = "disk"

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// It is created if it does not exist.
	Mountpoint string

	// Disk is the virtual disk to expose. It must already be mounted;
	// operations on an unmounted disk fail with EIO.
	Disk *vdisk.Synchronized

	// ReadOnly rejects opens for writing with EROFS.
	ReadOnly bool

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, errors go to stderr.
	Logger *slog.Logger
}

// Mount mounts the disk filesystem. The caller must call Unmount on
// the returned server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Disk == nil {
		return nil, fmt.Errorf("disk is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{options: &options}

	// Attributes never change: the file is always Capacity bytes.
	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 1 * time.Second

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "drumarray",
			Name:       "drumarray",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("disk FUSE filesystem mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

// rootNode is the filesystem root. Its only child is the disk file.
type rootNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeOnAdder = (*rootNode)(nil)

func (r *rootNode) OnAdd(ctx context.Context) {
	file := r.NewPersistentInode(ctx, &diskNode{options: r.options}, gofuse.StableAttr{Mode: syscall.S_IFREG})
	r.AddChild(FileName, file, true)
}

// diskNode is the disk image file.
type diskNode struct {
	gofuse.Inode
	options *Options
}

var _ gofuse.InodeEmbedder = (*diskNode)(nil)
var _ gofuse.NodeGetattrer = (*diskNode)(nil)
var _ gofuse.NodeSetattrer = (*diskNode)(nil)
var _ gofuse.NodeOpener = (*diskNode)(nil)
var _ gofuse.NodeReader = (*diskNode)(nil)
var _ gofuse.NodeWriter = (*diskNode)(nil)
var _ gofuse.NodeFsyncer = (*diskNode)(nil)

func (d *diskNode) fillAttr(out *fuse.Attr) {
	out.Mode = syscall.S_IFREG | 0o644
	if d.options.ReadOnly {
		out.Mode = syscall.S_IFREG | 0o444
	}
	out.Size = uint64(geometry.Capacity)
	out.Blocks = (out.Size + 511) / 512
	out.Blksize = geometry.BlockSize
}

func (d *diskNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	d.fillAttr(&out.Attr)
	return 0
}

// Setattr accepts a size change only to the current size. The disk
// cannot grow or shrink.
func (d *diskNode) Setattr(_ context.Context, _ gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok && size != uint64(geometry.Capacity) {
		if d.options.ReadOnly {
			return syscall.EROFS
		}
		return syscall.EPERM
	}
	d.fillAttr(&out.Attr)
	return 0
}

func (d *diskNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if d.options.ReadOnly && flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (d *diskNode) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off < 0 {
		return nil, syscall.EINVAL
	}
	if off >= geometry.Capacity {
		return fuse.ReadResultData(nil), 0
	}
	length := min(int64(len(dest)), geometry.Capacity-off)
	if err := d.options.Disk.Read(ctx, geometry.Address(off), dest[:length]); err != nil {
		d.options.Logger.Error("disk read failed", "offset", off, "length", length, "error", err)
		return nil, errno(err)
	}
	return fuse.ReadResultData(dest[:length]), 0
}

func (d *diskNode) Write(ctx context.Context, f gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	if d.options.ReadOnly {
		return 0, syscall.EROFS
	}
	if off < 0 {
		return 0, syscall.EINVAL
	}
	if off+int64(len(data)) > geometry.Capacity {
		return 0, syscall.EFBIG
	}
	if err := d.options.Disk.Write(ctx, geometry.Address(off), data); err != nil {
		d.options.Logger.Error("disk write failed", "offset", off, "length", len(data), "error", err)
		return 0, errno(err)
	}
	return uint32(len(data)), 0
}

// Fsync is a no-op: every write has been accepted by the peer before
// Write returns.
func (d *diskNode) Fsync(ctx context.Context, f gofuse.FileHandle, flags uint32) syscall.Errno {
	return 0
}

// errno maps a disk error to the errno reported to the kernel.
func errno(err error) syscall.Errno {
	var rangeErr *geometry.RangeError
	switch {
	case errors.As(err, &rangeErr):
		return syscall.EINVAL
	case errors.Is(err, context.Canceled):
		return syscall.EINTR
	default:
		return syscall.EIO
	}
}
