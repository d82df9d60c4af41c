// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vdiskfuse exposes a mounted virtual disk as a FUSE
// filesystem containing a single regular file, "disk", whose bytes are
// the disk's address space. Standard tools (dd, xxd, cmp) can then read
// and write the drum array without speaking the wire protocol.
//
// Every read and write goes through the disk's block cache. The kernel
// page cache is bypassed (FOPEN_DIRECT_IO) so that command counts seen
// by the peer reflect what the file's users asked for.
package vdiskfuse
