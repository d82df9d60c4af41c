// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// drumctl reads and writes a remote drum array through the virtual
// disk driver. Each invocation mounts the disk, runs one command, and
// unmounts, so every byte goes through the same block cache and
// command sequence an embedding program would see.
//
// Commands:
//
//	read ADDR LENGTH [-o FILE]   copy bytes out of the disk
//	write ADDR [-i FILE]         copy bytes (stdin by default) into the disk
//	dump ADDR LENGTH             print a hex dump
//	fuse MOUNTPOINT              expose the disk as a file until interrupted
//
// ADDR is a byte address (decimal or 0x hex) or DRUM:BLOCK. --stats
// prints cache and round-trip counters to stderr after the command.
package main
