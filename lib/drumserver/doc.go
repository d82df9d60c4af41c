// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package drumserver is a reference peer for the drum array protocol.
// It serves a drumstore.Medium over TCP so the driver can be run and
// tested against something real.
//
// Each connection is one session with its own state: whether it is
// mounted and where its head is. The head starts at [0,0].
//
//	MOUNT       mounted (AlreadyMounted if it was)
//	SEEK_DRUM   head = [drum, 0]
//	SEEK_BLOCK  head = [head drum, block]; BadSeek if the opcode names
//	            another drum
//	DISK_READ   the block under the head; BadSeek unless the opcode
//	            names the head position
//	DISK_WRITE  as DISK_READ, storing the payload (BadLength without
//	            one)
//	UNMOUNT     sync the medium, answer, hang up
//
// Every command but MOUNT answers NotMounted before MOUNT. Opcodes
// with reserved bits or an unknown operation answer BadOpcode. A frame
// that cannot be parsed ends the connection, since there is no way to
// resynchronize the stream. Medium failures answer MediumError.
package drumserver
