// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package geometry describes the shape of the drum array and maps the
// flat virtual address space onto it.
//
// The array is DrumCount drums of BlocksPerDrum blocks of BlockSize
// bytes. A virtual address is a byte offset into the concatenation of
// all drums, drum 0 first:
//
//	drum   = addr / DrumSize
//	block  = (addr mod DrumSize) / BlockSize
//	offset = addr mod BlockSize
//
// Translate is total over uint32 and never fails; callers that accept
// addresses from outside use CheckRange first so that nothing past
// Capacity ever reaches the network.
package geometry
