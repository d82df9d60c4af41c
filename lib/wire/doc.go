// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the drum array block-I/O protocol: opcode
// packing, the fixed 8-byte frame header, and stream helpers that
// read and write whole frames.
//
// Every command is one request frame answered by one response frame.
// Frames are a header in network byte order, optionally followed by
// exactly one block of payload:
//
//	| Offset | Length | Field                                  |
//	|--------|--------|----------------------------------------|
//	| 0      | 2      | total frame length (header + payload)  |
//	| 2      | 4      | packed opcode                          |
//	| 6      | 2      | status (zero on success)               |
//	| 8      | 256    | payload, DISK_WRITE requests and       |
//	|        |        | successful DISK_READ responses only    |
//
// The peer echoes the request opcode verbatim in its response. There
// is no request identifier: a connection carries one outstanding
// request at a time, and callers that share a connection must
// serialize whole command sequences, not single frames.
package wire
