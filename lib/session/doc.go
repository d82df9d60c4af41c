// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session is the client side of the drum array protocol. A
// [Client] owns at most one connection to the peer and executes one
// command at a time: it frames the request, writes it, reads exactly
// one response, and checks that the peer echoed the opcode and
// reported success.
//
// The connection lifetime follows the protocol. MOUNT opens the
// connection before sending, and a successful UNMOUNT closes it
// afterwards. Every other command requires an open connection and
// fails with [ErrNotConnected] without touching the network.
//
// Failures come in two kinds. A [*TransportError] means the stream
// itself failed (dial, write, or read) and the connection is closed,
// since its position in the request/response sequence is unknown. A
// [*ProtocolError] means a well-formed exchange completed but the peer
// refused the command or answered something else, or sent a frame
// that violates the format.
//
// A Client is not safe for concurrent use. Callers that share one
// must serialize whole command sequences (seek, seek, transfer), not
// single calls.
package session
