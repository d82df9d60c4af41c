// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/drumarray/lib/wire"
)

var (
	// ErrNotConnected is returned by Execute for any command other
	// than MOUNT when no connection is open.
	ErrNotConnected = errors.New("not connected to peer")

	// ErrConnected is returned by Connect (and by a MOUNT) when a
	// connection is already open.
	ErrConnected = errors.New("already connected to peer")
)

// Phase names the step of a round trip that failed.
type Phase string

const (
	PhaseDial  Phase = "dial"
	PhaseWrite Phase = "write"
	PhaseRead  Phase = "read"
)

// TransportError is returned when the connection to the peer fails.
// The client has already closed the connection when this is returned.
type TransportError struct {
	Address string
	Opcode  wire.Opcode
	Phase   Phase
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s to %s failed: %v", e.Opcode.Operation(), e.Phase, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is returned when the peer answered a command with a
// non-zero status, echoed a different opcode, or sent a malformed
// frame. Err is set only for format violations.
type ProtocolError struct {
	Request  wire.Opcode
	Response wire.Opcode
	Status   wire.Status
	Err      error
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: malformed response: %v", e.Request, e.Err)
	case e.Response != e.Request:
		return fmt.Sprintf("%s: peer answered %s", e.Request, e.Response)
	default:
		return fmt.Sprintf("%s: peer returned status %s", e.Request, e.Status)
	}
}

func (e *ProtocolError) Unwrap() error { return e.Err }
