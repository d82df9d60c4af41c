// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Status is the 16-bit result code in a response header. Zero is
// success; every other value is a failure reported by the peer.
type Status uint16

const (
	StatusOK             Status = 0
	StatusNotMounted     Status = 1
	StatusAlreadyMounted Status = 2
	StatusBadSeek        Status = 3
	StatusBadOpcode      Status = 4
	StatusMediumError    Status = 5
	StatusBadLength      Status = 6
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotMounted:
		return "not mounted"
	case StatusAlreadyMounted:
		return "already mounted"
	case StatusBadSeek:
		return "head not positioned"
	case StatusBadOpcode:
		return "bad opcode"
	case StatusMediumError:
		return "medium error"
	case StatusBadLength:
		return "bad frame length"
	default:
		return fmt.Sprintf("status %d", uint16(s))
	}
}
