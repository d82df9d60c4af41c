// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drumserver

import (
	"log/slog"

	"github.com/bureau-foundation/drumarray/lib/drumstore"
	"github.com/bureau-foundation/drumarray/lib/geometry"
	"github.com/bureau-foundation/drumarray/lib/wire"
)

// session is the per-connection protocol state.
type session struct {
	medium drumstore.Medium
	logger *slog.Logger

	mounted   bool
	headDrum  geometry.DrumID
	headBlock geometry.BlockID
}

// execute applies one request and returns the response to send. The
// second result is true when the connection should close after the
// response is written.
func (s *session) execute(request wire.Frame) (wire.Frame, bool) {
	status, payload, hangUp := s.apply(request)
	s.logger.Debug("command",
		"operation", request.Opcode.Operation(),
		"drum", request.Opcode.Drum(),
		"block", request.Opcode.Block(),
		"status", status,
	)
	response, err := wire.NewResponse(request.Opcode, status, payload)
	if err != nil {
		// apply only returns a payload with StatusOK on DISK_READ.
		panic("drumserver: building response: " + err.Error())
	}
	return response, hangUp
}

func (s *session) apply(request wire.Frame) (wire.Status, []byte, bool) {
	op, drum, block, err := wire.Unpack(request.Opcode)
	if err != nil || !op.Known() {
		return wire.StatusBadOpcode, nil, false
	}
	if op == wire.OpMount {
		if s.mounted {
			return wire.StatusAlreadyMounted, nil, false
		}
		s.mounted = true
		s.headDrum, s.headBlock = 0, 0
		return wire.StatusOK, nil, false
	}
	if !s.mounted {
		return wire.StatusNotMounted, nil, false
	}

	switch op {
	case wire.OpUnmount:
		s.mounted = false
		if err := s.medium.Sync(); err != nil {
			s.logger.Error("syncing medium on unmount", "error", err)
			return wire.StatusMediumError, nil, true
		}
		return wire.StatusOK, nil, true

	case wire.OpSeekDrum:
		s.headDrum, s.headBlock = drum, 0
		return wire.StatusOK, nil, false

	case wire.OpSeekBlock:
		if drum != s.headDrum {
			return wire.StatusBadSeek, nil, false
		}
		s.headBlock = block
		return wire.StatusOK, nil, false

	case wire.OpDiskRead:
		if drum != s.headDrum || block != s.headBlock {
			return wire.StatusBadSeek, nil, false
		}
		data := make([]byte, geometry.BlockSize)
		if err := s.medium.ReadBlock(drum, block, data); err != nil {
			s.logger.Error("reading block", "drum", drum, "block", block, "error", err)
			return wire.StatusMediumError, nil, false
		}
		return wire.StatusOK, data, false

	case wire.OpDiskWrite:
		if drum != s.headDrum || block != s.headBlock {
			return wire.StatusBadSeek, nil, false
		}
		if len(request.Payload) != geometry.BlockSize {
			return wire.StatusBadLength, nil, false
		}
		if err := s.medium.WriteBlock(drum, block, request.Payload); err != nil {
			s.logger.Error("writing block", "drum", drum, "block", block, "error", err)
			return wire.StatusMediumError, nil, false
		}
		return wire.StatusOK, nil, false
	}
	return wire.StatusBadOpcode, nil, false
}
