// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/drumarray/lib/geometry"
)

// HeaderSize is the encoded size of a frame header in bytes.
const HeaderSize = 8

// FrameSize is the largest frame: a header plus one block.
const FrameSize = HeaderSize + geometry.BlockSize

var (
	// ErrShortFrame is returned when fewer than HeaderSize bytes are
	// available to decode a header.
	ErrShortFrame = errors.New("frame shorter than header")

	// ErrPayloadLength is returned when a frame declares a payload
	// that is not allowed for its operation and direction, or whose
	// length is not exactly one block.
	ErrPayloadLength = errors.New("unexpected payload length")

	// ErrFrameLength is returned when a header declares a total
	// length smaller than the header itself.
	ErrFrameLength = errors.New("declared frame length smaller than header")
)

// IsFormatError reports whether err is a frame format violation, as
// opposed to an I/O failure on the underlying stream.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrShortFrame) ||
		errors.Is(err, ErrPayloadLength) ||
		errors.Is(err, ErrFrameLength) ||
		errors.Is(err, ErrReservedBits)
}

// Direction says which side produced a frame. It decides which
// operation may carry a payload: DISK_WRITE requests and DISK_READ
// responses.
type Direction int

const (
	Request Direction = iota
	Response
)

func (d Direction) String() string {
	if d == Request {
		return "request"
	}
	return "response"
}

// carriesPayload reports whether a frame for op travelling in
// direction d carries a block.
func carriesPayload(op Operation, d Direction) bool {
	switch d {
	case Request:
		return op == OpDiskWrite
	default:
		return op == OpDiskRead
	}
}

// Header is the fixed-size frame header.
type Header struct {
	Length uint16
	Opcode Opcode
	Status Status
}

// MarshalBinary encodes the header in network byte order.
func (h Header) MarshalBinary() ([]byte, error) {
	data := make([]byte, HeaderSize)
	h.put(data)
	return data, nil
}

func (h Header) put(data []byte) {
	binary.BigEndian.PutUint16(data[0:2], h.Length)
	binary.BigEndian.PutUint32(data[2:6], uint32(h.Opcode))
	binary.BigEndian.PutUint16(data[6:8], uint16(h.Status))
}

// DecodeHeader decodes the first HeaderSize bytes of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: have %d bytes, need %d", ErrShortFrame, len(data), HeaderSize)
	}
	return Header{
		Length: binary.BigEndian.Uint16(data[0:2]),
		Opcode: Opcode(binary.BigEndian.Uint32(data[2:6])),
		Status: Status(binary.BigEndian.Uint16(data[6:8])),
	}, nil
}

// payloadLength validates the header's declared length for a frame
// travelling in direction d and returns the number of payload bytes
// that follow the header.
func (h Header) payloadLength(d Direction) (int, error) {
	if h.Length < HeaderSize {
		return 0, fmt.Errorf("%w: %d", ErrFrameLength, h.Length)
	}
	payload := int(h.Length) - HeaderSize
	if payload == 0 {
		return 0, nil
	}
	if !carriesPayload(h.Opcode.Operation(), d) {
		return 0, fmt.Errorf("%w: %s %s declares %d payload bytes",
			ErrPayloadLength, h.Opcode.Operation(), d, payload)
	}
	if payload != geometry.BlockSize {
		return 0, fmt.Errorf("%w: %s %s declares %d payload bytes, want %d",
			ErrPayloadLength, h.Opcode.Operation(), d, payload, geometry.BlockSize)
	}
	return payload, nil
}

// Frame is one protocol message: a header and an optional block.
type Frame struct {
	Header
	Payload []byte
}

// MarshalBinary encodes the header followed by the payload. The
// header's Length is taken as given; use EncodeRequest or
// EncodeResponse to build consistent frames.
func (f Frame) MarshalBinary() ([]byte, error) {
	data := make([]byte, HeaderSize+len(f.Payload))
	f.Header.put(data)
	copy(data[HeaderSize:], f.Payload)
	return data, nil
}

// NewRequest builds a request frame. DISK_WRITE requests must carry
// exactly one block; every other request must carry none.
func NewRequest(opcode Opcode, payload []byte) (Frame, error) {
	return newFrame(opcode, StatusOK, payload, Request)
}

// NewResponse builds a response frame. Successful DISK_READ responses
// must carry exactly one block; every other response must carry none.
func NewResponse(opcode Opcode, status Status, payload []byte) (Frame, error) {
	if status != StatusOK && len(payload) > 0 {
		return Frame{}, fmt.Errorf("%w: failed response with %d payload bytes", ErrPayloadLength, len(payload))
	}
	return newFrame(opcode, status, payload, Response)
}

func newFrame(opcode Opcode, status Status, payload []byte, d Direction) (Frame, error) {
	header := Header{
		Length: uint16(HeaderSize + len(payload)),
		Opcode: opcode,
		Status: status,
	}
	if len(payload) > geometry.BlockSize {
		return Frame{}, fmt.Errorf("%w: %d bytes exceeds one block", ErrPayloadLength, len(payload))
	}
	if _, err := header.payloadLength(d); err != nil {
		return Frame{}, err
	}
	if d == Request && opcode.Operation() == OpDiskWrite && len(payload) != geometry.BlockSize {
		return Frame{}, fmt.Errorf("%w: DISK_WRITE request needs %d payload bytes, have %d",
			ErrPayloadLength, geometry.BlockSize, len(payload))
	}
	if d == Response && opcode.Operation() == OpDiskRead && status == StatusOK && len(payload) != geometry.BlockSize {
		return Frame{}, fmt.Errorf("%w: DISK_READ response needs %d payload bytes, have %d",
			ErrPayloadLength, geometry.BlockSize, len(payload))
	}
	return Frame{Header: header, Payload: payload}, nil
}

// EncodeRequest returns the wire bytes of a request frame.
func EncodeRequest(opcode Opcode, payload []byte) ([]byte, error) {
	frame, err := NewRequest(opcode, payload)
	if err != nil {
		return nil, err
	}
	return frame.MarshalBinary()
}

// EncodeResponse returns the wire bytes of a response frame.
func EncodeResponse(opcode Opcode, status Status, payload []byte) ([]byte, error) {
	frame, err := NewResponse(opcode, status, payload)
	if err != nil {
		return nil, err
	}
	return frame.MarshalBinary()
}

// DecodeFrame decodes a complete frame from data, which must hold
// exactly the declared length. The payload aliases data.
func DecodeFrame(data []byte, d Direction) (Frame, error) {
	header, err := DecodeHeader(data)
	if err != nil {
		return Frame{}, err
	}
	payloadLength, err := header.payloadLength(d)
	if err != nil {
		return Frame{}, err
	}
	if len(data) != HeaderSize+payloadLength {
		return Frame{}, fmt.Errorf("%w: header declares %d bytes, have %d",
			ErrPayloadLength, header.Length, len(data))
	}
	frame := Frame{Header: header}
	if payloadLength > 0 {
		frame.Payload = data[HeaderSize:]
	}
	return frame, nil
}

// ReadFrame reads exactly one frame from r. A stream that ends or
// fails before the full frame arrives is an error; a partial frame is
// never returned. The payload is a fresh buffer owned by the caller.
func ReadFrame(r io.Reader, d Direction) (Frame, error) {
	var headerBytes [HeaderSize]byte
	if _, err := io.ReadFull(r, headerBytes[:]); err != nil {
		return Frame{}, fmt.Errorf("reading %s header: %w", d, err)
	}
	header, err := DecodeHeader(headerBytes[:])
	if err != nil {
		return Frame{}, err
	}
	payloadLength, err := header.payloadLength(d)
	if err != nil {
		return Frame{}, err
	}
	frame := Frame{Header: header}
	if payloadLength > 0 {
		frame.Payload = make([]byte, payloadLength)
		if _, err := io.ReadFull(r, frame.Payload); err != nil {
			return Frame{}, fmt.Errorf("reading %s payload: %w", d, err)
		}
	}
	return frame, nil
}

// WriteFrame writes one frame to w in a single Write call. A short
// write is an error.
func WriteFrame(w io.Writer, frame Frame) error {
	data, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	written, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("writing %s: %w", frame.Opcode, err)
	}
	if written != len(data) {
		return fmt.Errorf("writing %s: %w (%d of %d bytes)", frame.Opcode, io.ErrShortWrite, written, len(data))
	}
	return nil
}
