// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drumserver

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bureau-foundation/drumarray/lib/drumstore"
	"github.com/bureau-foundation/drumarray/lib/geometry"
	"github.com/bureau-foundation/drumarray/lib/netutil"
	"github.com/bureau-foundation/drumarray/lib/testutil"
	"github.com/bureau-foundation/drumarray/lib/wire"
)

// startServer serves medium on a loopback port until the test ends.
func startServer(t *testing.T, config Config) string {
	t.Helper()
	server, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "server shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return listener.Addr().String()
}

func dial(t *testing.T, address string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", address)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func pack(t *testing.T, op wire.Operation, drum geometry.DrumID, block geometry.BlockID) wire.Opcode {
	t.Helper()
	opcode, err := wire.Pack(op, drum, block)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return opcode
}

// sendRaw writes a bare header and optional payload and reads the
// response.
func sendRaw(t *testing.T, conn net.Conn, length uint16, opcode wire.Opcode, payload []byte) wire.Frame {
	t.Helper()
	header, _ := wire.Header{Length: length, Opcode: opcode}.MarshalBinary()
	if _, err := conn.Write(append(header, payload...)); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	response, err := wire.ReadFrame(conn, wire.Response)
	if err != nil {
		t.Fatalf("reading response to %s: %v", opcode, err)
	}
	if response.Opcode != opcode {
		t.Fatalf("response opcode %s, want %s echoed", response.Opcode, opcode)
	}
	return response
}

// send issues one well-formed command and returns the response.
func send(t *testing.T, conn net.Conn, opcode wire.Opcode, payload []byte) wire.Frame {
	t.Helper()
	return sendRaw(t, conn, uint16(wire.HeaderSize+len(payload)), opcode, payload)
}

func expectStatus(t *testing.T, response wire.Frame, want wire.Status) {
	t.Helper()
	if response.Status != want {
		t.Fatalf("%s: status %s, want %s", response.Opcode, response.Status, want)
	}
}

func expectHangUp(t *testing.T, conn net.Conn) {
	t.Helper()
	var buffer [1]byte
	// Unread request bytes turn the server's close into a reset.
	if _, err := conn.Read(buffer[:]); !netutil.IsExpectedCloseError(err) {
		t.Fatalf("read after expected hang-up: err = %v, want EOF or reset", err)
	}
}

func TestCommandStatuses(t *testing.T) {
	medium := drumstore.NewMemory()
	address := startServer(t, Config{Medium: medium})
	conn := dial(t, address)

	expectStatus(t, send(t, conn, pack(t, wire.OpDiskRead, 0, 0), nil), wire.StatusNotMounted)
	expectStatus(t, send(t, conn, pack(t, wire.OpSeekDrum, 1, 0), nil), wire.StatusNotMounted)
	expectStatus(t, send(t, conn, pack(t, wire.OpUnmount, 0, 0), nil), wire.StatusNotMounted)

	expectStatus(t, send(t, conn, pack(t, wire.OpMount, 0, 0), nil), wire.StatusOK)
	expectStatus(t, send(t, conn, pack(t, wire.OpMount, 0, 0), nil), wire.StatusAlreadyMounted)

	// The head starts at [0,0].
	response := send(t, conn, pack(t, wire.OpDiskRead, 0, 0), nil)
	expectStatus(t, response, wire.StatusOK)
	if len(response.Payload) != geometry.BlockSize {
		t.Fatalf("DISK_READ payload is %d bytes", len(response.Payload))
	}

	expectStatus(t, send(t, conn, pack(t, wire.OpSeekDrum, 3, 0), nil), wire.StatusOK)
	expectStatus(t, send(t, conn, pack(t, wire.OpSeekBlock, 4, 9), nil), wire.StatusBadSeek)
	expectStatus(t, send(t, conn, pack(t, wire.OpSeekBlock, 3, 9), nil), wire.StatusOK)
	expectStatus(t, send(t, conn, pack(t, wire.OpDiskRead, 3, 8), nil), wire.StatusBadSeek)
	expectStatus(t, send(t, conn, pack(t, wire.OpDiskWrite, 3, 10), testutil.Block(1)), wire.StatusBadSeek)

	block := testutil.Pattern(geometry.BlockSize, 42)
	expectStatus(t, send(t, conn, pack(t, wire.OpDiskWrite, 3, 9), block), wire.StatusOK)
	response = send(t, conn, pack(t, wire.OpDiskRead, 3, 9), nil)
	expectStatus(t, response, wire.StatusOK)
	if !bytes.Equal(response.Payload, block) {
		t.Fatal("DISK_READ does not return the written block")
	}

	stored := make([]byte, geometry.BlockSize)
	if err := medium.ReadBlock(3, 9, stored); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(stored, block) {
		t.Fatal("medium does not hold the written block")
	}

	// SEEK_DRUM resets the block.
	expectStatus(t, send(t, conn, pack(t, wire.OpSeekDrum, 3, 0), nil), wire.StatusOK)
	expectStatus(t, send(t, conn, pack(t, wire.OpDiskRead, 3, 9), nil), wire.StatusBadSeek)
	expectStatus(t, send(t, conn, pack(t, wire.OpDiskRead, 3, 0), nil), wire.StatusOK)

	// DISK_WRITE with no block.
	expectStatus(t, sendRaw(t, conn, wire.HeaderSize, pack(t, wire.OpDiskWrite, 3, 0), nil), wire.StatusBadLength)

	// Reserved bits and unknown operations are echoed back refused.
	reserved := pack(t, wire.OpSeekBlock, 1, 7) | 1<<12
	expectStatus(t, send(t, conn, reserved, nil), wire.StatusBadOpcode)
	expectStatus(t, send(t, conn, wire.Opcode(7<<26), nil), wire.StatusBadOpcode)

	expectStatus(t, send(t, conn, pack(t, wire.OpUnmount, 0, 0), nil), wire.StatusOK)
	expectHangUp(t, conn)
}

func TestMalformedFrameClosesConnection(t *testing.T) {
	address := startServer(t, Config{Medium: drumstore.NewMemory()})

	tests := []struct {
		name  string
		frame []byte
	}{
		{
			name:  "length below header",
			frame: []byte{0x00, 0x04, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "payload on SEEK_DRUM",
			frame: func() []byte {
				opcode, _ := wire.Pack(wire.OpSeekDrum, 0, 0)
				header, _ := wire.Header{Length: wire.FrameSize, Opcode: opcode}.MarshalBinary()
				return append(header, testutil.Block(0)...)
			}(),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			conn := dial(t, address)
			if _, err := conn.Write(test.frame); err != nil {
				t.Fatalf("Write: %v", err)
			}
			expectHangUp(t, conn)
		})
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	address := startServer(t, Config{Medium: drumstore.NewMemory()})
	first := dial(t, address)
	second := dial(t, address)

	expectStatus(t, send(t, first, pack(t, wire.OpMount, 0, 0), nil), wire.StatusOK)
	expectStatus(t, send(t, second, pack(t, wire.OpSeekDrum, 0, 0), nil), wire.StatusNotMounted)
	expectStatus(t, send(t, second, pack(t, wire.OpMount, 0, 0), nil), wire.StatusOK)

	expectStatus(t, send(t, first, pack(t, wire.OpSeekDrum, 5, 0), nil), wire.StatusOK)
	expectStatus(t, send(t, second, pack(t, wire.OpSeekDrum, 6, 0), nil), wire.StatusOK)
	expectStatus(t, send(t, first, pack(t, wire.OpDiskRead, 5, 0), nil), wire.StatusOK)
	expectStatus(t, send(t, second, pack(t, wire.OpDiskRead, 6, 0), nil), wire.StatusOK)
}

func TestIdleTimeout(t *testing.T) {
	address := startServer(t, Config{
		Medium:      drumstore.NewMemory(),
		IdleTimeout: 50 * time.Millisecond,
	})
	conn := dial(t, address)
	expectStatus(t, send(t, conn, pack(t, wire.OpMount, 0, 0), nil), wire.StatusOK)
	expectHangUp(t, conn)
}

func TestServeStopsWithOpenConnections(t *testing.T) {
	server, err := New(Config{Medium: drumstore.NewMemory()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	conn := dial(t, listener.Addr().String())
	expectStatus(t, send(t, conn, pack(t, wire.OpMount, 0, 0), nil), wire.StatusOK)

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Serve returns after cancel"); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	expectHangUp(t, conn)
}

func TestNewRequiresMedium(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New accepted a config without a medium")
	}
}

// failingMedium fails every access.
type failingMedium struct{ drumstore.Medium }

func (failingMedium) ReadBlock(geometry.DrumID, geometry.BlockID, []byte) error {
	return errors.New("head crash")
}

func (failingMedium) WriteBlock(geometry.DrumID, geometry.BlockID, []byte) error {
	return errors.New("head crash")
}

func (failingMedium) Sync() error { return errors.New("head crash") }

func TestMediumErrors(t *testing.T) {
	address := startServer(t, Config{Medium: failingMedium{}})
	conn := dial(t, address)

	expectStatus(t, send(t, conn, pack(t, wire.OpMount, 0, 0), nil), wire.StatusOK)
	expectStatus(t, send(t, conn, pack(t, wire.OpDiskRead, 0, 0), nil), wire.StatusMediumError)
	expectStatus(t, send(t, conn, pack(t, wire.OpDiskWrite, 0, 0), testutil.Block(1)), wire.StatusMediumError)
	expectStatus(t, send(t, conn, pack(t, wire.OpUnmount, 0, 0), nil), wire.StatusMediumError)
	expectHangUp(t, conn)
}
