// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"os"
	"time"

	"github.com/bureau-foundation/drumarray/lib/wire"
)

// DefaultAddress is the peer address used when none is configured.
const DefaultAddress = "127.0.0.1:19876"

// Config configures a Client.
type Config struct {
	// Address is the peer's host:port. Defaults to DefaultAddress.
	Address string

	// Dialer opens connections. Defaults to a TCPDialer with a
	// five-second timeout.
	Dialer Dialer

	// Logger receives one debug record per round trip. If nil, only
	// errors are logged, to stderr.
	Logger *slog.Logger
}

// Client executes protocol commands against one peer.
type Client struct {
	address string
	dialer  Dialer
	logger  *slog.Logger

	conn     net.Conn
	counters map[wire.Operation]uint64
}

// New creates a disconnected client.
func New(config Config) *Client {
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.Dialer == nil {
		config.Dialer = &TCPDialer{Timeout: 5 * time.Second}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}
	return &Client{
		address:  config.Address,
		dialer:   config.Dialer,
		logger:   config.Logger,
		counters: make(map[wire.Operation]uint64),
	}
}

// Address returns the configured peer address.
func (c *Client) Address() string { return c.address }

// Connected reports whether a connection is open.
func (c *Client) Connected() bool { return c.conn != nil }

// Connect dials the peer. It fails with ErrConnected if a connection
// is already open and with a *TransportError if the dial fails.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return ErrConnected
	}
	conn, err := c.dialer.DialContext(ctx, c.address)
	if err != nil {
		mount, _ := wire.Pack(wire.OpMount, 0, 0)
		return &TransportError{
			Address: c.address,
			Opcode:  mount,
			Phase:   PhaseDial,
			Err:     err,
		}
	}
	c.conn = conn
	c.logger.Info("connected to peer", "address", c.address)
	return nil
}

// Disconnect closes the connection if one is open.
func (c *Client) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.logger.Info("disconnected from peer", "address", c.address)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing connection to %s: %w", c.address, err)
	}
	return nil
}

// Execute sends one command and waits for its response. payload must
// be one block for DISK_WRITE and empty otherwise. On success it
// returns the block for DISK_READ and nil for every other command.
//
// MOUNT connects first; a MOUNT that fails for any reason leaves the
// client disconnected. A successful UNMOUNT disconnects afterwards.
//
// If ctx has a deadline it bounds the whole round trip; cancelling ctx
// interrupts a blocked read or write.
func (c *Client) Execute(ctx context.Context, opcode wire.Opcode, payload []byte) ([]byte, error) {
	op := opcode.Operation()
	if op != wire.OpMount && c.conn == nil {
		return nil, ErrNotConnected
	}
	request, err := wire.NewRequest(opcode, payload)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", opcode, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if op == wire.OpMount {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	response, err := c.roundTrip(ctx, request)
	if err == nil {
		err = check(request, response)
	}
	if err != nil {
		if op == wire.OpMount {
			c.Disconnect()
		}
		return nil, err
	}

	if op == wire.OpUnmount {
		if err := c.Disconnect(); err != nil {
			return nil, err
		}
	}
	return response.Payload, nil
}

// Counters returns the number of completed round trips per operation,
// whatever their status.
func (c *Client) Counters() map[wire.Operation]uint64 {
	return maps.Clone(c.counters)
}

// ResetCounters zeroes every round-trip counter.
func (c *Client) ResetCounters() {
	clear(c.counters)
}

// roundTrip writes request and reads one response frame. Stream
// failures close the connection and return a *TransportError. A
// response that fails to decode returns a *ProtocolError and also
// closes the connection, since the stream position is lost.
func (c *Client) roundTrip(ctx context.Context, request wire.Frame) (wire.Frame, error) {
	conn := c.conn
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	expired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(expired)
		conn.SetDeadline(time.Unix(1, 0))
	})
	// The connection outlives ctx. If the cancel callback has started,
	// let it finish before clearing the deadline it set.
	defer func() {
		if !stop() {
			<-expired
		}
		conn.SetDeadline(time.Time{})
	}()

	opcode := request.Opcode
	if err := wire.WriteFrame(conn, request); err != nil {
		return wire.Frame{}, c.fail(ctx, opcode, PhaseWrite, err)
	}
	response, err := wire.ReadFrame(conn, wire.Response)
	if err != nil {
		if wire.IsFormatError(err) {
			c.Disconnect()
			return wire.Frame{}, &ProtocolError{Request: opcode, Err: err}
		}
		return wire.Frame{}, c.fail(ctx, opcode, PhaseRead, err)
	}

	c.counters[opcode.Operation()]++
	c.logger.Debug("round trip",
		"operation", opcode.Operation(),
		"drum", opcode.Drum(),
		"block", opcode.Block(),
		"status", response.Status,
	)
	return response, nil
}

// fail closes the connection and wraps err as a transport failure.
// When ctx is done the context error is reported alongside the
// deadline error it caused.
func (c *Client) fail(ctx context.Context, opcode wire.Opcode, phase Phase, err error) error {
	c.Disconnect()
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	c.logger.Warn("peer connection failed",
		"operation", opcode.Operation(),
		"phase", phase,
		"error", err,
	)
	return &TransportError{
		Address: c.address,
		Opcode:  opcode,
		Phase:   phase,
		Err:     err,
	}
}

// check validates a response against its request.
func check(request, response wire.Frame) error {
	if response.Opcode != request.Opcode || response.Status != wire.StatusOK {
		return &ProtocolError{
			Request:  request.Opcode,
			Response: response.Opcode,
			Status:   response.Status,
		}
	}
	if request.Opcode.Operation() == wire.OpDiskRead && len(response.Payload) == 0 {
		return &ProtocolError{
			Request:  request.Opcode,
			Response: response.Opcode,
			Err:      fmt.Errorf("%w: DISK_READ response without a block", wire.ErrPayloadLength),
		}
	}
	return nil
}
