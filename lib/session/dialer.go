// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net"
	"time"
)

// Dialer opens the stream connection to the peer.
type Dialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// Compile-time interface check.
var _ Dialer = (*TCPDialer)(nil)

// TCPDialer dials the peer over TCP.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means only the
	// context deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}
