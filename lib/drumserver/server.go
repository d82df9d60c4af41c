// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drumserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/drumarray/lib/drumstore"
	"github.com/bureau-foundation/drumarray/lib/netutil"
	"github.com/bureau-foundation/drumarray/lib/wire"
)

// writeTimeout bounds writing one response.
const writeTimeout = 10 * time.Second

// Config configures a Server.
type Config struct {
	// Medium holds the array. Required.
	Medium drumstore.Medium

	// IdleTimeout closes a connection that sends no request for this
	// long. Zero disables it.
	IdleTimeout time.Duration

	// Logger receives connection lifecycle records and, at debug
	// level, one record per command. If nil, only errors are logged,
	// to stderr.
	Logger *slog.Logger
}

// Server serves the protocol on any number of listeners.
type Server struct {
	medium      drumstore.Medium
	idleTimeout time.Duration
	logger      *slog.Logger

	mu          sync.Mutex
	connections map[net.Conn]struct{}

	// activeConnections tracks connection handlers so Serve can wait
	// for them before returning.
	activeConnections sync.WaitGroup
}

// New creates a server for config.Medium.
func New(config Config) (*Server, error) {
	if config.Medium == nil {
		return nil, errors.New("drumserver: Medium is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}
	return &Server{
		medium:      config.Medium,
		idleTimeout: config.IdleTimeout,
		logger:      config.Logger,
		connections: make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections on listener until ctx is cancelled or the
// listener is closed. On return the listener and every connection it
// accepted are closed and their handlers have finished.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	// Unblock Accept and every connection read when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		listener.Close()
		s.closeConnections()
	})
	defer stop()

	s.logger.Info("drum server listening", "address", listener.Addr().String())

	var acceptErr error
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				acceptErr = fmt.Errorf("accepting connections: %w", err)
			}
			break
		}
		if !s.track(conn) {
			conn.Close()
			break
		}
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}

	s.closeConnections()
	s.activeConnections.Wait()
	s.logger.Info("drum server stopped", "address", listener.Addr().String())
	return acceptErr
}

// track records conn as open. It returns false once the server is
// shutting down.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connections == nil {
		return false
	}
	s.connections[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, conn)
}

// closeConnections closes every open connection and refuses new
// ones.
func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connections = nil
}

// handleConnection runs one session until the client hangs up, sends
// a malformed frame, or unmounts.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	logger := s.logger.With("remote", remote)
	logger.Info("connection opened")

	state := &session{medium: s.medium, logger: logger}
	for {
		if s.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		request, err := wire.ReadFrame(conn, wire.Request)
		if err != nil {
			s.logClose(logger, "reading request", err)
			return
		}

		response, hangUp := state.execute(request)
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := wire.WriteFrame(conn, response); err != nil {
			s.logClose(logger, "writing response", err)
			return
		}
		if hangUp {
			logger.Info("connection closed after unmount")
			return
		}
	}
}

// logClose logs the end of a connection. Ordinary hang-ups are not
// errors.
func (s *Server) logClose(logger *slog.Logger, phase string, err error) {
	if netutil.IsExpectedCloseError(err) {
		logger.Info("connection closed")
		return
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		logger.Info("connection idle, closing")
		return
	}
	logger.Warn("connection failed", "phase", phase, "error", err)
}
