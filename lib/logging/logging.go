// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParseLevel maps debug, info, warn, or error to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// New returns a logger writing to stderr at the given level and format
// (auto, text, or json).
func New(level, format string) (*slog.Logger, error) {
	return NewWriter(os.Stderr, level, format, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewWriter is New for an arbitrary writer. interactive decides the
// handler when format is "auto".
func NewWriter(w io.Writer, level, format string, interactive bool) (*slog.Logger, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: parsed}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "auto":
		if interactive {
			handler = slog.NewTextHandler(w, options)
		} else {
			handler = slog.NewJSONHandler(w, options)
		}
	case "text":
		handler = slog.NewTextHandler(w, options)
	case "json":
		handler = slog.NewJSONHandler(w, options)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(handler), nil
}

