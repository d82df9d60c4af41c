// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog loggers used by the drumarray
// binaries. Output goes to stderr. In "auto" format a terminal gets
// slog.TextHandler and anything else (pipes, service managers, test
// harnesses) gets slog.JSONHandler.
package logging
