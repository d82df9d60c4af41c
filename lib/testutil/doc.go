// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for drumarray
// packages.
//
// [RequireReceive] and [RequireClosed] wrap the select with a
// wall-clock fallback, so a goroutine handoff that never happens fails
// the test instead of hanging it. Cache ordering runs on lib/clock's
// fake clock instead.
//
// [Block] and [Pattern] build deterministic test data that makes
// misplaced bytes easy to spot in a failure message.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
