// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock instead of calling time.Now
// directly. In production, Real() provides the standard library
// behavior. In tests, Fake() provides a clock that moves only when
// Advance or Set is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	cache := blockcache.New(blockcache.Config{Lines: 3, Clock: c})
//	cache.Insert(0, 0, buffer)
//	c.Advance(time.Millisecond) // next insert is strictly newer
package clock
