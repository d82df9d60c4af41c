// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the wall clock for testability. Production code
// injects Real(); tests inject Fake() and move time explicitly.
//
// Components that record timestamps (the block cache stamps every
// line on insert and on hit) take a Clock in their configuration
// instead of calling time.Now directly, so that recency ordering can
// be asserted without sleeping.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}
