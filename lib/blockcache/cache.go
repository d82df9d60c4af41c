// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockcache

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/drumarray/lib/clock"
	"github.com/bureau-foundation/drumarray/lib/geometry"
)

// Config configures a block cache.
type Config struct {
	// Lines is the number of blocks the cache can hold. Zero is
	// allowed: every lookup misses and every insert is dropped.
	Lines int

	// Clock stamps lines on insert and on hit. If nil, defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives one debug record per lookup, insert, and
	// eviction. If nil, only errors are logged, to stderr.
	Logger *slog.Logger
}

// Stats counts cache events since the cache was created.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Inserts    uint64
	Duplicates uint64
	Evictions  uint64
}

// Lookups returns the number of lookup attempts.
func (s Stats) Lookups() uint64 { return s.Hits + s.Misses }

// line is one cache slot. A nil data slice marks the slot empty.
type line struct {
	drum  geometry.DrumID
	block geometry.BlockID
	data  []byte
	used  time.Time
}

func (l *line) empty() bool { return l.data == nil }

// Cache is a fixed-capacity least-recently-used block cache.
type Cache struct {
	lines  []line
	clock  clock.Clock
	logger *slog.Logger
	stats  Stats
}

// New creates an empty cache with config.Lines lines.
func New(config Config) (*Cache, error) {
	if config.Lines < 0 {
		return nil, fmt.Errorf("cache line count must not be negative, got %d", config.Lines)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}
	config.Logger.Info("block cache initialized", "lines", config.Lines)
	return &Cache{
		lines:  make([]line, config.Lines),
		clock:  config.Clock,
		logger: config.Logger,
	}, nil
}

// Lookup returns the cached buffer for (drum, block) and refreshes its
// last-use stamp. The second result is false on a miss.
func (c *Cache) Lookup(drum geometry.DrumID, block geometry.BlockID) ([]byte, bool) {
	index := c.find(drum, block)
	if index < 0 {
		c.stats.Misses++
		c.logger.Debug("cache miss", "drum", drum, "block", block)
		return nil, false
	}
	c.lines[index].used = c.clock.Now()
	c.stats.Hits++
	c.logger.Debug("cache hit", "drum", drum, "block", block, "line", index)
	return c.lines[index].data, true
}

// Contains reports whether (drum, block) is cached without counting a
// lookup or touching the line's stamp.
func (c *Cache) Contains(drum geometry.DrumID, block geometry.BlockID) bool {
	return c.find(drum, block) >= 0
}

// Insert stores data as the cached copy of (drum, block) and takes
// ownership of it. If the block is already cached the call does
// nothing: the existing line, its buffer, and its stamp are kept and
// data is discarded. Insert is not an update path.
//
// data must be exactly one block long.
func (c *Cache) Insert(drum geometry.DrumID, block geometry.BlockID, data []byte) error {
	if len(data) != geometry.BlockSize {
		return fmt.Errorf("caching [%d,%d]: buffer is %d bytes, want %d", drum, block, len(data), geometry.BlockSize)
	}
	if c.find(drum, block) >= 0 {
		c.stats.Duplicates++
		c.logger.Debug("ignoring already cached line", "drum", drum, "block", block)
		return nil
	}
	if len(c.lines) == 0 {
		return nil
	}

	index := c.victim()
	slot := &c.lines[index]
	if !slot.empty() {
		c.stats.Evictions++
		c.logger.Debug("evicting cache line",
			"drum", slot.drum,
			"block", slot.block,
			"line", index,
		)
	}

	*slot = line{
		drum:  drum,
		block: block,
		data:  data,
		used:  c.clock.Now(),
	}
	c.stats.Inserts++
	c.logger.Debug("caching line", "drum", drum, "block", block, "line", index)
	return nil
}

// Clear drops every cached buffer and marks all lines empty.
func (c *Cache) Clear() {
	for index := range c.lines {
		c.lines[index] = line{}
	}
	c.logger.Info("block cache cleared", "lines", len(c.lines))
}

// Len returns the number of populated lines.
func (c *Cache) Len() int {
	populated := 0
	for index := range c.lines {
		if !c.lines[index].empty() {
			populated++
		}
	}
	return populated
}

// Capacity returns the number of lines.
func (c *Cache) Capacity() int {
	return len(c.lines)
}

// Stats returns the event counters.
func (c *Cache) Stats() Stats {
	return c.stats
}

// find returns the index of the line holding (drum, block), or -1.
func (c *Cache) find(drum geometry.DrumID, block geometry.BlockID) int {
	for index := range c.lines {
		l := &c.lines[index]
		if !l.empty() && l.drum == drum && l.block == block {
			return index
		}
	}
	return -1
}

// victim picks the line for a new entry: the first empty line, or else
// the line with the oldest stamp, lowest index on ties. Requires at
// least one line.
func (c *Cache) victim() int {
	for index := range c.lines {
		if c.lines[index].empty() {
			return index
		}
	}
	oldest := 0
	for index := 1; index < len(c.lines); index++ {
		if c.lines[index].used.Before(c.lines[oldest].used) {
			oldest = index
		}
	}
	return oldest
}
