// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/drumarray/lib/drumstore"
)

// openMedium opens the backing file at path, or an in-memory array
// when path is empty.
func openMedium(path string) (drumstore.Medium, error) {
	if path == "" {
		return drumstore.NewMemory(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return drumstore.OpenFile(path)
}

// loadSnapshot replaces the array's contents with the snapshot at path.
func loadSnapshot(path string, medium drumstore.Medium) (drumstore.Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		return drumstore.Summary{}, fmt.Errorf("opening snapshot: %w", err)
	}
	defer file.Close()
	summary, err := drumstore.Import(file, medium)
	if err != nil {
		return drumstore.Summary{}, fmt.Errorf("loading snapshot %s: %w", path, err)
	}
	return summary, nil
}

// saveSnapshot writes a snapshot to path. It writes a temporary file
// in the same directory and renames it, so path is never left holding
// a partial snapshot.
func saveSnapshot(path string, medium drumstore.Medium, compression drumstore.Compression) (drumstore.Summary, error) {
	temporary, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return drumstore.Summary{}, fmt.Errorf("creating snapshot: %w", err)
	}
	defer os.Remove(temporary.Name())

	summary, err := drumstore.Export(temporary, medium, compression)
	if err != nil {
		temporary.Close()
		return drumstore.Summary{}, fmt.Errorf("writing snapshot: %w", err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return drumstore.Summary{}, fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return drumstore.Summary{}, fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return drumstore.Summary{}, fmt.Errorf("installing snapshot: %w", err)
	}
	return summary, nil
}
