// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drumstore

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/drumarray/lib/codec"
	"github.com/bureau-foundation/drumarray/lib/geometry"
)

// snapshotVersion is the manifest format version written by Export.
const snapshotVersion = 1

// maxSnapshotSize bounds how much Import reads. Export never stores a
// drum image larger than DrumSize, so a valid snapshot is at most the
// raw array plus manifest framing.
const maxSnapshotSize = geometry.Capacity + 64<<10

// manifest is the CBOR document a snapshot consists of.
type manifest struct {
	Version       int         `cbor:"version"`
	BlockSize     int         `cbor:"block_size"`
	BlocksPerDrum int         `cbor:"blocks_per_drum"`
	DrumCount     int         `cbor:"drum_count"`
	Drums         []drumImage `cbor:"drums"`
}

// drumImage is one drum's contents.
type drumImage struct {
	Index       int         `cbor:"index"`
	Compression Compression `cbor:"compression"`
	// Size is the uncompressed length.
	Size   int    `cbor:"size"`
	Digest Digest `cbor:"digest"`
	Data   []byte `cbor:"data"`
}

// Summary describes a snapshot that was written or read.
type Summary struct {
	Drums int
	// RawBytes is the uncompressed size of all drum images.
	RawBytes int64
	// StoredBytes is the size of the images as stored.
	StoredBytes int64
	// Compressed counts drums that were stored compressed.
	Compressed int
}

// Export writes a snapshot of every drum on medium to w. Drums that
// compression cannot shrink are stored raw.
func Export(w io.Writer, medium Medium, compression Compression) (Summary, error) {
	snapshot := manifest{
		Version:       snapshotVersion,
		BlockSize:     geometry.BlockSize,
		BlocksPerDrum: geometry.BlocksPerDrum,
		DrumCount:     geometry.DrumCount,
		Drums:         make([]drumImage, 0, geometry.DrumCount),
	}
	var summary Summary
	for drum := range geometry.DrumID(geometry.DrumCount) {
		image, err := ReadDrum(medium, drum)
		if err != nil {
			return Summary{}, err
		}
		stored, used, err := compress(image, compression)
		if err != nil {
			return Summary{}, fmt.Errorf("compressing drum %d: %w", drum, err)
		}
		snapshot.Drums = append(snapshot.Drums, drumImage{
			Index:       int(drum),
			Compression: used,
			Size:        len(image),
			Digest:      HashDrum(image),
			Data:        stored,
		})
		summary.Drums++
		summary.RawBytes += int64(len(image))
		summary.StoredBytes += int64(len(stored))
		if used != CompressionNone {
			summary.Compressed++
		}
	}
	if err := codec.NewEncoder(w).Encode(snapshot); err != nil {
		return Summary{}, fmt.Errorf("writing snapshot: %w", err)
	}
	return summary, nil
}

// Import reads a snapshot from r and writes it to medium. The whole
// snapshot is decoded and verified before the first block is written,
// so a corrupt snapshot leaves medium untouched.
func Import(r io.Reader, medium Medium) (Summary, error) {
	var snapshot manifest
	if err := codec.NewDecoder(io.LimitReader(r, maxSnapshotSize)).Decode(&snapshot); err != nil {
		return Summary{}, fmt.Errorf("reading snapshot: %w", err)
	}
	if snapshot.Version != snapshotVersion {
		return Summary{}, fmt.Errorf("snapshot version %d not supported (want %d)", snapshot.Version, snapshotVersion)
	}
	if snapshot.BlockSize != geometry.BlockSize ||
		snapshot.BlocksPerDrum != geometry.BlocksPerDrum ||
		snapshot.DrumCount != geometry.DrumCount {
		return Summary{}, fmt.Errorf("snapshot geometry %d drums x %d blocks x %d bytes does not match array (%d x %d x %d)",
			snapshot.DrumCount, snapshot.BlocksPerDrum, snapshot.BlockSize,
			geometry.DrumCount, geometry.BlocksPerDrum, geometry.BlockSize)
	}
	if len(snapshot.Drums) != geometry.DrumCount {
		return Summary{}, fmt.Errorf("snapshot has %d drum images, want %d", len(snapshot.Drums), geometry.DrumCount)
	}

	images := make([][]byte, geometry.DrumCount)
	var summary Summary
	for _, entry := range snapshot.Drums {
		if entry.Index < 0 || entry.Index >= geometry.DrumCount {
			return Summary{}, fmt.Errorf("snapshot drum index %d out of range", entry.Index)
		}
		if images[entry.Index] != nil {
			return Summary{}, fmt.Errorf("snapshot has drum %d twice", entry.Index)
		}
		if entry.Size != geometry.DrumSize {
			return Summary{}, fmt.Errorf("snapshot drum %d is %d bytes, want %d", entry.Index, entry.Size, geometry.DrumSize)
		}
		image, err := decompress(entry.Data, entry.Compression, entry.Size)
		if err != nil {
			return Summary{}, fmt.Errorf("decompressing drum %d: %w", entry.Index, err)
		}
		if digest := HashDrum(image); digest != entry.Digest {
			return Summary{}, fmt.Errorf("drum %d digest mismatch: snapshot says %s, image hashes to %s",
				entry.Index, entry.Digest, digest)
		}
		images[entry.Index] = image
		summary.Drums++
		summary.RawBytes += int64(len(image))
		summary.StoredBytes += int64(len(entry.Data))
		if entry.Compression != CompressionNone {
			summary.Compressed++
		}
	}

	for drum, image := range images {
		if err := WriteDrum(medium, geometry.DrumID(drum), image); err != nil {
			return Summary{}, err
		}
	}
	if err := medium.Sync(); err != nil {
		return Summary{}, fmt.Errorf("syncing imported snapshot: %w", err)
	}
	return summary, nil
}

// ReadDrum returns a copy of every block on drum, in order.
func ReadDrum(medium Medium, drum geometry.DrumID) ([]byte, error) {
	image := make([]byte, geometry.DrumSize)
	for block := range geometry.BlockID(geometry.BlocksPerDrum) {
		start := int(block) * geometry.BlockSize
		if err := medium.ReadBlock(drum, block, image[start:start+geometry.BlockSize]); err != nil {
			return nil, fmt.Errorf("reading drum %d: %w", drum, err)
		}
	}
	return image, nil
}

// WriteDrum stores a full drum image.
func WriteDrum(medium Medium, drum geometry.DrumID, image []byte) error {
	if len(image) != geometry.DrumSize {
		return fmt.Errorf("drum image is %d bytes, want %d", len(image), geometry.DrumSize)
	}
	for block := range geometry.BlockID(geometry.BlocksPerDrum) {
		start := int(block) * geometry.BlockSize
		if err := medium.WriteBlock(drum, block, image[start:start+geometry.BlockSize]); err != nil {
			return fmt.Errorf("writing drum %d: %w", drum, err)
		}
	}
	return nil
}
