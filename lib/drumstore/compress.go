// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package drumstore

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/drumarray/lib/geometry"
)

// Compression identifies how a drum image is stored in a snapshot.
// The values are written into snapshot files; do not renumber.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses the names produced by String.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown snapshot compression %q (want none, lz4, or zstd)", name)
	}
}

// errIncompressible means the compressed form would not be smaller.
var errIncompressible = errors.New("data is incompressible")

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("drumstore: zstd encoder initialization failed: " + err.Error())
	}
	// A valid image never decodes past one drum.
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(geometry.DrumSize))
	if err != nil {
		panic("drumstore: zstd decoder initialization failed: " + err.Error())
	}
}

// compress encodes data with the given algorithm, falling back to
// CompressionNone when that does not shrink it. The returned slice
// aliases data when stored raw.
func compress(data []byte, compression Compression) ([]byte, Compression, error) {
	var compressed []byte
	var err error
	switch compression {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		compressed, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression %s", compression)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, compression, nil
}

// decompress reverses compress. The result must be exactly size
// bytes.
func decompress(compressed []byte, compression Compression, size int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		if len(compressed) != size {
			return nil, fmt.Errorf("raw image is %d bytes, want %d", len(compressed), size)
		}
		return compressed, nil
	case CompressionLZ4:
		return decompressLZ4(compressed, size)
	case CompressionZstd:
		return decompressZstd(compressed, size)
	default:
		return nil, fmt.Errorf("unsupported compression %s", compression)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock reports 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, want %d", read, size)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, want %d", len(result), size)
	}
	return result, nil
}
