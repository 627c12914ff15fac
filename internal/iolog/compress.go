// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package iolog

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the algorithm used to compress one I/O log
// stream segment. Narrowed from the teacher's four-tag scheme to the
// two codecs a terminal I/O replay stream actually benefits from:
// text-like TTY/stdio output compresses well under zstd, and already
// dense binary bursts (rare on these streams) fall back to LZ4's
// faster, lower-ratio pass. There is no tensor-shaped data here, so
// the teacher's byte-grouping transform has no role.
type CompressionTag uint8

const (
	CompressionNone CompressionTag = 0
	CompressionLZ4  CompressionTag = 1
	CompressionZstd CompressionTag = 2
)

func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("iolog: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("iolog: zstd decoder initialization failed: " + err.Error())
	}
}

var errIncompressible = fmt.Errorf("iolog: segment is incompressible")

// CompressSegment compresses one I/O buffer chunk. Text-like streams
// (tty/stdio) use zstd; the caller selects the tag once per stream via
// SelectCompression on the first chunk and reuses it for the stream's
// lifetime, matching the original's per-stream (not per-chunk) file
// format.
func CompressSegment(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		dst := make([]byte, bound)
		written, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("iolog: lz4 compress: %w", err)
		}
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return dst[:written], nil
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil
	default:
		return nil, fmt.Errorf("iolog: unsupported compression tag: %d", tag)
	}
}

// DecompressSegment reverses CompressSegment.
func DecompressSegment(compressed []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("iolog: uncompressed segment size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil
	case CompressionLZ4:
		dst := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(compressed, dst)
		if err != nil {
			return nil, fmt.Errorf("iolog: lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("iolog: lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return dst, nil
	case CompressionZstd:
		dst, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("iolog: zstd decompress: %w", err)
		}
		if len(dst) != uncompressedSize {
			return nil, fmt.Errorf("iolog: zstd decompress: got %d bytes, expected %d", len(dst), uncompressedSize)
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("iolog: unsupported compression tag: %d", tag)
	}
}

// SelectCompression picks zstd for text-like TTY/stdio streams and LZ4
// otherwise, mirroring the teacher's content-type short-circuit
// without the probe pass — a session's stream kind is known up front
// from its StreamID, so there is nothing to probe.
func SelectCompression(textLike bool) CompressionTag {
	if textLike {
		return CompressionZstd
	}
	return CompressionLZ4
}
