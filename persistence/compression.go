package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how the vector section is stored.
type Compression uint8

const (
	// CompressionNone stores raw float32 bytes.
	CompressionNone Compression = 0
	// CompressionLZ4 stores LZ4 blocks (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD stores ZSTD blocks (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", c)
	}
}

// ParseCompression maps a configuration string to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// DefaultBlockSize is the uncompressed size of one vector block.
const DefaultBlockSize = 256 * 1024

// Block format: [UncompressedSize uint32][CompressedSize uint32][Data...]
// CompressedSize == 0 means the block is stored uncompressed.
const blockHeaderSize = 8

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxBlockSize))
	return dec
}

// compressBlocks splits data into blocks of blockSize and compresses each.
// Blocks that do not shrink below 90% are stored raw.
func compressBlocks(data []byte, c Compression, blockSize int) ([]byte, error) {
	if c == CompressionNone {
		return data, nil
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	blockSize = min(blockSize, MaxBlockSize)

	out := make([]byte, 0, len(data)/2+blockHeaderSize)
	for start := 0; start < len(data); start += blockSize {
		end := min(start+blockSize, len(data))
		block, err := compressBlock(data[start:end], c)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}

func compressBlock(data []byte, c Compression) ([]byte, error) {
	var (
		compressed []byte
		err        error
	)
	switch c {
	case CompressionLZ4:
		compressed, err = compressBlockLZ4(data)
	case CompressionZSTD:
		compressed = compressBlockZSTD(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, c)
	}
	if err != nil {
		return nil, err
	}

	var hdr [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(data)))
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		// 0 = stored uncompressed
		return append(hdr[:], data...), nil
	}
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(compressed)))
	return append(hdr[:], compressed...), nil
}

func compressBlockLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return compressed[:n], nil
}

func compressBlockZSTD(data []byte) []byte {
	enc := getZstdEncoder()
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil)
}

// decompressBlocks reverses compressBlocks. want is the expected total
// uncompressed size.
func decompressBlocks(data []byte, c Compression, want int) ([]byte, error) {
	if c == CompressionNone {
		if len(data) != want {
			return nil, fmt.Errorf("%w: vector section has %d bytes, want %d", ErrTruncated, len(data), want)
		}
		return data, nil
	}

	// want comes from the header; allocation follows the blocks actually
	// present.
	out := make([]byte, 0, min(want, MaxBlockSize))
	for off := 0; off < len(data); {
		if off+blockHeaderSize > len(data) {
			return nil, fmt.Errorf("%w: block header at %d", ErrTruncated, off)
		}
		rawSize := int(binary.LittleEndian.Uint32(data[off:]))
		compSize := int(binary.LittleEndian.Uint32(data[off+4:]))
		off += blockHeaderSize

		if rawSize > MaxBlockSize || rawSize > want-len(out) {
			return nil, fmt.Errorf("%w: block of %d bytes exceeds remaining %d", ErrCorruptHeader, rawSize, want-len(out))
		}

		if compSize == 0 {
			if off+rawSize > len(data) {
				return nil, fmt.Errorf("%w: block extends beyond data", ErrTruncated)
			}
			out = append(out, data[off:off+rawSize]...)
			off += rawSize
			continue
		}

		if off+compSize > len(data) {
			return nil, fmt.Errorf("%w: compressed block extends beyond data", ErrTruncated)
		}
		block, err := decompressBlock(data[off:off+compSize], c, rawSize)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
		off += compSize
	}

	if len(out) != want {
		return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrTruncated, len(out), want)
	}
	return out, nil
}

func decompressBlock(data []byte, c Compression, rawSize int) ([]byte, error) {
	switch c {
	case CompressionLZ4:
		result := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(data, result)
		if err != nil {
			return nil, err
		}
		if n != rawSize {
			return nil, errors.New("persistence: lz4 decompressed size mismatch")
		}
		return result, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(data, make([]byte, 0, rawSize))
		if err != nil {
			return nil, err
		}
		if len(decoded) != rawSize {
			return nil, errors.New("persistence: zstd decompressed size mismatch")
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, c)
	}
}
