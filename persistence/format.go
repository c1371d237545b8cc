package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// Version is the current snapshot format version.
	Version uint16 = 1

	// HeaderSize is the fixed size of FileHeader on disk.
	HeaderSize = 64

	// checksumOffset is where Checksum starts in the encoded header.
	checksumOffset = HeaderSize - 4

	// MaxBlockSize bounds the uncompressed size of one vector block.
	MaxBlockSize = 64 << 20
)

// Magic identifies snapshot files (ASCII "PAW1").
var Magic = [4]byte{'P', 'A', 'W', '1'}

// Header flags.
const (
	FlagNormalized uint8 = 1 << iota
)

// FileHeader is the 64-byte header at the start of every snapshot.
type FileHeader struct {
	Magic         [4]byte
	Version       uint16
	Metric        uint8
	Flags         uint8
	Compression   uint8
	Codec         uint8
	Backend       uint8
	_             uint8
	Dimension     uint32
	VectorCount   uint64
	IdentityCount uint64
	VectorOffset  uint64
	VectorLength  uint64 // bytes on disk, after compression
	MetaOffset    uint64
	MetaLength    uint32
	Checksum      uint32 // CRC32 of the header fields above and both sections
}

// MarshalBinary encodes the header.
func (h *FileHeader) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	if buf.Len() != HeaderSize {
		return nil, fmt.Errorf("persistence: header encodes to %d bytes, want %d", buf.Len(), HeaderSize)
	}
	return buf.Bytes(), nil
}

// seal sets Checksum over the header fields and sections and returns the
// encoded header.
func (h *FileHeader) seal(sections ...[]byte) ([]byte, error) {
	h.Checksum = 0
	b, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	h.Checksum = checksumSections(append([][]byte{b[:checksumOffset]}, sections...)...)
	binary.LittleEndian.PutUint32(b[checksumOffset:], h.Checksum)
	return b, nil
}

// sections validates the section layout against a file of size bytes and
// returns the end of the metadata section.
func (h *FileHeader) sections(size uint64) (uint64, error) {
	if size < HeaderSize {
		return 0, fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, size, HeaderSize)
	}
	if h.VectorOffset != HeaderSize {
		return 0, fmt.Errorf("%w: vector offset %d", ErrCorruptHeader, h.VectorOffset)
	}
	if h.VectorLength > size-HeaderSize {
		return 0, fmt.Errorf("%w: vector section needs %d bytes, have %d", ErrTruncated, h.VectorLength, size-HeaderSize)
	}
	if h.MetaOffset != HeaderSize+h.VectorLength {
		return 0, fmt.Errorf("%w: metadata offset %d", ErrCorruptHeader, h.MetaOffset)
	}
	if uint64(h.MetaLength) > size-h.MetaOffset {
		return 0, fmt.Errorf("%w: metadata section needs %d bytes, have %d", ErrTruncated, h.MetaLength, size-h.MetaOffset)
	}
	return h.MetaOffset + uint64(h.MetaLength), nil
}

// UnmarshalBinary decodes and validates the header.
func (h *FileHeader) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, len(data), HeaderSize)
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, h); err != nil {
		return err
	}
	if h.Magic != Magic {
		return fmt.Errorf("%w: got %q", ErrInvalidMagic, h.Magic[:])
	}
	if h.Version != Version {
		return fmt.Errorf("%w: got %d", ErrInvalidVersion, h.Version)
	}
	return nil
}
