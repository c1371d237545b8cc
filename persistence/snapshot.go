package persistence

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/hupe1980/pawprint/codec"
	"github.com/hupe1980/pawprint/distance"
	"github.com/hupe1980/pawprint/index"
)

// Metadata is the codec-encoded metadata section.
type Metadata struct {
	BuildID      string    `json:"build_id"`
	ModelVersion string    `json:"model_version"`
	CreatedAt    time.Time `json:"created_at"`
	Identities   []string  `json:"identities"`
}

// Snapshot is a complete, self-describing store image.
type Snapshot struct {
	Config       index.Config
	Backend      index.Backend
	BuildID      string
	ModelVersion string
	CreatedAt    time.Time
	Entries      []index.Entry
}

// Validate checks the snapshot before it is written.
func (s *Snapshot) Validate() error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	return index.Collection(s.Entries).Validate(s.Config)
}

// Info summarizes a written or loaded snapshot.
type Info struct {
	BuildID      string
	ModelVersion string
	CreatedAt    time.Time
	Vectors      int
	Identities   int // distinct identities
	Dimension    int
	Metric       distance.Metric
	Normalized   bool
	Backend      index.Backend
	Compression  Compression
	Codec        string
	Bytes        int64
	Checksum     uint32
}

// Info derives the summary fields that do not depend on encoding.
func (s *Snapshot) Info() Info {
	return Info{
		BuildID:      s.BuildID,
		ModelVersion: s.ModelVersion,
		CreatedAt:    s.CreatedAt,
		Vectors:      len(s.Entries),
		Identities:   len(index.Collection(s.Entries).IdentitySet()),
		Dimension:    s.Config.Dimension,
		Metric:       s.Config.Metric,
		Normalized:   s.Config.Normalized,
		Backend:      s.Backend,
	}
}

// WriteOptions controls encoding.
type WriteOptions struct {
	Compression Compression
	Codec       codec.Codec
	BlockSize   int
}

// DefaultWriteOptions are used when no option is given.
var DefaultWriteOptions = WriteOptions{
	Compression: CompressionNone,
	Codec:       codec.Default,
	BlockSize:   DefaultBlockSize,
}

// WithCompression sets the vector section compression.
func WithCompression(c Compression) func(*WriteOptions) {
	return func(o *WriteOptions) { o.Compression = c }
}

// WithCodec sets the metadata codec.
func WithCodec(c codec.Codec) func(*WriteOptions) {
	return func(o *WriteOptions) { o.Codec = c }
}

// Encode renders snap into a single byte slice.
func Encode(snap *Snapshot, optFns ...func(*WriteOptions)) ([]byte, Info, error) {
	var buf bytes.Buffer
	info, err := Write(&buf, snap, optFns...)
	if err != nil {
		return nil, Info{}, err
	}
	return buf.Bytes(), info, nil
}

// Write encodes snap to w.
func Write(w io.Writer, snap *Snapshot, optFns ...func(*WriteOptions)) (Info, error) {
	opts := DefaultWriteOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	if err := snap.Validate(); err != nil {
		return Info{}, fmt.Errorf("persistence: %w", err)
	}
	codecID, err := codec.IDOf(opts.Codec)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnknownCodec, err)
	}

	dim := snap.Config.Dimension
	raw := make([]float32, 0, len(snap.Entries)*dim)
	ids := make([]string, len(snap.Entries))
	for i, e := range snap.Entries {
		raw = append(raw, e.Vector...)
		ids[i] = e.IdentityID
	}
	if err := index.AssertAligned(len(raw)/dim, len(ids)); err != nil {
		return Info{}, err
	}

	rawBytes, err := float32Bytes(raw)
	if err != nil {
		return Info{}, err
	}
	vectorSection, err := compressBlocks(rawBytes, opts.Compression, opts.BlockSize)
	if err != nil {
		return Info{}, fmt.Errorf("persistence: compress vectors: %w", err)
	}

	metaSection, err := opts.Codec.Marshal(Metadata{
		BuildID:      snap.BuildID,
		ModelVersion: snap.ModelVersion,
		CreatedAt:    snap.CreatedAt.UTC(),
		Identities:   ids,
	})
	if err != nil {
		return Info{}, fmt.Errorf("persistence: encode metadata: %w", err)
	}

	var flags uint8
	if snap.Config.Normalized {
		flags |= FlagNormalized
	}
	hdr := FileHeader{
		Magic:         Magic,
		Version:       Version,
		Metric:        uint8(snap.Config.Metric),
		Flags:         flags,
		Compression:   uint8(opts.Compression),
		Codec:         codecID,
		Backend:       uint8(snap.Backend),
		Dimension:     uint32(dim),
		VectorCount:   uint64(len(raw) / dim),
		IdentityCount: uint64(len(ids)),
		VectorOffset:  HeaderSize,
		VectorLength:  uint64(len(vectorSection)),
		MetaOffset:    HeaderSize + uint64(len(vectorSection)),
		MetaLength:    uint32(len(metaSection)),
	}
	hdrBytes, err := hdr.seal(vectorSection, metaSection)
	if err != nil {
		return Info{}, err
	}

	cw := NewChecksumWriter(w)
	for _, section := range [][]byte{hdrBytes, vectorSection, metaSection} {
		if _, err := cw.Write(section); err != nil {
			return Info{}, err
		}
	}

	info := snap.Info()
	info.Compression = opts.Compression
	info.Codec = opts.Codec.Name()
	info.Bytes = cw.Written()
	info.Checksum = hdr.Checksum
	return info, nil
}

// Decode parses a snapshot held entirely in memory.
// The returned snapshot never aliases data.
func Decode(data []byte) (*Snapshot, Info, error) {
	var hdr FileHeader
	if err := hdr.UnmarshalBinary(data); err != nil {
		return nil, Info{}, err
	}

	end, err := hdr.sections(uint64(len(data)))
	if err != nil {
		return nil, Info{}, err
	}
	if err := verifyChecksum(hdr.Checksum, data[:checksumOffset], data[HeaderSize:end]); err != nil {
		return nil, Info{}, err
	}

	cfg := index.Config{
		Dimension:  int(hdr.Dimension),
		Metric:     distance.Metric(hdr.Metric),
		Normalized: hdr.Flags&FlagNormalized != 0,
	}
	if err := cfg.Validate(); err != nil {
		return nil, Info{}, fmt.Errorf("persistence: %w", err)
	}
	c, ok := codec.ByID(hdr.Codec)
	if !ok {
		return nil, Info{}, fmt.Errorf("%w: id %d", ErrUnknownCodec, hdr.Codec)
	}

	var meta Metadata
	if err := c.Unmarshal(data[hdr.MetaOffset:end], &meta); err != nil {
		return nil, Info{}, fmt.Errorf("persistence: decode metadata: %w", err)
	}

	// Header vector count, header identity count and the decoded identity
	// list must all agree before any vector is attached to an identity.
	if hdr.VectorCount != hdr.IdentityCount {
		return nil, Info{}, &ConsistencyError{
			Vectors:    int(hdr.VectorCount),
			Identities: int(hdr.IdentityCount),
			Reason:     "header counts differ",
		}
	}
	if uint64(len(meta.Identities)) != hdr.IdentityCount {
		return nil, Info{}, &ConsistencyError{
			Vectors:    int(hdr.VectorCount),
			Identities: len(meta.Identities),
			Reason:     "identity list length differs from header",
		}
	}

	if hdr.VectorCount > 0 && uint64(cfg.Dimension) > uint64(math.MaxInt/4)/hdr.VectorCount {
		return nil, Info{}, fmt.Errorf("%w: %d vectors of dimension %d", ErrCorruptHeader, hdr.VectorCount, cfg.Dimension)
	}
	rawLen := int(hdr.VectorCount) * cfg.Dimension * 4
	vectorSection := data[hdr.VectorOffset:hdr.MetaOffset]
	rawBytes, err := decompressBlocks(vectorSection, Compression(hdr.Compression), rawLen)
	if err != nil {
		return nil, Info{}, err
	}
	raw := copyFloat32s(rawBytes)
	if err := index.AssertAligned(len(raw)/cfg.Dimension, len(meta.Identities)); err != nil {
		return nil, Info{}, err
	}

	entries := make([]index.Entry, len(meta.Identities))
	dim := cfg.Dimension
	for i, id := range meta.Identities {
		entries[i] = index.Entry{
			Vector:     raw[i*dim : (i+1)*dim : (i+1)*dim],
			IdentityID: id,
		}
	}

	snap := &Snapshot{
		Config:       cfg,
		Backend:      index.Backend(hdr.Backend),
		BuildID:      meta.BuildID,
		ModelVersion: meta.ModelVersion,
		CreatedAt:    meta.CreatedAt,
		Entries:      entries,
	}
	if err := index.Collection(entries).Validate(cfg); err != nil {
		return nil, Info{}, fmt.Errorf("persistence: %w", err)
	}

	info := snap.Info()
	info.Compression = Compression(hdr.Compression)
	info.Codec = c.Name()
	info.Bytes = int64(end)
	info.Checksum = hdr.Checksum
	return snap, info, nil
}

// Read consumes r fully and decodes the snapshot.
func Read(r io.Reader) (*Snapshot, Info, error) {
	data, err := io.ReadAll(bufio.NewReaderSize(r, 256*1024))
	if err != nil {
		return nil, Info{}, err
	}
	return Decode(data)
}

// ReadHeader decodes only the header. Used by inspection tooling.
func ReadHeader(r io.Reader) (*FileHeader, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	var hdr FileHeader
	if err := hdr.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return &hdr, nil
}
