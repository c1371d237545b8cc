package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hupe1980/pawprint/internal/mmap"
)

// SaveToFile writes through writeFunc into a temp file next to filename and
// atomically renames it into place. On any error the previous file is left
// untouched and the temp file is removed.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	if filename == "" {
		return ErrEmptyPath
	}
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Same directory, so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0o644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = ""
	return nil
}

// WriteFile atomically writes snap to path.
func WriteFile(path string, snap *Snapshot, optFns ...func(*WriteOptions)) (Info, error) {
	var info Info
	err := SaveToFile(path, func(w io.Writer) error {
		var err error
		info, err = Write(w, snap, optFns...)
		return err
	})
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

// LoadFile memory-maps path and decodes it. The mapping is released before
// returning; the snapshot holds its own copy of every vector.
func LoadFile(path string) (*Snapshot, Info, error) {
	if path == "" {
		return nil, Info{}, ErrEmptyPath
	}
	m, err := mmap.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Info{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
		}
		return nil, Info{}, err
	}
	defer m.Close()

	_ = m.Advise(mmap.AccessSequential)
	return Decode(m.Bytes())
}
