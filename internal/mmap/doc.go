// Package mmap maps snapshot files read-only into memory.
//
//	m, err := mmap.Open("catalog.paw")
//	if err != nil { ... }
//	defer m.Close()
//	data := m.Bytes()
//
// Unix uses mmap(2) with madvise(2) hints; Windows uses
// CreateFileMapping/MapViewOfFile and ignores hints.
//
// Bytes must not be used after Close. Close is idempotent.
package mmap
