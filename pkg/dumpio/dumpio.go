// Package dumpio memory-maps a minidump file read-only, giving every
// derived view (module list, memory ranges, stack slices) a buffer
// that outlives the call per §3's ownership rule without copying the
// whole file into the Go heap.
package dumpio

import (
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// Buffer is a read-only, memory-mapped view of a minidump file.
type Buffer struct {
	f    *os.File
	data mmap.MMap
}

// Open memory-maps path read-only. The returned Buffer must be closed
// once every view derived from it has gone out of scope.
func Open(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &Buffer{f: f, data: data}, nil
}

func (b *Buffer) Close() error {
	if err := b.data.Unmap(); err != nil {
		b.f.Close()
		return err
	}
	return b.f.Close()
}

func (b *Buffer) Len() int { return len(b.data) }

// Bytes returns the full mapped range. Callers must not retain slices
// derived from it past Close.
func (b *Buffer) Bytes() []byte { return b.data }

// Slice returns [offset, offset+size) of the mapping, or an error if
// out of range.
func (b *Buffer) Slice(offset, size uint32) ([]byte, error) {
	end := uint64(offset) + uint64(size)
	if end > uint64(len(b.data)) {
		return nil, fmt.Errorf("dumpio: slice [%d,%d) exceeds mapped size %d", offset, end, len(b.data))
	}
	return b.data[offset:end], nil
}

func (b *Buffer) Uint32At(offset uint32) (uint32, error) {
	s, err := b.Slice(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(s), nil
}

func (b *Buffer) Uint64At(offset uint32) (uint64, error) {
	s, err := b.Slice(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(s), nil
}

// PageSize reports the host page size, used to sanity-check mapping
// granularity on the rare dumps large enough for it to matter.
func PageSize() int {
	return unix.Getpagesize()
}
