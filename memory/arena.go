// Package memory provides the byte arena that stands in for guest linear
// memory: a fixed-capacity bump allocator, the registry of buffer records
// carved out of it, and offset-addressed byte and word accessors.
//
// Offsets are plain integers. They are only meaningful against the [Arena]
// that produced them; every bounds check happens here.
package memory

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultCapacity is one wasm page.
const DefaultCapacity = 64 * 1024

var (
	ErrAllocationExhausted = errors.New("arena capacity exhausted")
	ErrBufferNotFound      = errors.New("buffer not found")
	ErrOutOfBounds         = errors.New("access crosses buffer boundary")
)

// Offset is an index into an Arena.
type Offset uint64

// Record describes one buffer carved out of the arena.
type Record struct {
	Offset Offset `json:"offset"`
	Length uint64 `json:"length"`
}

// End returns the first offset past the record.
func (r Record) End() Offset {
	return r.Offset + Offset(r.Length)
}

// Contains reports whether off lies inside the record.
func (r Record) Contains(off Offset) bool {
	return off >= r.Offset && off < r.End()
}

// Arena is a bump allocator over a fixed byte region. Buffers are never
// reclaimed and the cursor only grows. Arena is not safe for concurrent use.
type Arena struct {
	data    []byte
	cursor  Offset
	records map[Offset]Record
}

// NewArena creates an arena with the given capacity in bytes.
// A capacity of zero selects DefaultCapacity.
func NewArena(capacity int) *Arena {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Arena{
		data:    make([]byte, capacity),
		records: make(map[Offset]Record),
	}
}

// Capacity returns the size of the backing region.
func (a *Arena) Capacity() int {
	return len(a.data)
}

// Cursor returns the next free offset.
func (a *Arena) Cursor() Offset {
	return a.cursor
}

// Allocate reserves length bytes at the cursor and returns their offset.
func (a *Arena) Allocate(length uint64) (Offset, error) {
	if length > uint64(len(a.data))-uint64(a.cursor) {
		return 0, fmt.Errorf("%w: requested %d bytes at offset %d, capacity %d",
			ErrAllocationExhausted, length, a.cursor, len(a.data))
	}

	off := a.cursor
	a.records[off] = Record{Offset: off, Length: length}
	a.cursor += Offset(length)
	return off, nil
}

// AllocateAndFill allocates len(content) bytes and copies content into them.
func (a *Arena) AllocateAndFill(content []byte) (Offset, error) {
	off, err := a.Allocate(uint64(len(content)))
	if err != nil {
		return 0, err
	}
	copy(a.data[off:], content)
	return off, nil
}

// Release is accepted by the ABI but never reclaims space.
func (a *Arena) Release(Offset) {}

// RecordAt returns the record that starts exactly at off.
func (a *Arena) RecordAt(off Offset) (Record, error) {
	r, ok := a.records[off]
	if !ok {
		return Record{}, fmt.Errorf("%w: no buffer starts at offset %d", ErrBufferNotFound, off)
	}
	return r, nil
}

// RecordContaining returns the unique record whose range contains off.
// Finding more than one match means the allocator state is corrupt; that case
// reports ErrBufferNotFound as well so callers degrade the same way.
func (a *Arena) RecordContaining(off Offset) (Record, error) {
	var (
		found Record
		n     int
	)
	for _, r := range a.records {
		if r.Contains(off) {
			found = r
			n++
		}
	}
	switch n {
	case 1:
		return found, nil
	case 0:
		return Record{}, fmt.Errorf("%w: offset %d", ErrBufferNotFound, off)
	default:
		return Record{}, fmt.Errorf("%w: offset %d matches %d buffers (corrupt allocator state)", ErrBufferNotFound, off, n)
	}
}

// Length returns the length of the buffer starting at off, or 0.
func (a *Arena) Length(off Offset) uint64 {
	return a.records[off].Length
}

// Bytes returns the live contents of the buffer starting exactly at off.
// The slice aliases arena storage.
func (a *Arena) Bytes(off Offset) ([]byte, error) {
	r, err := a.RecordAt(off)
	if err != nil {
		return nil, err
	}
	return a.data[r.Offset:r.End():r.End()], nil
}

// Records returns a snapshot of all records ordered by offset.
func (a *Arena) Records() []Record {
	out := make([]Record, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}
