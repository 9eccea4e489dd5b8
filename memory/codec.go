package memory

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// LoadU8 returns the byte at off.
func (a *Arena) LoadU8(off Offset) (uint8, error) {
	if _, err := a.RecordContaining(off); err != nil {
		return 0, err
	}
	return a.data[off], nil
}

// LoadU64 reads eight little-endian bytes starting at off. All eight bytes
// must belong to the record that contains off.
func (a *Arena) LoadU64(off Offset) (uint64, error) {
	if _, err := a.wordRecord(off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(a.data[off : off+8]), nil
}

// StoreU8 stores v at off.
func (a *Arena) StoreU8(off Offset, v uint8) error {
	if _, err := a.RecordContaining(off); err != nil {
		return err
	}
	a.data[off] = v
	return nil
}

// StoreU64 stores v as eight little-endian bytes starting at off.
func (a *Arena) StoreU64(off Offset, v uint64) error {
	if _, err := a.wordRecord(off); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(a.data[off:off+8], v)
	return nil
}

// DecodeString decodes the whole buffer starting exactly at off as UTF-8.
// A leading byte order mark is dropped and invalid sequences are replaced
// with U+FFFD, the same way a WHATWG TextDecoder behaves.
func (a *Arena) DecodeString(off Offset) (string, error) {
	b, err := a.Bytes(off)
	if err != nil {
		return "", err
	}
	s, err := unicode.UTF8BOM.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode buffer at %d: %w", off, err)
	}
	return string(s), nil
}

func (a *Arena) wordRecord(off Offset) (Record, error) {
	r, err := a.RecordContaining(off)
	if err != nil {
		return Record{}, err
	}
	if r.End()-off < 8 {
		return Record{}, fmt.Errorf("%w: 8-byte word at %d, buffer [%d, %d)", ErrOutOfBounds, off, r.Offset, r.End())
	}
	return r, nil
}
