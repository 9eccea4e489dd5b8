package hostfunc

import (
	"encoding/binary"
	"fmt"
)

// Input is the byte string a host supplies for the current call. It lives
// outside the arena and is only reachable through the input_* imports.
type Input struct {
	data []byte
}

func (in *Input) Set(data []byte) {
	in.data = append([]byte(nil), data...)
}

func (in *Input) Bytes() []byte {
	return in.data
}

func (in *Input) Length() uint64 {
	return uint64(len(in.data))
}

func (in *Input) LoadU8(off uint64) (uint8, error) {
	if off >= uint64(len(in.data)) {
		return 0, fmt.Errorf("%w: offset %d, length %d", ErrInputOutOfRange, off, len(in.data))
	}
	return in.data[off], nil
}

func (in *Input) LoadU64(off uint64) (uint64, error) {
	n := uint64(len(in.data))
	if n < 8 || off > n-8 {
		return 0, fmt.Errorf("%w: offset %d, length %d", ErrInputOutOfRange, off, len(in.data))
	}
	return binary.LittleEndian.Uint64(in.data[off:]), nil
}
