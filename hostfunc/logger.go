package hostfunc

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"
)

const byteOrderMark = 0xFEFF

var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// CharLogger accumulates characters pushed one at a time by spectest.print_char
// and emits a decoded line whenever a newline arrives.
type CharLogger struct {
	units []uint16
	sink  func(line string)
}

// NewCharLogger returns a logger that hands each completed line to sink.
// A nil sink discards lines.
func NewCharLogger(sink func(line string)) *CharLogger {
	if sink == nil {
		sink = func(string) {}
	}
	return &CharLogger{sink: sink}
}

// PushChar appends code to the pending line. '\n' flushes and '\r' is
// ignored. Codes above 0xFFFF keep only their low 16 bits.
func (l *CharLogger) PushChar(code uint32) {
	switch code {
	case '\n':
		l.Flush()
	case '\r':
	default:
		l.units = append(l.units, uint16(code))
	}
}

// Flush emits the pending line, if any, and clears it.
func (l *CharLogger) Flush() {
	if len(l.units) == 0 {
		return
	}
	units := l.units
	l.units = nil

	if units[0] == byteOrderMark {
		units = units[1:]
	}

	raw := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(raw[2*i:], u)
	}

	// unpaired surrogates decode to U+FFFD; the decoder never fails
	line, _ := utf16Decoder.NewDecoder().Bytes(raw)
	l.sink(string(line))
}

// Pending reports the number of buffered code units.
func (l *CharLogger) Pending() int {
	return len(l.units)
}
