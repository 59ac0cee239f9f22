// Package bitstream converts between bytes, files, bitmaps and the 0/1 bit
// sequences a link transmits.
package bitstream

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidBit is returned when a literal bit sequence contains anything but 0 and 1.
var ErrInvalidBit = errors.New("invalid bit")

// BytesToBits expands data into bits, most significant bit first.
func BytesToBits(data []byte) []byte {
	bits := make([]byte, len(data)*8)
	for i, b := range data {
		for j := 7; j >= 0; j-- {
			bits[i*8+(7-j)] = (b >> uint(j)) & 1
		}
	}
	return bits
}

// BitsToBytes packs bits into bytes, most significant bit first.
// A ragged final byte is filled with zero bits.
func BitsToBytes(bits []byte) []byte {
	data := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		data[i/8] |= (bit & 1) << uint(7-i%8)
	}
	return data
}

// ParseBits reads a literal sequence such as "1010 100". Whitespace, commas
// and underscores are ignored.
func ParseBits(s string) ([]byte, error) {
	bits := make([]byte, 0, len(s))
	for i, r := range s {
		switch r {
		case '0', '1':
			bits = append(bits, byte(r-'0'))
		case ' ', '\t', '\n', '\r', ',', '_':
		default:
			return nil, fmt.Errorf("%w %q at offset %d", ErrInvalidBit, r, i)
		}
	}
	return bits, nil
}

// FormatBits renders bits as a string of 0 and 1 characters.
func FormatBits(bits []byte) string {
	var sb strings.Builder
	sb.Grow(len(bits))
	for _, b := range bits {
		sb.WriteByte('0' + b&1)
	}
	return sb.String()
}
