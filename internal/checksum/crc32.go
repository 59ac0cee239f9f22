// Package checksum protects payloads carried over the simulated link with a
// CRC-32 trailer.
package checksum

import (
	"encoding/binary"
	"hash/crc32"
)

// TrailerLen is the size of the CRC-32 trailer in bytes.
const TrailerLen = 4

// CRC32 computes CRC-32 checksum using IEEE polynomial.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Append returns data followed by its big-endian CRC-32.
func Append(data []byte) []byte {
	result := make([]byte, len(data)+TrailerLen)
	copy(result, data)
	binary.BigEndian.PutUint32(result[len(data):], CRC32(data))
	return result
}

// Verify splits a payload produced by Append and reports whether the trailer
// still matches. Payloads shorter than the trailer never verify.
func Verify(withCRC []byte) ([]byte, bool) {
	if len(withCRC) < TrailerLen {
		return nil, false
	}
	data := withCRC[:len(withCRC)-TrailerLen]
	expected := binary.BigEndian.Uint32(withCRC[len(withCRC)-TrailerLen:])
	return data, CRC32(data) == expected
}

// Report compares a payload before and after the link.
type Report struct {
	Sent       uint32 `json:"sent"`
	Received   uint32 `json:"received"`
	Match      bool   `json:"match"`
	ByteErrors int    `json:"byteErrors"`
}

// Compare checksums both payloads and counts differing bytes, including any
// length difference.
func Compare(sent, received []byte) Report {
	r := Report{Sent: CRC32(sent), Received: CRC32(received)}
	r.Match = r.Sent == r.Received && len(sent) == len(received)
	n := min(len(sent), len(received))
	for i := range n {
		if sent[i] != received[i] {
			r.ByteErrors++
		}
	}
	r.ByteErrors += max(len(sent), len(received)) - n
	return r
}
