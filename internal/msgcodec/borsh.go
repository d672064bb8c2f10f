package msgcodec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// lenPrefixSize is the width of the little-endian u32 length that precedes every string.
const lenPrefixSize = 4

// AppendString appends s to dst as a u32 little-endian byte length followed by
// the raw UTF-8 bytes. This is the borsh layout for a string.
func AppendString(dst []byte, s string) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// EncodedStringSize returns the number of bytes AppendString writes for s.
func EncodedStringSize(s string) int {
	return lenPrefixSize + len(s)
}

// ReadString reads one length-prefixed string from the head of buf and returns
// it together with the unread remainder.
// The declared length is checked against the buffer before anything is
// allocated, so a corrupt prefix can't trigger a huge allocation.
func ReadString(buf []byte) (string, []byte, error) {
	if len(buf) < lenPrefixSize {
		return "", nil, fmt.Errorf("%w: need %d bytes for length prefix, have %d",
			ErrMalformedPayload, lenPrefixSize, len(buf))
	}

	n := binary.LittleEndian.Uint32(buf)
	rest := buf[lenPrefixSize:]
	if uint64(n) > uint64(len(rest)) {
		return "", nil, fmt.Errorf("%w: declared string length %d exceeds remaining %d bytes",
			ErrMalformedPayload, n, len(rest))
	}

	raw := rest[:n]
	if !utf8.Valid(raw) {
		return "", nil, fmt.Errorf("%w: string field is not valid utf-8", ErrMalformedPayload)
	}
	return string(raw), rest[n:], nil
}
