package datachan

import (
	"fmt"
	"unicode/utf16"
)

const maxUTFLen = 0xFFFF

// ModifiedUTF8Len returns the encoded size of s, not counting the length
// prefix.
func ModifiedUTF8Len(s string) int {
	var n int
	for _, c := range utf16.Encode([]rune(s)) {
		n += unitLen(c)
	}
	return n
}

func unitLen(c uint16) int {
	switch {
	case c >= 0x0001 && c <= 0x007F:
		return 1
	case c > 0x07FF:
		return 3
	default:
		return 2
	}
}

// AppendModifiedUTF8 appends the modified UTF-8 encoding of s (without the
// length prefix). Text is encoded as UTF-16 code units: U+0000 takes two
// bytes, supplementary characters become two 3-byte surrogates.
func AppendModifiedUTF8(buf []byte, s string) ([]byte, error) {
	units := utf16.Encode([]rune(s))
	var n int
	for _, c := range units {
		n += unitLen(c)
	}
	if n > maxUTFLen {
		return buf, fmt.Errorf("%w: %d bytes", ErrStringTooLong, n)
	}
	buf = ensureCapacity(buf, len(buf)+n)
	for _, c := range units {
		switch unitLen(c) {
		case 1:
			buf = append(buf, byte(c))
		case 2:
			buf = append(buf, byte(0xC0|((c>>6)&0x1F)), byte(0x80|(c&0x3F)))
		default:
			buf = append(buf, byte(0xE0|((c>>12)&0x0F)), byte(0x80|((c>>6)&0x3F)), byte(0x80|(c&0x3F)))
		}
	}
	return buf, nil
}

// DecodeModifiedUTF8 decodes b (without the length prefix).
func DecodeModifiedUTF8(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c == 0 || c > 0x7F {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch c >> 4 {
		case 0, 1, 2, 3, 4, 5, 6, 7:
			units = append(units, uint16(c))
			i++
		case 12, 13:
			if i+2 > len(b) {
				return "", fmt.Errorf("%w: partial character at end", ErrMalformedString)
			}
			c2 := b[i+1]
			if c2&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: around byte %d", ErrMalformedString, i+1)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(c2&0x3F))
			i += 2
		case 14:
			if i+3 > len(b) {
				return "", fmt.Errorf("%w: partial character at end", ErrMalformedString)
			}
			c2, c3 := b[i+1], b[i+2]
			if c2&0xC0 != 0x80 || c3&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: around byte %d", ErrMalformedString, i+2)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(c2&0x3F)<<6|uint16(c3&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("%w: around byte %d", ErrMalformedString, i)
		}
	}
	return string(utf16.Decode(units)), nil
}
