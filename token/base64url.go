package token

import "errors"

var errInvalidEncoding = errors.New("invalid base64url encoding")

// decodeTable maps the standard alphabet to 6-bit values; 0xFF marks invalid bytes.
var decodeTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 0xFF
	}
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	for i := 0; i < len(alphabet); i++ {
		t[alphabet[i]] = byte(i)
	}
	return t
}()

// decodeSegment decodes a JWT segment. The URL-safe alphabet is translated to
// the standard one and missing padding is restored before decoding quads.
func decodeSegment(seg string) ([]byte, error) {
	buf := make([]byte, 0, len(seg)+3)
	for i := 0; i < len(seg); i++ {
		switch c := seg[i]; c {
		case '-':
			buf = append(buf, '+')
		case '_':
			buf = append(buf, '/')
		default:
			buf = append(buf, c)
		}
	}
	switch len(buf) % 4 {
	case 1:
		return nil, errInvalidEncoding
	case 2:
		buf = append(buf, '=', '=')
	case 3:
		buf = append(buf, '=')
	}

	out := make([]byte, 0, len(buf)/4*3)
	for i := 0; i < len(buf); i += 4 {
		last := i+4 == len(buf)
		var quad [4]byte
		pad := 0
		for j := 0; j < 4; j++ {
			c := buf[i+j]
			if c == '=' {
				if !last || j < 2 {
					return nil, errInvalidEncoding
				}
				pad++
				continue
			}
			if pad > 0 {
				return nil, errInvalidEncoding
			}
			v := decodeTable[c]
			if v == 0xFF {
				return nil, errInvalidEncoding
			}
			quad[j] = v
		}
		n := uint32(quad[0])<<18 | uint32(quad[1])<<12 | uint32(quad[2])<<6 | uint32(quad[3])
		switch pad {
		case 0:
			out = append(out, byte(n>>16), byte(n>>8), byte(n))
		case 1:
			out = append(out, byte(n>>16), byte(n>>8))
		case 2:
			out = append(out, byte(n>>16))
		}
	}
	return out, nil
}
