package classfile

// The class file stores strings as modified UTF-8: NUL is written as the
// two byte form C0 80 and supplementary characters as a pair of three byte
// surrogates. Strings are held in memory as UTF-8 with lone surrogates kept
// in their three byte form, so decode followed by encode reproduces the
// original bytes.

func decodeModifiedUTF8(b []byte) string {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case c == 0xC0 && i+1 < len(b) && b[i+1] == 0x80:
			out = append(out, 0)
			i++
		case c == 0xED && i+5 < len(b) && isHighSurrogate(b[i+1]) && b[i+3] == 0xED && isLowSurrogate(b[i+4]):
			hi := rune(b[i+1]&0x0F)<<6 | rune(b[i+2]&0x3F)
			lo := rune(b[i+4]&0x0F)<<6 | rune(b[i+5]&0x3F)
			r := 0x10000 + (hi << 10) + lo
			out = append(out,
				byte(0xF0|r>>18),
				byte(0x80|(r>>12)&0x3F),
				byte(0x80|(r>>6)&0x3F),
				byte(0x80|r&0x3F))
			i += 5
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func encodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == 0:
			out = append(out, 0xC0, 0x80)
		case c >= 0xF0 && i+3 < len(s):
			r := rune(c&0x07)<<18 | rune(s[i+1]&0x3F)<<12 | rune(s[i+2]&0x3F)<<6 | rune(s[i+3]&0x3F)
			r -= 0x10000
			hi := 0xD800 + (r >> 10)
			lo := 0xDC00 + (r & 0x3FF)
			out = appendSurrogate(out, hi)
			out = appendSurrogate(out, lo)
			i += 3
		default:
			out = append(out, c)
		}
	}
	return out
}

func appendSurrogate(out []byte, r rune) []byte {
	return append(out, 0xE0|byte(r>>12), 0x80|byte(r>>6)&0x3F, 0x80|byte(r)&0x3F)
}

func isHighSurrogate(b byte) bool { return b >= 0xA0 && b <= 0xAF }

func isLowSurrogate(b byte) bool { return b >= 0xB0 && b <= 0xBF }
