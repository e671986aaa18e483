package scanner

import "strings"

// Whitespace per PDF 7.2.2: null, tab, LF, FF, CR, space.
func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

// isRegular reports a byte that can start a keyword.
func isRegular(c byte) bool { return !isDelimiter(c) }

func isNumberStart(c byte) bool {
	return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func isIntString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' {
			return false
		}
		if (c == '+' || c == '-') && i == 0 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// normalizeReal fixes the forms strconv rejects: "4." and "-.002-" style
// trailing signs never appear, but a bare trailing or leading dot does.
func normalizeReal(s string) string {
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	if strings.HasPrefix(s, "-.") {
		s = "-0" + s[1:]
	}
	if strings.HasPrefix(s, "+.") {
		s = "+0" + s[1:]
	}
	return s
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

func matchAt(data []byte, i int64, needle []byte) bool {
	if i+int64(len(needle)) > int64(len(data)) {
		return false
	}
	for j := range needle {
		if data[i+int64(j)] != needle[j] {
			return false
		}
	}
	return true
}

func indexFrom(data []byte, from int64, needle []byte) int64 {
	for i := from; i+int64(len(needle)) <= int64(len(data)); i++ {
		if matchAt(data, i, needle) {
			return i
		}
	}
	return -1
}

// streamBreakBefore reports whether position i is a safe endstream boundary.
func streamBreakBefore(data []byte, i, dataStart int64) bool {
	if i == dataStart {
		return true
	}
	return isWhitespace(data[i-1])
}

// trimStreamEOL drops the EOL that separates stream data from 'endstream'.
func trimStreamEOL(data []byte, dataStart, marker int64) int64 {
	end := marker
	if end > dataStart && data[end-1] == '\n' {
		end--
	}
	if end > dataStart && data[end-1] == '\r' {
		end--
	}
	return end
}
