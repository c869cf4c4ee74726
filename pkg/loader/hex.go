package loader

// ParseHex parses one hex argument of at most four digits starting at
// s[pos:]. Leading spaces and tabs are skipped and the token ends at a
// space, tab, line terminator or the end of s. It returns the position
// after the token so calls can be chained over an argument list.
func ParseHex(s string, pos int) (uint16, int, error) {
	pos = skipBlank(s, pos)
	var v uint16
	var digits int
	for ; pos < len(s) && !isDelim(s[pos]); pos++ {
		d, ok := hexDigit(s[pos])
		if !ok {
			return 0, pos, ErrHexDigit
		}
		if digits == 4 {
			return 0, pos, ErrHexRange
		}
		v = v<<4 | uint16(d)
		digits++
	}
	if digits == 0 {
		return 0, pos, ErrHexEmpty
	}
	return v, pos, nil
}

// expectEnd fails when anything but blanks follows pos.
func expectEnd(s string, pos int) error {
	if skipBlank(s, pos) < len(s) {
		return ErrTrailing
	}
	return nil
}

func skipBlank(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t') {
		pos++
	}
	return pos
}

func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', 0:
		return true
	}
	return false
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
