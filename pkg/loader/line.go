package loader

// CommandSize is the capacity of the command line buffer.
const CommandSize = 32

// Line accumulates received bytes into command lines.
type Line struct {
	buf [CommandSize]byte
	pos int
	// cr is set when the last byte was a carriage return, a following
	// line feed belongs to the same terminator.
	cr bool
}

// Feed consumes one byte. It returns the command when b terminates a
// non-empty line. A line reaching CommandSize bytes is discarded and
// accumulation restarts from empty.
func (l *Line) Feed(b byte) (string, bool) {
	cr := l.cr
	l.cr = b == '\r'
	if b == '\n' && cr {
		return "", false
	}
	if b == '\r' || b == '\n' {
		if l.pos == 0 {
			return "", false
		}
		cmd := string(l.buf[:l.pos])
		l.pos = 0
		return cmd, true
	}
	l.buf[l.pos] = b
	l.pos++
	if l.pos >= len(l.buf) {
		l.pos = 0
	}
	return "", false
}

// Len returns the length of the partial line.
func (l *Line) Len() int {
	return l.pos
}

// TakeCR reports whether the last byte fed was a carriage return and
// forgets it. A caller consuming raw bytes after the line uses it to drop
// the line feed of a CRLF terminator.
func (l *Line) TakeCR() bool {
	cr := l.cr
	l.cr = false
	return cr
}

// Reset discards the partial line.
func (l *Line) Reset() {
	l.pos = 0
	l.cr = false
}
