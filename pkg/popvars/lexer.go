package popvars

import (
	"fmt"
	"strings"
)

// The scanner works directly on template source. Plain text, bare segments,
// backtick-quoted segments and string literals each accept their own set of
// backslash escapes; any other backslash is a syntax error.

const (
	textEscapes    = `\{}@`
	segmentEscapes = `\{}@. `
	quotedEscapes  = "\\{}@.`"
	stringEscapes  = `\{}@."`

	// bytes that end a bare segment in every context
	segmentStops = "{}@.`\\"
	// additional bytes that end the left side of a comparison
	comparisonStops = "<>!="
)

type scanner struct {
	src string
	i   int
}

func (s *scanner) eof() bool { return s.i >= len(s.src) }

func (s *scanner) peek() byte {
	if s.i >= len(s.src) {
		return 0
	}
	return s.src[s.i]
}

func (s *scanner) peekAt(n int) byte {
	if s.i+n >= len(s.src) {
		return 0
	}
	return s.src[s.i+n]
}

func (s *scanner) hasPrefix(p string) bool { return strings.HasPrefix(s.src[s.i:], p) }

func (s *scanner) match(p string) bool {
	if !s.hasPrefix(p) {
		return false
	}
	s.i += len(p)
	return true
}

// skipSpace consumes whitespace and returns how many bytes it skipped.
func (s *scanner) skipSpace() int {
	start := s.i
	for s.i < len(s.src) && isSpace(s.src[s.i]) {
		s.i++
	}
	return s.i - start
}

// keyword consumes kw if it is followed by whitespace.
func (s *scanner) keyword(kw string) bool {
	if !s.hasPrefix(kw) {
		return false
	}
	if n := len(kw); s.i+n >= len(s.src) || !isSpace(s.src[s.i+n]) {
		return false
	}
	s.i += len(kw)
	return true
}

// word consumes a run of ASCII letters.
func (s *scanner) word() string {
	start := s.i
	for s.i < len(s.src) && isLetter(s.src[s.i]) {
		s.i++
	}
	return s.src[start:s.i]
}

func (s *scanner) errorf(offset int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Pos: positionAt(s.src, offset), Msg: fmt.Sprintf(format, args...)}
}

// escape consumes a backslash escape and returns the escaped byte.
func (s *scanner) escape(allowed string) (byte, error) {
	at := s.i
	if s.i+1 >= len(s.src) {
		return 0, s.errorf(at, "unterminated escape sequence")
	}
	c := s.src[s.i+1]
	if strings.IndexByte(allowed, c) < 0 {
		return 0, s.errorf(at, "invalid escape sequence \\%c", c)
	}
	s.i += 2
	return c, nil
}

// text scans literal text up to the next "{{" or "{@", resolving escapes.
func (s *scanner) text() (string, error) {
	var b strings.Builder
	for s.i < len(s.src) {
		if s.hasPrefix("{{") || s.hasPrefix("{@") {
			break
		}
		c := s.src[s.i]
		if c == '\\' {
			e, err := s.escape(textEscapes)
			if err != nil {
				return "", err
			}
			b.WriteByte(e)
			continue
		}
		b.WriteByte(c)
		s.i++
	}
	return b.String(), nil
}

// segment scans one name: either backtick-quoted or a bare run ending at
// whitespace, a structural byte, or any byte in stop.
func (s *scanner) segment(what, stop string) (string, error) {
	if s.peek() == '`' {
		return s.quoted('`', quotedEscapes, what)
	}
	start := s.i
	var b strings.Builder
	for s.i < len(s.src) {
		c := s.src[s.i]
		if c == '\\' {
			e, err := s.escape(segmentEscapes)
			if err != nil {
				return "", err
			}
			b.WriteByte(e)
			continue
		}
		if isSpace(c) || strings.IndexByte(segmentStops, c) >= 0 || strings.IndexByte(stop, c) >= 0 {
			break
		}
		b.WriteByte(c)
		s.i++
	}
	if s.i == start {
		return "", s.errorf(start, "expected %s", what)
	}
	return b.String(), nil
}

// quoted scans a q-delimited run. The opening quote is at the current position.
func (s *scanner) quoted(q byte, escapes, what string) (string, error) {
	open := s.i
	s.i++
	var b strings.Builder
	for {
		if s.i >= len(s.src) {
			return "", s.errorf(open, "unterminated quoted %s", what)
		}
		c := s.src[s.i]
		switch c {
		case q:
			s.i++
			if q == '`' && b.Len() == 0 {
				return "", s.errorf(open, "empty quoted %s", what)
			}
			return b.String(), nil
		case '\\':
			e, err := s.escape(escapes)
			if err != nil {
				return "", err
			}
			b.WriteByte(e)
		default:
			b.WriteByte(c)
			s.i++
		}
	}
}

// operator consumes the longest comparison operator at the current position.
func (s *scanner) operator() (Operator, bool) {
	for _, o := range operatorTokens {
		if s.match(o.tok) {
			return o.op, true
		}
	}
	return 0, false
}

// literalToken consumes a bare literal up to whitespace or the block close.
func (s *scanner) literalToken() string {
	start := s.i
	for s.i < len(s.src) && !isSpace(s.src[s.i]) && !s.hasPrefix("@}") {
		s.i++
	}
	return s.src[start:s.i]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// quoteSegment renders name so that segment() reads it back unchanged.
func quoteSegment(name string) string {
	if name != "" && !strings.ContainsAny(name, segmentStops+comparisonStops+" \t\r\n\"") {
		return name
	}
	var b strings.Builder
	b.WriteByte('`')
	for i := 0; i < len(name); i++ {
		if name[i] == '`' || name[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(name[i])
	}
	b.WriteByte('`')
	return b.String()
}
