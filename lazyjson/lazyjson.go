// Package lazyjson implements a minimal, allocation-light JSON scanner
// used to pull individual fields out of a reading document without
// parsing the whole thing into a tree.
//
// It never builds a DOM and never validates the document up front — it
// only walks far enough to answer the question asked of it. That makes it
// fast on the ingest hot path but means a malformed document is only
// caught when the scan reaches the malformed part, not up front. Use it
// only where the caller is reasonably confident the input is well-formed
// JSON (e.g. south plugin output), not as a general-purpose validator.
package lazyjson

import (
	"strconv"
	"strings"
)

// state tracks one nesting level: whether we're positioned inside an
// object or an array, and the byte range of that object/array within the
// scanner's underlying buffer.
type state struct {
	inObject  bool
	inArray   bool
	start     int
	end       int // -1 until objectEnd resolves it
}

// Scanner walks a JSON document by byte offset instead of building a tree.
// Every method takes or returns an offset into the original document
// rather than a copy, so callers stay allocation-free until they actually
// need extracted content (GetString, GetRawObject).
type Scanner struct {
	data  []byte
	stack []*state
	cur   *state
}

// New creates a Scanner over data. Leading whitespace is skipped so the
// initial state starts on the first meaningful character.
func New(data []byte) *Scanner {
	i := skipSpace(data, 0)
	s := &Scanner{data: data}
	st := &state{
		inObject: i < len(data) && data[i] == '{',
		inArray:  i < len(data) && data[i] == '[',
		start:    i,
		end:      -1,
	}
	if st.inObject || st.inArray {
		st.end = s.objectEnd(i)
	}
	s.cur = st
	s.stack = append(s.stack, st)
	return s
}

// NewFromString is a convenience wrapper for New([]byte(str)).
func NewFromString(str string) *Scanner {
	return New([]byte(str))
}

func skipSpace(data []byte, i int) int {
	for i < len(data) && isSpace(data[i]) {
		i++
	}
	return i
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// IsObject reports whether the byte at pos starts a JSON object.
func (s *Scanner) IsObject(pos int) bool { return pos < len(s.data) && s.data[pos] == '{' }

// IsArray reports whether the byte at pos starts a JSON array.
func (s *Scanner) IsArray(pos int) bool { return pos < len(s.data) && s.data[pos] == '[' }

// IsString reports whether the byte at pos starts a JSON string.
func (s *Scanner) IsString(pos int) bool { return pos < len(s.data) && s.data[pos] == '"' }

// IsNumeric reports whether the byte at pos starts a JSON number.
func (s *Scanner) IsNumeric(pos int) bool { return pos < len(s.data) && isDigit(s.data[pos]) }

// IsNull reports whether the value at pos is the literal null.
func (s *Scanner) IsNull(pos int) bool { return s.hasCaseFold(pos, "null") }

// IsBool reports whether the value at pos is the literal true or false.
func (s *Scanner) IsBool(pos int) bool { return s.hasCaseFold(pos, "true") || s.hasCaseFold(pos, "false") }

// IsTrue reports whether the value at pos is the literal true.
func (s *Scanner) IsTrue(pos int) bool { return s.hasCaseFold(pos, "true") }

// IsFalse reports whether the value at pos is the literal false.
func (s *Scanner) IsFalse(pos int) bool { return s.hasCaseFold(pos, "false") }

func (s *Scanner) hasCaseFold(pos int, lit string) bool {
	if pos < 0 || pos+len(lit) > len(s.data) {
		return false
	}
	return strings.EqualFold(string(s.data[pos:pos+len(lit)]), lit)
}

// GetAttribute returns the offset of the value belonging to the named key
// within the object currently in scope, and false if the key isn't
// present or the scanner isn't positioned on an object.
//
// The search compares the full quoted key, closing quote included, so
// "id" does not match "idx". This differs from the original
// implementation, which compared only len(name) bytes and so skipped the
// key's last character and its closing quote. The scan does not skip
// string values: a value equal to the quoted key that appears before the
// key itself is matched instead.
func (s *Scanner) GetAttribute(name string) (int, bool) {
	if !s.cur.inObject {
		return -1, false
	}
	searchFor := "\"" + name + "\""
	length := len(searchFor)
	end := s.cur.end
	if end < 0 || end > len(s.data) {
		end = len(s.data)
	}
	p := s.cur.start
	for p < end {
		if p+length <= len(s.data) && string(s.data[p:p+length]) == searchFor {
			p += length
			for p < len(s.data) && (isSpace(s.data[p]) || s.data[p] == ':') {
				p++
			}
			return p, true
		}
		p++
	}
	return -1, false
}

// GetArray positions the scanner on the array starting at pos, pushing a
// new nesting state, and returns the offset of the first element. Returns
// false if pos isn't the start of an array or nothing follows the '['.
// For an empty array the returned offset is that of the closing ']'.
func (s *Scanner) GetArray(pos int) (int, bool) {
	if pos >= len(s.data) || s.data[pos] != '[' {
		return -1, false
	}
	p1 := skipSpace(s.data, pos+1)
	if p1 >= len(s.data) {
		return -1, false
	}
	st := &state{inArray: true, start: pos, end: s.objectEnd(pos)}
	s.push(st)
	return p1, true
}

// NextArrayElement returns the offset of the array element following the
// one starting at pos, or false at the end of the array.
func (s *Scanner) NextArrayElement(pos int) (int, bool) {
	nested, object := 0, 0
	quoted, escaped := false, false
	p := pos
	for p < len(s.data) {
		c := s.data[p]
		switch {
		case c == '"' && !escaped:
			quoted = !quoted
		case c == '\\' && !escaped:
			escaped = true
		case c == '{' && !escaped:
			object++
		case c == '}' && !escaped:
			object--
		case !quoted && c == '[':
			nested++
		case !quoted && nested > 0 && c == ']':
			nested--
		case !quoted && nested == 0 && c == ']':
			return -1, false
		case !quoted && nested == 0 && object == 0 && c == ',':
			escaped = false
			p++
			p = skipSpace(s.data, p)
			if p < len(s.data) {
				return p, true
			}
			return -1, false
		default:
			escaped = false
		}
		p++
	}
	return -1, false
}

// GetArraySize returns the number of remaining elements in the array
// starting from an element at pos, or -1 on an unterminated array.
func (s *Scanner) GetArraySize(pos int) int {
	nested, object, size := 0, 0, 1
	quoted, escaped := false, false
	p := pos
	for p < len(s.data) {
		c := s.data[p]
		switch {
		case c == '"' && !escaped:
			quoted = !quoted
		case c == '\\' && !escaped:
			escaped = true
		case c == '{' && !escaped:
			object++
		case c == '}' && !escaped:
			object--
		case !quoted && c == '[':
			nested++
		case !quoted && nested > 0 && c == ']':
			nested--
		case !quoted && nested == 0 && c == ']':
			return size
		case !quoted && nested == 0 && object == 0 && c == ',':
			escaped = false
			p++
			next := skipSpace(s.data, p)
			if next < len(s.data) {
				size++
				p = next - 1
			} else {
				return -1
			}
		default:
			escaped = false
		}
		p++
	}
	return -1
}

// GetObject positions the scanner on the object starting at pos, pushing
// a new nesting state. Returns pos unchanged as the object's own start
// offset, or false if pos isn't the start of an object.
func (s *Scanner) GetObject(pos int) (int, bool) {
	if pos >= len(s.data) || s.data[pos] != '{' {
		return -1, false
	}
	st := &state{inObject: true, start: pos, end: s.objectEnd(pos)}
	s.push(st)
	return pos, true
}

// GetRawObject returns the raw JSON text of the object or array starting
// at pos, with backslash escapes collapsed (the RawObject form: `\x`
// becomes `x` for every escaped byte).
func (s *Scanner) GetRawObject(pos int) string {
	end := s.objectEnd(pos)
	if end < 0 {
		return ""
	}
	var b strings.Builder
	escaped := false
	for p := pos; p <= end && p < len(s.data); p++ {
		c := s.data[p]
		if c == '\\' && !escaped {
			escaped = true
			continue
		}
		b.WriteByte(c)
		escaped = false
	}
	return b.String()
}

// GetRawObjectEscaping returns the raw JSON text of the object or array
// starting at pos (the RawObjectEscaping form), collapsing existing
// backslash escapes like GetRawObject but additionally re-escaping every
// occurrence of esc with a leading backslash. Used when embedding the
// extracted object as a string value inside another JSON document, where
// esc is typically the quote character.
func (s *Scanner) GetRawObjectEscaping(pos int, esc byte) string {
	end := s.objectEnd(pos)
	if end < 0 {
		return ""
	}
	var b strings.Builder
	escaped := false
	for p := pos; p <= end && p < len(s.data); p++ {
		c := s.data[p]
		if c == '\\' && !escaped {
			escaped = true
			continue
		}
		if c == esc {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
		escaped = false
	}
	return b.String()
}

// PopState pops the current nesting level, returning the scanner to
// whatever object or array enclosed it.
func (s *Scanner) PopState() {
	if len(s.stack) == 0 {
		return
	}
	s.stack = s.stack[:len(s.stack)-1]
	if len(s.stack) > 0 {
		s.cur = s.stack[len(s.stack)-1]
	} else {
		s.cur = nil
	}
}

func (s *Scanner) push(st *state) {
	s.stack = append(s.stack, st)
	s.cur = st
}

// GetString returns the unescaped content of the string starting at pos,
// and false if pos isn't a well-formed, terminated string.
func (s *Scanner) GetString(pos int) (string, bool) {
	p := pos
	if p < len(s.data) && s.data[p] == '"' {
		p++
	}
	start := p
	escaped := false
	for p < len(s.data) && (s.data[p] != '"' || escaped) {
		if s.data[p] == '\\' && !escaped {
			escaped = true
		} else {
			escaped = false
		}
		p++
	}
	if p >= len(s.data) || s.data[p] != '"' {
		return "", false
	}
	var b strings.Builder
	escaped = false
	for q := start; q < p; q++ {
		c := s.data[q]
		if c == '\\' && !escaped {
			escaped = true
			continue
		}
		b.WriteByte(c)
		escaped = false
	}
	return b.String(), true
}

// GetInt parses a signed decimal integer starting at pos.
func (s *Scanner) GetInt(pos int) int64 {
	p := pos
	sign := int64(1)
	if p < len(s.data) && s.data[p] == '-' {
		sign = -1
		p++
	}
	var v int64
	for p < len(s.data) && isDigit(s.data[p]) {
		v = v*10 + int64(s.data[p]-'0')
		p++
	}
	return v * sign
}

// GetFloat parses a JSON number (integer or floating point) starting at
// pos, stopping at the first byte that can't extend the number.
func (s *Scanner) GetFloat(pos int) (float64, bool) {
	p := pos
	if p < len(s.data) && (s.data[p] == '-' || s.data[p] == '+') {
		p++
	}
	start := pos
	for p < len(s.data) {
		c := s.data[p]
		if isDigit(c) || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' {
			p++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(string(s.data[start:p]), 64)
	return v, err == nil
}

// objectEnd returns the offset of the closing brace/bracket matching the
// opening one at start, or -1 if the document is truncated.
func (s *Scanner) objectEnd(start int) int {
	if start >= len(s.data) {
		return -1
	}
	st, ed := byte('{'), byte('}')
	if s.data[start] == '[' {
		st, ed = '[', ']'
	}
	nested := 0
	quoted, escaped := false, false
	for p := start; p < len(s.data); p++ {
		c := s.data[p]
		switch {
		case c == '"' && !escaped:
			quoted = !quoted
			escaped = false
		case c == '\\' && !escaped:
			escaped = true
		case !quoted && c == st:
			nested++
			escaped = false
		case !quoted && c == ed:
			escaped = false
			nested--
			if nested == 0 {
				return p
			}
		default:
			escaped = false
		}
	}
	return -1
}
