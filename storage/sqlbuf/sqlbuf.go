// Package sqlbuf implements the append-only text builder the query
// compiler uses to assemble SQL statements left-to-right.
package sqlbuf

import "strconv"

// Buffer accumulates SQL text. Its zero value is ready to use. Writes are
// strictly append-only: there is no way to rewind or edit already-written
// text, matching how the query compiler uses it (build once, coalesce
// once).
type Buffer struct {
	b []byte
}

// WriteString appends s.
func (b *Buffer) WriteString(s string) *Buffer {
	b.b = append(b.b, s...)
	return b
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) *Buffer {
	b.b = append(b.b, c)
	return b
}

// WriteInt appends the decimal representation of i.
func (b *Buffer) WriteInt(i int64) *Buffer {
	b.b = strconv.AppendInt(b.b, i, 10)
	return b
}

// WriteFloat appends the shortest round-tripping decimal representation
// of f.
func (b *Buffer) WriteFloat(f float64) *Buffer {
	b.b = strconv.AppendFloat(b.b, f, 'g', -1, 64)
	return b
}

// IsEmpty reports whether any bytes have been written.
func (b *Buffer) IsEmpty() bool {
	return len(b.b) == 0
}

// Coalesce returns the full accumulated text as a string. Unlike the
// original C++ buffer (which handed out an owned, caller-freed C string),
// Go's garbage collector makes that ownership dance unnecessary; the
// caller simply gets an independent string value.
func (b *Buffer) Coalesce() string {
	return string(b.b)
}

// Reset clears the buffer for reuse.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
}
