package lazyjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanner_GetAttribute(t *testing.T) {
	s := NewFromString(`{"asset_code":"wind01","readings":{"speed":12.4}}`)

	pos, ok := s.GetAttribute("asset_code")
	require.True(t, ok)
	assert.True(t, s.IsString(pos))
	val, ok := s.GetString(pos)
	require.True(t, ok)
	assert.Equal(t, "wind01", val)

	_, ok = s.GetAttribute("missing")
	assert.False(t, ok)
}

func TestScanner_GetAttribute_NotAnObject(t *testing.T) {
	s := NewFromString(`[1,2,3]`)
	_, ok := s.GetAttribute("anything")
	assert.False(t, ok)
}

func TestScanner_NestedObject(t *testing.T) {
	s := NewFromString(`{"readings":{"speed":12.4,"direction":270}}`)

	pos, ok := s.GetAttribute("readings")
	require.True(t, ok)
	require.True(t, s.IsObject(pos))

	objPos, ok := s.GetObject(pos)
	require.True(t, ok)

	speedPos, ok := s.GetAttribute("speed")
	require.True(t, ok)
	assert.True(t, s.IsNumeric(speedPos))
	f, ok := s.GetFloat(speedPos)
	require.True(t, ok)
	assert.InDelta(t, 12.4, f, 0.0001)

	s.PopState()
	_ = objPos
}

func TestScanner_Array(t *testing.T) {
	s := NewFromString(`[1,2,3]`)

	first, ok := s.GetArray(0)
	require.True(t, ok)
	assert.Equal(t, int64(1), s.GetInt(first))

	assert.Equal(t, 3, s.GetArraySize(first))

	second, ok := s.NextArrayElement(first)
	require.True(t, ok)
	assert.Equal(t, int64(2), s.GetInt(second))

	third, ok := s.NextArrayElement(second)
	require.True(t, ok)
	assert.Equal(t, int64(3), s.GetInt(third))

	_, ok = s.NextArrayElement(third)
	assert.False(t, ok)
}

func TestScanner_ArrayOfObjects(t *testing.T) {
	s := NewFromString(`[{"a":1},{"b":2}]`)

	first, ok := s.GetArray(0)
	require.True(t, ok)
	assert.True(t, s.IsObject(first))

	second, ok := s.NextArrayElement(first)
	require.True(t, ok)
	assert.True(t, s.IsObject(second))
}

func TestScanner_Literals(t *testing.T) {
	s := NewFromString(`{"a":null,"b":true,"c":false}`)

	pos, _ := s.GetAttribute("a")
	assert.True(t, s.IsNull(pos))

	pos, _ = s.GetAttribute("b")
	assert.True(t, s.IsBool(pos))
	assert.True(t, s.IsTrue(pos))
	assert.False(t, s.IsFalse(pos))

	pos, _ = s.GetAttribute("c")
	assert.True(t, s.IsBool(pos))
	assert.True(t, s.IsFalse(pos))
}

func TestScanner_GetRawObject(t *testing.T) {
	s := NewFromString(`{"nested":{"x":1,"y":"z"}}`)
	pos, ok := s.GetAttribute("nested")
	require.True(t, ok)

	raw := s.GetRawObject(pos)
	assert.Equal(t, `{"x":1,"y":"z"}`, raw)
}

func TestScanner_GetRawObjectEscaping(t *testing.T) {
	s := NewFromString(`{"nested":{"x":1}}`)
	pos, ok := s.GetAttribute("nested")
	require.True(t, ok)

	raw := s.GetRawObjectEscaping(pos, '"')
	assert.Equal(t, `{\"x\":1}`, raw)
}

func TestScanner_GetString_EscapedQuote(t *testing.T) {
	s := NewFromString(`{"msg":"hello \"world\""}`)
	pos, ok := s.GetAttribute("msg")
	require.True(t, ok)

	val, ok := s.GetString(pos)
	require.True(t, ok)
	assert.Equal(t, `hello "world"`, val)
}

func TestScanner_GetString_Unterminated(t *testing.T) {
	s := NewFromString(`{"msg":"hello`)
	pos, ok := s.GetAttribute("msg")
	require.True(t, ok)

	_, ok = s.GetString(pos)
	assert.False(t, ok)
}
