package sqlbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffer_Empty(t *testing.T) {
	var b Buffer
	assert.True(t, b.IsEmpty())
	assert.Equal(t, "", b.Coalesce())
}

func TestBuffer_AppendLeftToRight(t *testing.T) {
	var b Buffer
	b.WriteString("SELECT * FROM ").WriteString(`"readings"`).WriteString(" WHERE id > ").WriteInt(42)

	assert.False(t, b.IsEmpty())
	assert.Equal(t, `SELECT * FROM "readings" WHERE id > 42`, b.Coalesce())
}

func TestBuffer_WriteFloatAndByte(t *testing.T) {
	var b Buffer
	b.WriteString("v = ").WriteFloat(3.5).WriteByte(';')
	assert.Equal(t, "v = 3.5;", b.Coalesce())
}

func TestBuffer_Reset(t *testing.T) {
	var b Buffer
	b.WriteString("abc")
	b.Reset()
	assert.True(t, b.IsEmpty())
}
