package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fraction no tz", "2024-01-02 03:04:05", "2024-01-02 03:04:05.000000+00:00"},
		{"short fraction", "2024-01-02 03:04:05.1", "2024-01-02 03:04:05.100000+00:00"},
		{"full fraction", "2024-01-02 03:04:05.123456", "2024-01-02 03:04:05.123456+00:00"},
		{"truncate fraction", "2024-01-02 03:04:05.1234567", "2024-01-02 03:04:05.123456+00:00"},
		{"single digit tz hour", "2024-01-02 03:04:05+1", "2024-01-02 03:04:05.000000+01:00"},
		{"tz with partial minute", "2024-01-02 03:04:05+01:3", "2024-01-02 03:04:05.000000+01:30"},
		{"tz with full minute", "2024-01-02 03:04:05+01:30", "2024-01-02 03:04:05.000000+01:30"},
		{"negative tz", "2024-01-02 03:04:05-05:00", "2024-01-02 03:04:05.000000-05:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTimestamp(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTimestamp_Invalid(t *testing.T) {
	for _, in := range []string{"not a date", "2024-01-02", "2024-01-02 03:04", ""} {
		_, ok := NormalizeTimestamp(in)
		assert.False(t, ok, "expected %q to be invalid", in)
	}
}

func TestNormalizeTimestamp_FixedPoint(t *testing.T) {
	inputs := []string{
		"2024-01-02 03:04:05",
		"2024-01-02 03:04:05.1",
		"2024-01-02 03:04:05+1",
		"2024-01-02 03:04:05-05:00",
	}

	for _, in := range inputs {
		once, ok := NormalizeTimestamp(in)
		require.True(t, ok)

		twice, ok := NormalizeTimestamp(once)
		require.True(t, ok)

		assert.Equal(t, once, twice, "formatDate should be a fixed point for %q", in)
	}
}

func TestIsFunctionCall(t *testing.T) {
	assert.True(t, IsFunctionCall("now()"))
	assert.True(t, IsFunctionCall("to_timestamp(123)"))
	assert.False(t, IsFunctionCall("plain string"))
	assert.False(t, IsFunctionCall("2024-01-02"))
}
